package tooling

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Native example tools. Unlike WeatherTool these validate their arguments
// against the generated schema before executing, so mistyped input is
// rejected rather than defaulted.

// unmarshalFunc is the JSON unmarshaler used by native tool Call methods.
// Package-level so tests can inject a failing unmarshaler to cover the
// defense-in-depth error path.
var unmarshalFunc = json.Unmarshal

// TextInput is the shared input structure for the text tools.
type TextInput struct {
	Text string `json:"text" jsonschema:"description=The text to operate on"`
}

// UpperCaseTool converts text to uppercase.
type UpperCaseTool struct{}

// Name returns the tool name used for discovery and dispatch.
func (t *UpperCaseTool) Name() string { return "uppercase" }

// Description returns a human-readable description of the tool.
func (t *UpperCaseTool) Description() string { return "Convert text to uppercase" }

// Definition returns the JSON Schema for text input.
func (t *UpperCaseTool) Definition() string {
	return GenerateSchema(t.Name(), t.Description(), TextInput{})
}

// Call validates the arguments against the schema and uppercases the text.
func (t *UpperCaseTool) Call(args json.RawMessage) (*ToolResult, error) {
	if err := ValidateAgainstSchema(args, t.Definition()); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	var input TextInput
	if err := unmarshalFunc(args, &input); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}

	return &ToolResult{Data: strings.ToUpper(input.Text)}, nil
}

// WordCountTool counts words in text.
type WordCountTool struct{}

// Name returns the tool name used for discovery and dispatch.
func (t *WordCountTool) Name() string { return "wordcount" }

// Description returns a human-readable description of the tool.
func (t *WordCountTool) Description() string { return "Count words in text" }

// Definition returns the JSON Schema for text input.
func (t *WordCountTool) Definition() string {
	return GenerateSchema(t.Name(), t.Description(), TextInput{})
}

// Call validates the arguments against the schema and counts words.
func (t *WordCountTool) Call(args json.RawMessage) (*ToolResult, error) {
	if err := ValidateAgainstSchema(args, t.Definition()); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	var input TextInput
	if err := unmarshalFunc(args, &input); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}

	words := strings.Fields(input.Text)
	return &ToolResult{Data: fmt.Sprintf("Word count: %d", len(words))}, nil
}

package tooling

import (
	"context"
	"encoding/json"
)

// SchemaTool is a tool whose input is described by a JSON Schema. The host
// presents Definition() to callers for discovery and dispatches arguments to
// Call(). The same interface backs both native Go tools and external
// --schema/--execute binaries wrapped by ShellTool.
type SchemaTool interface {
	// Name returns the unique tool name (e.g. "get_weather").
	Name() string
	// Description returns a human-readable summary of what the tool does.
	Description() string
	// Definition returns the tool's input JSON Schema as a single-line string.
	Definition() string
	// Call executes the tool with the given JSON arguments.
	Call(args json.RawMessage) (*ToolResult, error)
}

// ContextCaller is implemented by tools whose execution can be bounded by a
// context deadline. ShellTool and MCPTool both qualify; native tools run
// in-process and do not.
type ContextCaller interface {
	CallContext(ctx context.Context, args json.RawMessage) (*ToolResult, error)
}

// ToolResult is the outcome of a tool call. Data carries the plain-text
// result; Metadata carries optional execution details (exit codes, timing).
type ToolResult struct {
	Data     string         `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolDefinition is the discovery record for a registered tool, suitable for
// listing to an external caller.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

package tooling

import (
	"encoding/json"
	"fmt"
)

// WeatherInput represents the input structure for the weather capability.
type WeatherInput struct {
	Location string `json:"location" jsonschema:"description=The location to get weather for"`
}

// GetWeather returns a canned weather report for the given location. This is
// a mock capability: no data source is consulted and it never fails.
func GetWeather(location string) string {
	return fmt.Sprintf("The weather in %s is sunny and 72°F", location)
}

// WeatherTool exposes GetWeather behind the SchemaTool interface.
//
// Its argument handling is deliberately two-tiered: arguments that are not
// valid JSON are an error, but a missing or non-string "location" silently
// falls back to "unknown". The schema is descriptive only and is never
// enforced on the execute path.
type WeatherTool struct{}

// Name returns the tool name used for discovery and dispatch.
func (t *WeatherTool) Name() string { return "get_weather" }

// Description returns a human-readable description of the capability.
func (t *WeatherTool) Description() string {
	return "Get the current weather for a location"
}

// Definition returns the JSON Schema for weather input.
func (t *WeatherTool) Definition() string {
	return GenerateSchema(t.Name(), t.Description(), WeatherInput{})
}

// Call parses the JSON arguments and runs the capability.
func (t *WeatherTool) Call(args json.RawMessage) (*ToolResult, error) {
	var input map[string]any
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	location := "unknown"
	if s, ok := input["location"].(string); ok {
		location = s
	}

	return &ToolResult{
		Data:     GetWeather(location),
		Metadata: map[string]any{"location": location},
	}, nil
}

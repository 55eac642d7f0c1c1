package tooling

import (
	"encoding/json"
	"fmt"

	invopopSchema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// marshalFunc is the JSON marshaler used by GenerateSchema. Package-level so
// tests can inject a failing marshaler to cover the error return path.
var marshalFunc = json.Marshal

// GenerateSchema reflects a Go input struct into a JSON Schema via
// invopop/jsonschema and stamps it with the given title and description.
// The result is a single-line JSON document with inline properties (no $ref,
// no $schema header) so it can be printed as-is by a tool's --schema mode.
func GenerateSchema(title, description string, input interface{}) string {
	reflector := invopopSchema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	schema := reflector.Reflect(input)
	schema.Version = ""
	schema.Title = title
	schema.Description = description

	schemaBytes, err := marshalFunc(schema)
	if err != nil {
		return ""
	}
	return string(schemaBytes)
}

// ValidateAgainstSchema checks a raw JSON document against the schema a tool
// advertises. The schema is compiled fresh on each call; tools that validate
// per-invocation pay the compile cost each time, which is fine at CLI rates.
func ValidateAgainstSchema(input json.RawMessage, schemaStr string) error {
	compiled, err := jsonschema.CompileString("", schemaStr)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

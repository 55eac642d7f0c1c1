// Package shim turns any SchemaTool into a conventional tool binary: the
// binary prints its JSON Schema when invoked with --schema and executes the
// tool when invoked with --execute and a JSON argument blob. Orchestrators
// discover and call tools through exactly this surface.
package shim

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"toolshim/internal/tooling"
)

// Run runs the tool CLI with the given args. Dispatch is stateless: each
// invocation is a pure function of argv to printed output.
//
//   - "--schema" prints the tool's schema as one line on stdout, returns 0.
//   - "--execute <json>" calls the tool and prints its text result; if the
//     payload is not valid JSON the error goes to stderr and Run returns 1.
//   - anything else prints the usage line on stdout and returns 0.
func Run(tool tooling.SchemaTool, args []string, stdout, stderr io.Writer) int {
	switch {
	case len(args) > 1 && args[1] == "--schema":
		fmt.Fprintln(stdout, tool.Definition())
		return 0

	case len(args) > 2 && args[1] == "--execute":
		result, err := tool.Call(json.RawMessage(args[2]))
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, result.Data)
		return 0

	default:
		prog := "tool"
		if len(args) > 0 && args[0] != "" {
			prog = filepath.Base(args[0])
		}
		fmt.Fprintf(stdout, "Usage: %s --schema | %s --execute '<json arguments>'\n", prog, prog)
		return 0
	}
}

package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	invopopSchema "github.com/invopop/jsonschema"
)

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, command string, args ...string) (stdout string, stderr string, err error)
}

// ExitCoder is satisfied by errors that carry a process exit code
// (e.g., *exec.ExitError).
type ExitCoder interface {
	ExitCode() int
}

// execRunner is the default Runner backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, command string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// schemaTimeout bounds the --schema discovery call so a hung tool cannot
// block registry loading.
var schemaTimeout = 10 * time.Second

// ShellTool wraps an external --schema/--execute binary as a SchemaTool.
// The tool's schema is discovered once at construction by running the binary
// with --schema; Call later runs it with --execute and the JSON arguments.
type ShellTool struct {
	command string
	runner  Runner
	schema  *invopopSchema.Schema
	rawDef  string
}

// NewShellTool creates a ShellTool for the given command path, discovering
// its schema by invoking it with --schema. A nil runner uses os/exec.
func NewShellTool(command string, runner Runner) (*ShellTool, error) {
	if runner == nil {
		runner = execRunner{}
	}
	tool := &ShellTool{command: command, runner: runner}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	stdout, stderr, err := runner.Run(ctx, command, "--schema")
	if err != nil {
		return nil, fmt.Errorf("failed to get schema from %s: %w (stderr: %s)",
			command, err, strings.TrimSpace(stderr))
	}

	raw := strings.TrimSpace(stdout)
	tool.schema = &invopopSchema.Schema{}
	if err := json.Unmarshal([]byte(raw), tool.schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema from %s: %w", command, err)
	}
	if tool.schema.Title == "" {
		return nil, fmt.Errorf("schema from %s has no title", command)
	}
	tool.rawDef = raw

	return tool, nil
}

// Name returns the tool name taken from the discovered schema title.
func (s *ShellTool) Name() string { return s.schema.Title }

// Description returns the discovered schema description.
func (s *ShellTool) Description() string { return s.schema.Description }

// Definition returns the schema exactly as the external tool emitted it.
func (s *ShellTool) Definition() string { return s.rawDef }

// Source returns the wrapped command path.
func (s *ShellTool) Source() string { return s.command }

// Call runs the external tool with --execute and the JSON arguments. A
// non-zero exit from the tool is not an error here: the output and exit code
// are returned so the caller can decide. Only a failure to run the command
// at all is an error.
func (s *ShellTool) Call(args json.RawMessage) (*ToolResult, error) {
	return s.CallContext(context.Background(), args)
}

// CallContext is Call with caller-controlled cancellation.
func (s *ShellTool) CallContext(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	start := time.Now()
	stdout, stderr, err := s.runner.Run(ctx, s.command, "--execute", string(args))
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		coder, ok := err.(ExitCoder)
		if !ok {
			return nil, fmt.Errorf("failed to execute %s: %w", s.command, err)
		}
		exitCode = coder.ExitCode()
	}

	output := strings.TrimSpace(stdout)
	if trimmed := strings.TrimSpace(stderr); trimmed != "" {
		if output != "" {
			output += "\n--- stderr ---\n" + trimmed
		} else {
			output = "--- stderr ---\n" + trimmed
		}
	}

	return &ToolResult{
		Data: output,
		Metadata: map[string]any{
			"exit_code":   exitCode,
			"duration_ms": elapsed.Milliseconds(),
		},
	}, nil
}

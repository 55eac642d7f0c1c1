package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// =============================================================================
// Test Helpers
// =============================================================================

// writeServersFile writes an mcpServers config file and returns its path.
func writeServersFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// newTestSession wires a client session to an in-process server over the
// in-memory transport pair. The server exposes an "echo" tool and a "fail"
// tool that always reports a tool-level error.
func newTestSession(t *testing.T) *mcp.ClientSession {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "test"}, nil)
	server.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "echo text back",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []any{"text"},
		},
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		text, ok := args["text"].(string)
		if !ok {
			return nil, errors.New("text argument missing")
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
	})
	server.AddTool(&mcp.Tool{
		Name:        "fail",
		Description: "always fails",
		InputSchema: map[string]any{"type": "object"},
	}, func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "it broke"}},
		}, nil
	})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.Connect(context.Background(), serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect failed: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	clientSession, err := client.Connect(context.Background(), clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}

	t.Cleanup(func() {
		clientSession.Close()
		serverSession.Close()
	})
	return clientSession
}

func quietMCPClient(session *mcp.ClientSession, spec string) *MCPClient {
	return &MCPClient{
		session: session,
		spec:    spec,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// =============================================================================
// ParseServerSpec
// =============================================================================

func TestParseServerSpec_WithServerName_ShouldSplit(t *testing.T) {
	file, name := ParseServerSpec("servers/fs.json#files")
	if file != "servers/fs.json" || name != "files" {
		t.Errorf("got file=%q name=%q", file, name)
	}
}

func TestParseServerSpec_WithoutServerName_ShouldReturnBarePath(t *testing.T) {
	file, name := ParseServerSpec("servers/fs.json")
	if file != "servers/fs.json" || name != "" {
		t.Errorf("got file=%q name=%q", file, name)
	}
}

func TestParseServerSpec_HashNotAfterJSON_ShouldStayInPath(t *testing.T) {
	file, name := ParseServerSpec("servers/a#b/fs.json")
	if file != "servers/a#b/fs.json" || name != "" {
		t.Errorf("got file=%q name=%q", file, name)
	}
}

// =============================================================================
// LoadMCPServersFile
// =============================================================================

func TestLoadMCPServersFile_ShouldParseServers(t *testing.T) {
	dir := t.TempDir()
	path := writeServersFile(t, dir, "fs.json", `{"mcpServers": {"files": {"command": "mcp-files", "args": ["--root", "/tmp"]}}}`)

	configs, err := LoadMCPServersFile(path)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	cfg, ok := configs["files"]
	if !ok {
		t.Fatal("expected server 'files'")
	}
	if cfg.Command != "mcp-files" || len(cfg.Args) != 2 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadMCPServersFile_MissingFile_ShouldReturnError(t *testing.T) {
	_, err := LoadMCPServersFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "read mcp config") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadMCPServersFile_NoServers_ShouldReturnError(t *testing.T) {
	dir := t.TempDir()
	path := writeServersFile(t, dir, "empty.json", `{"mcpServers": {}}`)

	if _, err := LoadMCPServersFile(path); err == nil {
		t.Fatal("expected error for empty mcpServers")
	}
}

func TestLoadMCPServersFile_MalformedJSON_ShouldReturnError(t *testing.T) {
	dir := t.TempDir()
	path := writeServersFile(t, dir, "bad.json", `{oops`)

	_, err := LoadMCPServersFile(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if !strings.Contains(err.Error(), "parse mcp config") {
		t.Errorf("unexpected error: %v", err)
	}
}

// =============================================================================
// NewMCPClient — config resolution
// =============================================================================

func TestNewMCPClient_NonJSONSpec_ShouldReturnError(t *testing.T) {
	if _, err := NewMCPClient("not-a-config.txt"); err == nil {
		t.Fatal("expected error for non-JSON spec")
	}
}

func TestNewMCPClient_UnknownServerName_ShouldListAvailable(t *testing.T) {
	dir := t.TempDir()
	path := writeServersFile(t, dir, "multi.json", `{"mcpServers": {"alpha": {"command": "a"}, "beta": {"command": "b"}}}`)

	_, err := NewMCPClient(path + "#gamma")
	if err == nil {
		t.Fatal("expected error for unknown server name")
	}
	if !strings.Contains(err.Error(), "alpha") || !strings.Contains(err.Error(), "beta") {
		t.Errorf("expected available servers in error, got: %v", err)
	}
}

func TestNewMCPClient_MultipleServersWithoutName_ShouldReturnError(t *testing.T) {
	dir := t.TempDir()
	path := writeServersFile(t, dir, "multi.json", `{"mcpServers": {"alpha": {"command": "a"}, "beta": {"command": "b"}}}`)

	_, err := NewMCPClient(path)
	if err == nil {
		t.Fatal("expected error for ambiguous spec")
	}
	if !strings.Contains(err.Error(), "#<name>") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewMCPClient_UnsupportedTransport_ShouldReturnError(t *testing.T) {
	dir := t.TempDir()
	path := writeServersFile(t, dir, "remote.json", `{"mcpServers": {"web": {"transport": "sse", "command": "x"}}}`)

	_, err := NewMCPClient(path)
	if err == nil {
		t.Fatal("expected error for sse transport")
	}
	if !strings.Contains(err.Error(), "unsupported transport") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewMCPClient_MissingCommand_ShouldReturnError(t *testing.T) {
	dir := t.TempDir()
	path := writeServersFile(t, dir, "nocmd.json", `{"mcpServers": {"empty": {}}}`)

	if _, err := NewMCPClient(path); err == nil {
		t.Fatal("expected error for config without command")
	}
}

// =============================================================================
// Namespace and definition building
// =============================================================================

func TestMCPNamespace_ShouldUseFileBaseName(t *testing.T) {
	cases := map[string]string{
		"servers/fs.json":       "fs",
		"servers/fs.json#files": "fs",
		"weather.json":          "weather",
	}
	for spec, want := range cases {
		if got := mcpNamespace(spec); got != want {
			t.Errorf("mcpNamespace(%q) = %q, want %q", spec, got, want)
		}
	}
}

func TestMCPTool_Definition_ShouldCarryNamespacedTitle(t *testing.T) {
	tool := newMCPTool(nil, &mcp.Tool{
		Name:        "read_file",
		Description: "reads a file",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
	}, "servers/fs.json", "fs")

	if tool.Name() != "fs__read_file" {
		t.Errorf("expected namespaced name, got %q", tool.Name())
	}

	var schema map[string]any
	if err := json.Unmarshal([]byte(tool.Definition()), &schema); err != nil {
		t.Fatalf("definition is not valid JSON: %v", err)
	}
	if schema["title"] != "fs__read_file" {
		t.Errorf("expected title 'fs__read_file', got %v", schema["title"])
	}
	if schema["description"] != "reads a file" {
		t.Errorf("expected description to be filled in, got %v", schema["description"])
	}
	if _, ok := schema["properties"]; !ok {
		t.Error("expected properties to survive from the server schema")
	}
}

func TestMCPTool_Definition_NoInputSchema_ShouldFallBackToObject(t *testing.T) {
	tool := newMCPTool(nil, &mcp.Tool{Name: "ping"}, "servers/net.json", "net")

	var schema map[string]any
	if err := json.Unmarshal([]byte(tool.Definition()), &schema); err != nil {
		t.Fatalf("definition is not valid JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("expected object schema, got %v", schema["type"])
	}
	if schema["title"] != "net__ping" {
		t.Errorf("expected title 'net__ping', got %v", schema["title"])
	}
}

// =============================================================================
// MCPTool over an in-memory session
// =============================================================================

func TestMCPClient_Tools_ShouldListNamespacedTools(t *testing.T) {
	session := newTestSession(t)
	client := quietMCPClient(session, "servers/test.json")

	tools, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name()] = true
	}
	if !names["test__echo"] || !names["test__fail"] {
		t.Errorf("unexpected tool names: %v", names)
	}
}

func TestMCPTool_Call_ShouldReturnTextContent(t *testing.T) {
	session := newTestSession(t)
	client := quietMCPClient(session, "servers/test.json")

	tools, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var echo *MCPTool
	for _, tool := range tools {
		if tool.Name() == "test__echo" {
			echo = tool
		}
	}
	if echo == nil {
		t.Fatal("echo tool not found")
	}

	result, err := echo.Call(json.RawMessage(`{"text": "hello"}`))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Data != "hello" {
		t.Errorf("expected 'hello', got %q", result.Data)
	}
	if result.Metadata["server"] != "servers/test.json" {
		t.Errorf("expected server metadata, got %v", result.Metadata)
	}
}

func TestMCPTool_Call_ServerError_ShouldReturnError(t *testing.T) {
	session := newTestSession(t)
	client := quietMCPClient(session, "servers/test.json")

	tools, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var fail *MCPTool
	for _, tool := range tools {
		if tool.Name() == "test__fail" {
			fail = tool
		}
	}
	if fail == nil {
		t.Fatal("fail tool not found")
	}

	_, err = fail.Call(json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error from failing tool")
	}
	if !strings.Contains(err.Error(), "it broke") {
		t.Errorf("expected server error text, got: %v", err)
	}
}

func TestMCPTool_Call_MalformedArguments_ShouldReturnError(t *testing.T) {
	tool := newMCPTool(nil, &mcp.Tool{Name: "ping"}, "servers/net.json", "net")
	if _, err := tool.Call(json.RawMessage(`{oops`)); err == nil {
		t.Fatal("expected error for malformed arguments")
	}
}

// =============================================================================
// Registry — MCP lifecycle
// =============================================================================

func TestRegistry_LoadToolAuto_ShellScript_ShouldReportShell(t *testing.T) {
	dir := t.TempDir()
	path := writeToolScript(t, dir, "greet", `{"title":"greet","type":"object","properties":{},"required":[]}`)

	reg := quietRegistry()
	isShell, err := reg.LoadToolAuto(path)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !isShell {
		t.Error("expected shell tool detection")
	}
	if _, err := reg.Get("greet"); err != nil {
		t.Errorf("expected greet to be registered: %v", err)
	}
}

func TestRegistry_LoadToolAuto_BothFail_ShouldCombineErrors(t *testing.T) {
	reg := quietRegistry()
	_, err := reg.LoadToolAuto(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for unloadable path")
	}
	if !strings.Contains(err.Error(), "shell tool") || !strings.Contains(err.Error(), "mcp server") {
		t.Errorf("expected both failure causes in error, got: %v", err)
	}
}

func TestRegistry_UnloadMCPServer_NotLoaded_ShouldReturnError(t *testing.T) {
	reg := quietRegistry()
	if err := reg.UnloadMCPServer("servers/fs.json"); err == nil {
		t.Fatal("expected error for unknown server")
	}
}

func TestRegistry_LoadedMCPServers_Empty_ShouldReturnNoSpecs(t *testing.T) {
	reg := quietRegistry()
	if got := reg.LoadedMCPServers(); len(got) != 0 {
		t.Errorf("expected no servers, got %v", got)
	}
}

func TestRegistry_Close_ShouldKeepNativeTools(t *testing.T) {
	reg := quietRegistry()
	if err := reg.Register(&stubTool{name: "ping"}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if _, err := reg.Get("ping"); err != nil {
		t.Errorf("expected native tool to survive Close: %v", err)
	}
}

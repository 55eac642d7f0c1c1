package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// mcpDialTimeout bounds the initial connect handshake. Package-level so tests
// can shorten it.
var mcpDialTimeout = 30 * time.Second

// MCPServerConfig describes one server entry in an mcpServers JSON file.
// Only the stdio transport is supported: the server runs as a local
// subprocess speaking MCP over its stdin/stdout.
type MCPServerConfig struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Transport string            `json:"transport,omitempty"`
}

// mcpServersFile is the common on-disk layout: a top-level "mcpServers"
// object mapping server names to their configs.
type mcpServersFile struct {
	Servers map[string]MCPServerConfig `json:"mcpServers"`
}

// ParseServerSpec splits a server spec into its config file path and an
// optional server name. "tools/fs.json#files" selects the "files" entry;
// a bare "tools/fs.json" leaves the name empty. A "#" that does not follow
// a .json path is treated as part of the path.
func ParseServerSpec(spec string) (jsonFile, serverName string) {
	if idx := strings.LastIndex(spec, "#"); idx != -1 {
		if strings.HasSuffix(spec[:idx], ".json") {
			return spec[:idx], spec[idx+1:]
		}
	}
	return spec, ""
}

// LoadMCPServersFile reads and parses an mcpServers config file.
func LoadMCPServersFile(path string) (map[string]MCPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config: %w", err)
	}

	var file mcpServersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse mcp config %s: %w", path, err)
	}
	if len(file.Servers) == 0 {
		return nil, fmt.Errorf("no servers defined under mcpServers in %s", path)
	}
	return file.Servers, nil
}

// serverNames returns the sorted keys of a server config map, for error
// messages that list what is available.
func serverNames(configs map[string]MCPServerConfig) []string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mcpNamespace derives the registration prefix for a server spec from its
// config file name: "tools/fs.json#files" and "tools/fs.json" both become
// "fs".
func mcpNamespace(spec string) string {
	jsonFile, _ := ParseServerSpec(spec)
	base := filepath.Base(jsonFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MCPClient owns one connection to an MCP server subprocess. Tools obtained
// from it share the session and stop working once the client is closed.
type MCPClient struct {
	session *mcp.ClientSession
	spec    string
	logger  *slog.Logger
}

// MCPClientOption is a functional option for configuring an MCPClient.
type MCPClientOption func(*MCPClient)

// WithMCPLogger sets a structured logger. A nil logger is ignored.
func WithMCPLogger(l *slog.Logger) MCPClientOption {
	return func(c *MCPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewMCPClient resolves a server spec, picks the matching config entry, and
// connects to it. A spec without a "#name" suffix is only valid when the
// file defines exactly one server.
func NewMCPClient(spec string, opts ...MCPClientOption) (*MCPClient, error) {
	jsonFile, serverName := ParseServerSpec(spec)
	if !strings.HasSuffix(jsonFile, ".json") {
		return nil, fmt.Errorf("mcp servers must be defined in a JSON file, got %s", jsonFile)
	}

	configs, err := LoadMCPServersFile(jsonFile)
	if err != nil {
		return nil, err
	}

	var cfg MCPServerConfig
	switch {
	case serverName != "":
		c, ok := configs[serverName]
		if !ok {
			return nil, fmt.Errorf("server %q not found in %s (available: %v)", serverName, jsonFile, serverNames(configs))
		}
		cfg = c
	case len(configs) == 1:
		for _, c := range configs {
			cfg = c
		}
	default:
		return nil, fmt.Errorf("%s defines multiple servers, use %s#<name> (available: %v)", jsonFile, jsonFile, serverNames(configs))
	}

	client := &MCPClient{spec: spec, logger: slog.Default()}
	for _, opt := range opts {
		opt(client)
	}
	if err := client.connect(cfg); err != nil {
		return nil, err
	}
	return client, nil
}

// connect launches the server subprocess and performs the MCP handshake.
func (c *MCPClient) connect(cfg MCPServerConfig) error {
	if cfg.Transport != "" && cfg.Transport != "stdio" {
		return fmt.Errorf("unsupported transport %q (only stdio is supported)", cfg.Transport)
	}
	if cfg.Command == "" {
		return fmt.Errorf("mcp server config has no command")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for key, value := range cfg.Env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}
	cmd.Stderr = os.Stderr

	c.logger.Info("connecting to mcp server", "command", cfg.Command, "args", cfg.Args)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "toolshim",
		Version: "1.0.0",
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), mcpDialTimeout)
	defer cancel()

	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("connect to mcp server %s: %w", c.spec, err)
	}
	c.session = session
	return nil
}

// Tools lists the server's tools wrapped as SchemaTool implementations. Tool
// names are prefixed with the server's namespace so two servers can expose
// tools with the same remote name.
func (c *MCPClient) Tools(ctx context.Context) ([]*MCPTool, error) {
	namespace := mcpNamespace(c.spec)

	var tools []*MCPTool
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list mcp tools: %w", err)
		}
		if tool == nil {
			continue
		}
		t := newMCPTool(c.session, tool, c.spec, namespace)
		c.logger.Debug("discovered mcp tool", "name", t.Name(), "server", c.spec)
		tools = append(tools, t)
	}
	return tools, nil
}

// Close shuts down the session and its server subprocess.
func (c *MCPClient) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// MCPTool adapts one remote MCP tool to the SchemaTool interface. Its
// Definition is derived from the server-provided input schema, restamped
// with the namespaced name as title.
type MCPTool struct {
	session    *mcp.ClientSession
	remoteName string
	name       string
	desc       string
	definition string
	source     string
}

func newMCPTool(session *mcp.ClientSession, tool *mcp.Tool, source, namespace string) *MCPTool {
	name := tool.Name
	if namespace != "" {
		name = namespace + "__" + tool.Name
	}
	return &MCPTool{
		session:    session,
		remoteName: tool.Name,
		name:       name,
		desc:       tool.Description,
		definition: mcpDefinition(name, tool),
		source:     source,
	}
}

// mcpDefinition renders a tool's input schema as a single-line JSON document
// with title and description filled in. Servers are free to omit the input
// schema or send one we cannot decode; either way the tool still gets a
// minimal object schema so discovery keeps working.
func mcpDefinition(name string, tool *mcp.Tool) string {
	schema := map[string]any{}
	if tool.InputSchema != nil {
		if raw, err := json.Marshal(tool.InputSchema); err == nil {
			if err := json.Unmarshal(raw, &schema); err != nil {
				schema = map[string]any{}
			}
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	schema["title"] = name
	if desc, _ := schema["description"].(string); desc == "" && tool.Description != "" {
		schema["description"] = tool.Description
	}

	out, err := json.Marshal(schema)
	if err != nil {
		return `{"type":"object","title":"` + name + `"}`
	}
	return string(out)
}

// Name returns the namespaced tool name.
func (m *MCPTool) Name() string { return m.name }

// Description returns the server-provided description.
func (m *MCPTool) Description() string { return m.desc }

// Definition returns the tool's input schema as a JSON string.
func (m *MCPTool) Definition() string { return m.definition }

// Source returns the server spec this tool was loaded from.
func (m *MCPTool) Source() string { return m.source }

// Call invokes the remote tool without a deadline.
func (m *MCPTool) Call(args json.RawMessage) (*ToolResult, error) {
	return m.CallContext(context.Background(), args)
}

// CallContext invokes the remote tool over the shared session. Text content
// parts are joined into the result data; anything else is passed through as
// marshaled JSON.
func (m *MCPTool) CallContext(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var arguments map[string]any
	if err := unmarshalFunc(args, &arguments); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	start := time.Now()
	result, err := m.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      m.remoteName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp tool call failed: %w", err)
	}

	data, err := renderContent(result.Content)
	if err != nil {
		return nil, err
	}
	if result.IsError {
		if data == "" {
			return nil, fmt.Errorf("mcp tool %s returned an error without content", m.remoteName)
		}
		return nil, fmt.Errorf("mcp tool %s returned an error: %s", m.remoteName, data)
	}

	return &ToolResult{
		Data: data,
		Metadata: map[string]any{
			"server":      m.source,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	}, nil
}

func renderContent(content []mcp.Content) (string, error) {
	if len(content) == 0 {
		return "", nil
	}

	var texts []string
	for _, c := range content {
		t, ok := c.(*mcp.TextContent)
		if !ok {
			texts = nil
			break
		}
		texts = append(texts, t.Text)
	}
	if texts != nil {
		return strings.Join(texts, "\n"), nil
	}

	out, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal mcp content: %w", err)
	}
	return string(out), nil
}

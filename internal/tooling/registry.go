package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Registry holds SchemaTool implementations keyed by name. The host CLI uses
// it to enumerate tool definitions for discovery and dispatch calls.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]SchemaTool
	logger *slog.Logger

	// sources tracks the command path behind each registered shell tool so
	// directory reloads can tell which entries came from disk.
	sources map[string]string

	// clients maps each MCP tool name to the client that owns its session;
	// serverTools maps a server spec to the tool names it contributed.
	clients     map[string]*MCPClient
	serverTools map[string][]string
}

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets a structured logger. A nil logger is ignored and
// the default slog logger is used.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns an empty, ready-to-use registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:       make(map[string]SchemaTool),
		sources:     make(map[string]string),
		clients:     make(map[string]*MCPClient),
		serverTools: make(map[string][]string),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Returns an error if the tool is nil or a tool with
// the same name is already registered.
func (r *Registry) Register(tool SchemaTool) error {
	if tool == nil {
		return fmt.Errorf("tool must not be nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	r.tools[name] = tool
	if st, ok := tool.(*ShellTool); ok {
		r.sources[name] = st.Source()
	}
	r.logger.Info("registered tool", "name", name)
	return nil
}

// Get returns the tool with the given name or an error if not found.
func (r *Registry) Get(name string) (SchemaTool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %q", name)
	}
	return tool, nil
}

// Remove deletes a tool by name. Removing an unknown name is a no-op. When
// the tool was the last one from its MCP server, the server session is
// closed as well.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	delete(r.sources, name)

	if client, ok := r.clients[name]; ok {
		delete(r.clients, name)
		for spec, names := range r.serverTools {
			remaining := names[:0]
			for _, n := range names {
				if n != name {
					remaining = append(remaining, n)
				}
			}
			if len(remaining) == 0 {
				delete(r.serverTools, spec)
			} else {
				r.serverTools[spec] = remaining
			}
		}
		inUse := false
		for _, c := range r.clients {
			if c == client {
				inUse = true
				break
			}
		}
		if !inUse {
			client.Close()
		}
	}
	r.logger.Info("removed tool", "name", name)
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []SchemaTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SchemaTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Definitions returns a ToolDefinition for every registered tool, sorted by
// name, suitable for presenting to an external caller.
func (r *Registry) Definitions() []ToolDefinition {
	tools := r.List()
	out := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: json.RawMessage(t.Definition()),
		})
	}
	return out
}

// LoadShellTool discovers and registers a single external tool binary.
func (r *Registry) LoadShellTool(path string) error {
	tool, err := NewShellTool(path, nil)
	if err != nil {
		return fmt.Errorf("failed to load shell tool %s: %w", path, err)
	}
	return r.Register(tool)
}

// LoadDir discovers every executable file in dir as a shell tool. A tool
// that fails discovery or collides with an existing name is logged and
// skipped so one bad tool does not abort the load. Returns the number of
// tools registered.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read tools dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Mode()&0111 == 0 {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		tool, err := NewShellTool(path, nil)
		if err != nil {
			r.logger.Warn("skipping tool", "path", path, "error", err)
			continue
		}
		if err := r.Register(tool); err != nil {
			r.logger.Warn("skipping tool", "path", path, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// LoadMCPServer connects to the server described by spec and registers every
// tool it exposes under the server's namespace. The spawned session is owned
// by the registry until UnloadMCPServer or Close.
func (r *Registry) LoadMCPServer(spec string) error {
	client, err := NewMCPClient(spec, WithMCPLogger(r.logger))
	if err != nil {
		return err
	}

	tools, err := client.Tools(context.Background())
	if err != nil {
		client.Close()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for _, tool := range tools {
		name := tool.Name()
		if _, exists := r.tools[name]; exists {
			r.logger.Warn("skipping mcp tool", "name", name, "error", "name already registered")
			continue
		}
		r.tools[name] = tool
		r.clients[name] = client
		names = append(names, name)
		r.logger.Info("registered tool", "name", name, "server", spec)
	}
	if len(names) == 0 {
		client.Close()
		return fmt.Errorf("no tools registered from mcp server %s", spec)
	}
	r.serverTools[spec] = names
	return nil
}

// UnloadMCPServer removes every tool loaded from spec and closes the
// server's session.
func (r *Registry) UnloadMCPServer(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, ok := r.serverTools[spec]
	if !ok {
		return fmt.Errorf("mcp server not loaded: %s", spec)
	}

	var client *MCPClient
	if len(names) > 0 {
		client = r.clients[names[0]]
	}
	for _, name := range names {
		delete(r.tools, name)
		delete(r.clients, name)
		r.logger.Info("removed tool", "name", name)
	}
	if client != nil {
		client.Close()
	}
	delete(r.serverTools, spec)
	return nil
}

// LoadedMCPServers returns the specs of all loaded servers, sorted.
func (r *Registry) LoadedMCPServers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]string, 0, len(r.serverTools))
	for spec := range r.serverTools {
		specs = append(specs, spec)
	}
	sort.Strings(specs)
	return specs
}

// LoadToolAuto loads a path as a shell tool first and falls back to treating
// it as an MCP server spec. Reports which interpretation succeeded.
func (r *Registry) LoadToolAuto(pathOrSpec string) (isShell bool, err error) {
	shellErr := r.LoadShellTool(pathOrSpec)
	if shellErr == nil {
		return true, nil
	}
	mcpErr := r.LoadMCPServer(pathOrSpec)
	if mcpErr == nil {
		return false, nil
	}
	return false, fmt.Errorf("failed to load %s as shell tool (%v) or mcp server (%v)", pathOrSpec, shellErr, mcpErr)
}

// Close unregisters all MCP tools and closes their server sessions. Native
// and shell tools stay registered.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := make(map[*MCPClient]bool)
	for name, client := range r.clients {
		if !closed[client] {
			client.Close()
			closed[client] = true
		}
		delete(r.tools, name)
	}
	r.clients = make(map[string]*MCPClient)
	r.serverTools = make(map[string][]string)
	return nil
}

// ReloadDir removes every shell tool previously loaded from dir and loads
// the directory again. Native tools are untouched.
func (r *Registry) ReloadDir(dir string) (int, error) {
	r.mu.Lock()
	var stale []string
	for name, src := range r.sources {
		if filepath.Dir(src) == filepath.Clean(dir) {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		delete(r.tools, name)
		delete(r.sources, name)
	}
	r.mu.Unlock()

	return r.LoadDir(dir)
}

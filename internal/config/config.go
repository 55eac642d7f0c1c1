package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config controls where the host discovers external tools and how it logs.
type Config struct {
	// ToolsDir is a directory whose executable files are loaded as shell tools.
	ToolsDir string `json:"tools_dir"`
	// Tools lists individual tool binaries to load in addition to ToolsDir.
	Tools []string `json:"tools"`
	// MCPServers lists MCP server specs to connect at startup, each either a
	// config file path or "path#servername".
	MCPServers []string `json:"mcp_servers,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "toolshim.json"

// marshalIndent and writeFile are used by WriteDefault; tests may replace to
// force errors.
var (
	marshalIndent = json.MarshalIndent
	writeFile     = os.WriteFile
)

// Default returns the built-in configuration: tools in ./tools, info logging.
func Default() *Config {
	return &Config{
		ToolsDir: "tools",
		Tools:    []string{},
		LogLevel: "info",
	}
}

// WriteDefault writes a default Config to path. Parent directories are not
// created.
func WriteDefault(path string) error {
	data, err := marshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads path, unmarshals into Config, and cleans all path fields.
// Returns an error if the file is missing or is invalid JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	if c.ToolsDir != "" {
		c.ToolsDir = filepath.Clean(c.ToolsDir)
	}
	for i, p := range c.Tools {
		c.Tools[i] = filepath.Clean(p)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return &c, nil
}

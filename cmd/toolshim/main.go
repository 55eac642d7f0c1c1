// toolshim is the host side of the tool convention: it discovers
// --schema/--execute binaries, registers them alongside native tools, and
// lets a caller list, inspect, and invoke them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"toolshim/internal/config"
	"toolshim/internal/tooling"
)

// version is injectable via ldflags.
var version = "dev"

// buildMeta holds version and build metadata (injectable via ldflags).
type buildMeta struct {
	Version string
	GoOS    string
	GoArch  string
}

func newBuildMeta(version, goos, goarch string) buildMeta {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return buildMeta{Version: version, GoOS: goos, GoArch: goarch}
}

func (m buildMeta) String() string {
	return fmt.Sprintf("toolshim %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

// loadConfig resolves the effective configuration. An explicitly given path
// must exist; the default path is optional and silently falls back to
// defaults when absent. A --tools-dir flag overrides the config value.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		if explicit {
			return nil, err
		}
		cfg = config.Default()
	}

	if dir, _ := cmd.Flags().GetString("tools-dir"); dir != "" {
		cfg.ToolsDir = dir
	}
	return cfg, nil
}

// resolveLogLevel picks the effective log level: an explicitly set
// --log-level flag wins, otherwise the config value applies.
func resolveLogLevel(cmd *cobra.Command, cfg *config.Config) string {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" || !cmd.Flags().Changed("log-level") {
		level = cfg.LogLevel
	}
	return level
}

// newLogger builds the process logger from the configured level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// buildRegistry registers the native tools and loads external tools per the
// config. A missing tools directory is not an error; a broken individual
// tool is logged and skipped.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*tooling.Registry, error) {
	reg := tooling.NewRegistry(tooling.WithRegistryLogger(logger))

	natives := []tooling.SchemaTool{
		&tooling.WeatherTool{},
		&tooling.UpperCaseTool{},
		&tooling.WordCountTool{},
	}
	for _, t := range natives {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}

	for _, path := range cfg.Tools {
		if _, err := reg.LoadToolAuto(path); err != nil {
			logger.Warn("skipping tool", "path", path, "error", err)
		}
	}

	for _, spec := range cfg.MCPServers {
		if err := reg.LoadMCPServer(spec); err != nil {
			logger.Warn("skipping mcp server", "spec", spec, "error", err)
		}
	}

	if cfg.ToolsDir != "" {
		if _, err := os.Stat(cfg.ToolsDir); err == nil {
			if _, err := reg.LoadDir(cfg.ToolsDir); err != nil {
				return nil, err
			}
		}
	}

	return reg, nil
}

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:           "toolshim",
		Short:         "Discover and invoke schema-described tools",
		Long:          "Toolshim hosts native and external --schema/--execute tools behind one registry.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			return cmd.Help()
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")
	root.PersistentFlags().String("config", "", "config file path (default "+config.DefaultPath+" if present)")
	root.PersistentFlags().String("tools-dir", "", "directory of external tool binaries (overrides config)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newListCommand())
	root.AddCommand(newSchemaCommand())
	root.AddCommand(newCallCommand())
	root.AddCommand(newWatchCommand())
	root.AddCommand(newInitCommand())

	return root
}

func setup(cmd *cobra.Command) (*tooling.Registry, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(resolveLogLevel(cmd, cfg))
	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return reg, logger, nil
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			defer reg.Close()
			asJSON, _ := cmd.Flags().GetBool("json")
			defs := reg.Definitions()
			if asJSON {
				data, err := json.MarshalIndent(defs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			for _, d := range defs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", d.Name, d.Description)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print definitions as JSON")
	return cmd
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <tool>",
		Short: "Print a tool's input schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			defer reg.Close()
			tool, err := reg.Get(args[0])
			if err != nil {
				return err
			}
			var pretty json.RawMessage = []byte(tool.Definition())
			data, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newCallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool> [json-args]",
		Short: "Invoke a tool with JSON arguments",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer reg.Close()
			tool, err := reg.Get(args[0])
			if err != nil {
				return err
			}

			payload := json.RawMessage("{}")
			if len(args) > 1 {
				payload = json.RawMessage(args[1])
			}

			if validate, _ := cmd.Flags().GetBool("validate"); validate {
				if err := tooling.ValidateAgainstSchema(payload, tool.Definition()); err != nil {
					return err
				}
			}

			timeout, _ := cmd.Flags().GetDuration("timeout")
			var result *tooling.ToolResult
			if cc, ok := tool.(tooling.ContextCaller); ok && timeout > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				result, err = cc.CallContext(ctx, payload)
			} else {
				result, err = tool.Call(payload)
			}
			if err != nil {
				return err
			}

			logger.Debug("tool call finished", "tool", args[0], "metadata", result.Metadata)
			fmt.Fprintln(cmd.OutOrStdout(), result.Data)
			return nil
		},
	}
	cmd.Flags().Bool("validate", false, "validate arguments against the tool schema first")
	cmd.Flags().Duration("timeout", 0, "bound execution time for external tools")
	return cmd
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Load the tools directory and reload it on changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.ToolsDir == "" {
				return fmt.Errorf("no tools directory configured")
			}
			logger := newLogger(resolveLogLevel(cmd, cfg))
			reg := tooling.NewRegistry(tooling.WithRegistryLogger(logger))

			w := tooling.NewWatcher(cfg.ToolsDir, reg, tooling.WithWatcherLogger(logger))
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.DefaultPath
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists: %s", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func main() {
	root := newRootCommand(newBuildMeta(version, "", ""))
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

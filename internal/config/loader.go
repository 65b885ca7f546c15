package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/chatit-cloud/neuroos/internal/engine"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Assistant
	if t := cfg.Assistant.Temperature; t < 0 || t > 2.0 {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0.0, 2.0]", t))
	}
	if cfg.Assistant.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_tokens %d is negative", cfg.Assistant.MaxTokens))
	}
	if cfg.Assistant.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_tool_rounds %d is negative", cfg.Assistant.MaxToolRounds))
	}

	// Shell bridge
	if cfg.Shell.CallTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("shell.call_timeout_seconds %d is negative", cfg.Shell.CallTimeoutSeconds))
	}

	// Tool toggles
	seen := make(map[string]bool, len(cfg.Tools.Disabled))
	for _, name := range cfg.Tools.Disabled {
		if !engine.Category(name).IsValid() {
			errs = append(errs, fmt.Errorf("tools.disabled entry %q is not a tool category; valid values: %v", name, categoryNames()))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("tools.disabled entry %q is listed twice", name))
		}
		seen[name] = true
	}
	if allToolsDisabled(cfg) {
		slog.Warn("every built-in tool set is disabled; the assistant can only use MCP-imported tools")
	}
	if cfg.Workspace.Root == "" && cfg.Tools.Enabled(engine.CategoryFile) {
		slog.Warn("workspace.root is empty; file tools will use the host's default root")
	}

	// MCP servers
	serverNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
		if srv.Transport == TransportStdio && srv.Auth != nil {
			slog.Warn("mcp server auth is ignored for stdio transport; use env for credential injection",
				"server", srv.Name)
		}
	}

	return errors.Join(errs...)
}

// allToolsDisabled reports whether every engine category appears in
// tools.disabled.
func allToolsDisabled(cfg *Config) bool {
	for _, cat := range engine.Categories() {
		if cfg.Tools.Enabled(cat) {
			return false
		}
	}
	return true
}

func categoryNames() []string {
	cats := engine.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	slices.Sort(names)
	return names
}

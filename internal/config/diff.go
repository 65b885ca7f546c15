package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs. Hot-reloadable
// fields are broken out individually; everything else is summarised in
// RestartRequired so the watcher can tell the operator a reload is not
// enough.
type ConfigDiff struct {
	// LogLevelChanged is true when server.log_level differs. The new level
	// can be applied live through the process's slog.LevelVar.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssistantChanged is true when any assistant tuning field differs.
	// Applied from the next turn onwards.
	AssistantChanged bool

	// RestartRequired lists config sections that differ but cannot be applied
	// without restarting the server (listen address, TLS, workspace, shell
	// bridge, tool toggles, MCP servers).
	RestartRequired []string
}

// Empty reports whether the diff carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AssistantChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Assistant != new.Assistant {
		d.AssistantChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Workspace != new.Workspace {
		d.RestartRequired = append(d.RestartRequired, "workspace")
	}
	if !shellEqual(old.Shell, new.Shell) {
		d.RestartRequired = append(d.RestartRequired, "shell")
	}
	if !slices.Equal(old.Tools.Disabled, new.Tools.Disabled) {
		d.RestartRequired = append(d.RestartRequired, "tools")
	}
	if !slices.EqualFunc(old.MCP.Servers, new.MCP.Servers, mcpServerEqual) {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func shellEqual(a, b ShellConfig) bool {
	return a.CallTimeoutSeconds == b.CallTimeoutSeconds &&
		slices.Equal(a.AllowedOrigins, b.AllowedOrigins)
}

func mcpServerEqual(a, b MCPServerConfig) bool {
	if a.Name != b.Name || a.Transport != b.Transport || a.Command != b.Command || a.URL != b.URL {
		return false
	}
	if (a.Auth == nil) != (b.Auth == nil) {
		return false
	}
	if a.Auth != nil && *a.Auth != *b.Auth {
		return false
	}
	return maps.Equal(a.Env, b.Env)
}

package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/chatit-cloud/neuroos/internal/config"
	"github.com/chatit-cloud/neuroos/internal/engine"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8420"
  log_level: info

assistant:
  persona: A calm, concise desktop assistant.
  temperature: 0.4
  max_tokens: 1024
  max_tool_rounds: 4

workspace:
  root: /home/user/workspace

shell:
  allowed_origins:
    - neuroos.local
  call_timeout_seconds: 10

tools:
  disabled:
    - shell

mcp:
  servers:
    - name: tasks
      transport: stdio
      command: /usr/local/bin/mcp-tasks
      env:
        TASKS_DB: /var/lib/tasks.db
    - name: web
      transport: streamable-http
      url: https://mcp.example.com/mcp
      auth:
        token: secret-token
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8420" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8420")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Assistant.Temperature != 0.4 {
		t.Errorf("assistant.temperature: got %.2f, want 0.4", cfg.Assistant.Temperature)
	}
	if cfg.Assistant.MaxToolRounds != 4 {
		t.Errorf("assistant.max_tool_rounds: got %d, want 4", cfg.Assistant.MaxToolRounds)
	}
	if cfg.Workspace.Root != "/home/user/workspace" {
		t.Errorf("workspace.root: got %q", cfg.Workspace.Root)
	}
	if cfg.Shell.CallTimeoutSeconds != 10 {
		t.Errorf("shell.call_timeout_seconds: got %d, want 10", cfg.Shell.CallTimeoutSeconds)
	}
	if len(cfg.Tools.Disabled) != 1 || cfg.Tools.Disabled[0] != "shell" {
		t.Errorf("tools.disabled: got %v, want [shell]", cfg.Tools.Disabled)
	}
	if len(cfg.MCP.Servers) != 2 {
		t.Fatalf("mcp.servers: got %d, want 2", len(cfg.MCP.Servers))
	}
	if cfg.MCP.Servers[0].Env["TASKS_DB"] != "/var/lib/tasks.db" {
		t.Errorf("mcp.servers[0].env: got %v", cfg.MCP.Servers[0].Env)
	}
	if cfg.MCP.Servers[1].Auth == nil || cfg.MCP.Servers[1].Auth.Token != "secret-token" {
		t.Errorf("mcp.servers[1].auth: got %+v", cfg.MCP.Servers[1].Auth)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	// An empty config should succeed (no required top-level fields).
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_adress: ":8420"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Enums ─────────────────────────────────────────────────────────────────────

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
		{"bananas", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := tc.in.Level(); got != tc.want {
			t.Errorf("LogLevel(%q).Level() = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTransport_IsValid(t *testing.T) {
	t.Parallel()
	if !config.TransportStdio.IsValid() || !config.TransportStreamableHTTP.IsValid() {
		t.Error("known transports reported invalid")
	}
	if config.Transport("http").IsValid() {
		t.Error(`"http" reported valid`)
	}
}

// ── Tool toggles ──────────────────────────────────────────────────────────────

func TestToolsConfig_Enabled(t *testing.T) {
	t.Parallel()
	tc := config.ToolsConfig{Disabled: []string{"shell", "browser"}}

	if tc.Enabled(engine.CategoryShell) {
		t.Error("shell should be disabled")
	}
	if tc.Enabled(engine.CategoryBrowser) {
		t.Error("browser should be disabled")
	}
	if !tc.Enabled(engine.CategoryFile) {
		t.Error("file should stay enabled")
	}

	var empty config.ToolsConfig
	for _, cat := range engine.Categories() {
		if !empty.Enabled(cat) {
			t.Errorf("zero-value ToolsConfig should enable %q", cat)
		}
	}
}

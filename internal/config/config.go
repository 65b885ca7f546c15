// Package config provides the configuration schema, loader, and file watcher
// for the NeuroOS assistant server.
package config

import (
	"log/slog"

	"github.com/chatit-cloud/neuroos/internal/engine"
)

// LogLevel controls log verbosity for the NeuroOS server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the slog level it selects. Empty or unrecognised values
// map to info, matching the server default.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Transport specifies the connection mechanism for an MCP tool server.
type Transport string

const (
	// TransportStdio launches the server as a subprocess and speaks MCP over
	// its stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP connects to a remote MCP endpoint over HTTP.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// Config is the root configuration structure for NeuroOS.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Assistant AssistantConfig `yaml:"assistant"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Shell     ShellConfig     `yaml:"shell"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings for the NeuroOS server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8420").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// LLMConfig selects and parameterises the language-model backend.
type LLMConfig struct {
	// Provider names the backend: one of openai, anthropic, gemini, ollama,
	// deepseek, mistral, groq, llamacpp, llamafile.
	Provider string `yaml:"provider"`

	// Model is the backend's model identifier (e.g. "gpt-4o", "llama3").
	Model string `yaml:"model"`

	// APIKey authenticates against the backend. Empty falls back to the
	// backend's usual environment variable (OPENAI_API_KEY and friends).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint. Useful for
	// OpenAI-compatible proxies and self-hosted servers.
	BaseURL string `yaml:"base_url"`
}

// AssistantConfig tunes the conversational turn loop.
type AssistantConfig struct {
	// Persona is a free-text persona description injected into the LLM system
	// prompt ahead of the tool catalogue.
	Persona string `yaml:"persona"`

	// Temperature controls output randomness in the range [0.0, 2.0].
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps completion tokens per model round. Zero means the
	// provider default.
	MaxTokens int `yaml:"max_tokens"`

	// MaxToolRounds caps how many execute-and-feed-back cycles a single user
	// message may trigger before the assistant must answer with text alone.
	// Zero means the default of 4.
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// WorkspaceConfig locates the sandbox the file tools operate in.
type WorkspaceConfig struct {
	// Root is the directory that relative tool paths resolve against. Hosts
	// that manage their own sandbox may override it per connection.
	Root string `yaml:"root"`
}

// ShellConfig tunes the websocket bridge to the desktop shell.
type ShellConfig struct {
	// AllowedOrigins lists origin patterns accepted for the shell websocket
	// upgrade. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// CallTimeoutSeconds bounds each capability round-trip to the shell.
	// Zero means the default of 10 seconds.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
}

// ToolsConfig toggles the built-in tool plugin sets.
type ToolsConfig struct {
	// Disabled lists tool categories whose built-in set is not registered.
	// Valid entries are the engine's category names: os, file, shell,
	// browser, generate, automation.
	Disabled []string `yaml:"disabled"`
}

// Enabled reports whether the built-in tool set for cat should be registered.
func (t ToolsConfig) Enabled(cat engine.Category) bool {
	for _, d := range t.Disabled {
		if d == string(cat) {
			return false
		}
	}
	return true
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in
	// logs and tool provenance).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is
	// "streamable-http" (e.g., "https://mcp.example.com/mcp"). Ignored for
	// stdio transport.
	URL string `yaml:"url"`

	// Auth configures authentication for streamable-http servers. Ignored
	// for stdio transport (use Env for credential injection instead). When
	// nil, requests are sent without authentication.
	Auth *MCPAuthConfig `yaml:"auth"`

	// Env holds additional environment variables injected into the
	// subprocess when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// MCPAuthConfig configures authentication for HTTP-based MCP servers.
type MCPAuthConfig struct {
	// Token is a static Bearer token sent in the Authorization header of
	// every request.
	Token string `yaml:"token"`
}

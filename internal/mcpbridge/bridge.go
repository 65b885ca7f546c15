// Package mcpbridge imports tools from external MCP servers into the NeuroOS
// tool registry.
//
// It connects to servers via stdio or streamable-HTTP transports using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), converts each
// discovered tool's JSON Schema into the registry's parameter specs, and
// registers a forwarding handler that routes calls back to the owning server
// session. Imported tools appear under the automation category.
//
// Name collisions lose: a tool whose name is already registered (built-in or
// from an earlier server) is logged and skipped. The registry has no
// deregistration, so reconnecting a server keeps the definitions imported
// before; server changes take effect on restart.
package mcpbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"

	"github.com/chatit-cloud/neuroos/internal/config"
	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/observe"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// Bridge owns the client sessions to every connected MCP server. It is safe
// for concurrent use. The zero value is not usable; create instances with
// [New].
type Bridge struct {
	mu       sync.Mutex
	client   *mcpsdk.Client
	sessions map[string]*mcpsdk.ClientSession // key: server name

	logger  *slog.Logger
	metrics *observe.Metrics
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithMetrics sets the metrics sink for the imported-tools counter.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// New creates a Bridge with no connections.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "neuroos", Version: "1.0.0"},
			nil,
		),
		sessions: make(map[string]*mcpsdk.ClientSession),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ConnectAll connects every configured server and imports its tools into
// reg. Servers that fail to connect do not stop the others; their errors
// are joined into the return value so the caller can log and carry on.
func (b *Bridge) ConnectAll(ctx context.Context, cfgs []config.MCPServerConfig, reg *engine.Registry) error {
	var errs []error
	for _, cfg := range cfgs {
		if _, err := b.Connect(ctx, cfg, reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connect establishes a session with the server described by cfg, discovers
// its tool catalogue, and registers each tool with reg. It returns the
// number of tools imported.
func (b *Bridge) Connect(ctx context.Context, cfg config.MCPServerConfig, reg *engine.Registry) (int, error) {
	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		return 0, err
	}
	return b.connect(ctx, cfg.Name, transport, reg)
}

// connect runs the transport-independent part of Connect.
func (b *Bridge) connect(ctx context.Context, name string, transport mcpsdk.Transport, reg *engine.Registry) (int, error) {
	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return 0, fmt.Errorf("mcpbridge: connect to server %q: %w", name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return 0, fmt.Errorf("mcpbridge: list tools for server %q: %w", name, err)
		}
		discovered = append(discovered, tool)
	}

	b.mu.Lock()
	if old, ok := b.sessions[name]; ok {
		_ = old.Close()
	}
	b.sessions[name] = session
	b.mu.Unlock()

	imported := 0
	for _, t := range discovered {
		def := engine.ToolDefinition{
			Name:        t.Name,
			Description: oneLine(t.Description),
			Category:    engine.CategoryAutomation,
			Parameters:  paramsFromSchema(t.InputSchema),
			Handler:     b.makeHandler(name, t.Name),
		}
		if err := reg.Register(def); err != nil {
			if errors.Is(err, engine.ErrDuplicateTool) {
				b.logger.Warn("skipping imported tool with conflicting name",
					"server", name, "tool", t.Name)
			} else {
				b.logger.Warn("skipping malformed imported tool",
					"server", name, "tool", t.Name, "error", err)
			}
			continue
		}
		imported++
	}

	if b.metrics != nil {
		b.metrics.MCPToolsImported.Add(ctx, int64(imported),
			metric.WithAttributes(observe.Attr("server", name)))
	}
	b.logger.Info("imported MCP tools", "server", name, "count", imported, "discovered", len(discovered))
	return imported, nil
}

// makeHandler builds the forwarding handler for one imported tool. The
// session is resolved at call time so a replaced connection is picked up.
func (b *Bridge) makeHandler(server, tool string) engine.Handler {
	return func(ctx context.Context, args map[string]any, _ *host.Context) (engine.ToolResult, error) {
		b.mu.Lock()
		session, ok := b.sessions[server]
		b.mu.Unlock()
		if !ok {
			return engine.ToolResult{}, fmt.Errorf("mcpbridge: server %q is not connected", server)
		}

		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      tool,
			Arguments: args,
		})
		if err != nil {
			return engine.ToolResult{}, fmt.Errorf("mcpbridge: call %q on server %q: %w", tool, server, err)
		}

		text := textContent(res)
		if res.IsError {
			if text == "" {
				text = fmt.Sprintf("The %s tool reported an error.", tool)
			}
			return engine.ToolResult{Success: false, Message: text}, nil
		}
		if text == "" {
			text = fmt.Sprintf("The %s tool completed.", tool)
		}
		return engine.ToolResult{Success: true, Message: text}, nil
	}
}

// Sessions returns the names of servers with a live session, sorted. Used
// by the readiness probe to compare against the configured server list.
func (b *Bridge) Sessions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.sessions))
	for name := range b.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down every server session. The Bridge must not be used after
// Close returns.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, session := range b.sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcpbridge: close server %q: %w", name, err))
		}
		delete(b.sessions, name)
	}
	return errors.Join(errs...)
}

// buildTransport constructs the SDK transport for cfg.
func buildTransport(ctx context.Context, cfg config.MCPServerConfig) (mcpsdk.Transport, error) {
	switch cfg.Transport {
	case config.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("mcpbridge: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil

	case config.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcpbridge: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		httpClient := http.DefaultClient
		if cfg.Auth != nil && cfg.Auth.Token != "" {
			httpClient = &http.Client{
				Transport: &bearerTransport{token: cfg.Auth.Token, base: http.DefaultTransport},
			}
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient}, nil

	default:
		return nil, fmt.Errorf("mcpbridge: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}
}

// bearerTransport adds a bearer token to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// oneLine collapses whitespace runs so multiline server descriptions cannot
// break the line-oriented prompt catalogue.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textContent concatenates the text parts of a call result.
func textContent(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// Package app wires all NeuroOS subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New builds the tool registry,
// registers the built-in capability plugins, connects external MCP servers,
// and assembles the HTTP surface; Run starts the automation scheduler and
// serves HTTP until the context is cancelled; Shutdown tears everything down
// in order.
//
// Each connected desktop shell gets its own [assistant.Runner] whose
// capability context is backed by the shell's websocket connection, so two
// shells never share conversation history or tool state.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatit-cloud/neuroos/internal/assistant"
	"github.com/chatit-cloud/neuroos/internal/automation"
	"github.com/chatit-cloud/neuroos/internal/config"
	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/health"
	"github.com/chatit-cloud/neuroos/internal/mcpbridge"
	"github.com/chatit-cloud/neuroos/internal/observe"
	"github.com/chatit-cloud/neuroos/internal/shellrpc"
	"github.com/chatit-cloud/neuroos/internal/tools/automationtools"
	"github.com/chatit-cloud/neuroos/internal/tools/browsertools"
	"github.com/chatit-cloud/neuroos/internal/tools/filetools"
	"github.com/chatit-cloud/neuroos/internal/tools/generatetools"
	"github.com/chatit-cloud/neuroos/internal/tools/ostools"
	"github.com/chatit-cloud/neuroos/internal/tools/shelltools"
	"github.com/chatit-cloud/neuroos/pkg/host"
	"github.com/chatit-cloud/neuroos/pkg/provider/llm"
)

// shutdownTimeout bounds the graceful HTTP drain inside Shutdown when the
// caller's context has no earlier deadline.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	provider llm.Provider

	registry  *engine.Registry
	scheduler *automation.Scheduler
	bridge    *mcpbridge.Bridge

	logger  *slog.Logger
	metrics *observe.Metrics

	handler http.Handler
	server  *http.Server

	// mu guards the active shell bookkeeping. The scheduler delivers
	// reminders through whichever shell connected most recently.
	mu          sync.Mutex
	activeShell *shellrpc.Conn
	runners     map[*shellrpc.Conn]*assistant.Runner

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics sets the metrics handle shared by every subsystem. Nil leaves
// metric recording disabled, which tests rely on.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMCPBridge injects an MCP bridge instead of creating one. The app still
// calls ConnectAll on it with the configured servers.
func WithMCPBridge(b *mcpbridge.Bridge) Option {
	return func(a *App) { a.bridge = b }
}

// New builds the daemon: tool registry with the enabled built-in sets, the
// automation scheduler, connections to every configured MCP server, and the
// HTTP surface. provider must be non-nil; it is shared by every shell
// connection's runner.
//
// MCP servers that fail to connect are logged and skipped so one unreachable
// server cannot keep the daemon from starting.
func New(ctx context.Context, cfg *config.Config, provider llm.Provider, opts ...Option) (*App, error) {
	if provider == nil {
		return nil, errors.New("app: an llm provider is required")
	}

	a := &App{
		cfg:      cfg,
		provider: provider,
		logger:   slog.Default(),
		runners:  make(map[*shellrpc.Conn]*assistant.Runner),
	}
	for _, o := range opts {
		o(a)
	}

	a.scheduler = automation.New(
		automation.WithLogger(a.logger),
		automation.WithMetrics(a.metrics),
	)

	a.registry = engine.NewRegistry()
	if err := a.registerBuiltinTools(); err != nil {
		return nil, fmt.Errorf("app: register tools: %w", err)
	}

	if a.bridge == nil {
		a.bridge = mcpbridge.New(
			mcpbridge.WithLogger(a.logger),
			mcpbridge.WithMetrics(a.metrics),
		)
	}
	if err := a.bridge.ConnectAll(ctx, cfg.MCP.Servers, a.registry); err != nil {
		a.logger.Warn("some MCP servers failed to connect", "error", err)
	}

	a.handler = a.buildRouter()
	a.server = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: a.handler,
	}

	a.logger.Info("app initialised",
		"tools", a.registry.Len(),
		"mcp_servers", len(a.bridge.Sessions()),
	)
	return a, nil
}

// registerBuiltinTools registers every enabled plugin set. The sets declare
// disjoint tool names, so a duplicate here is a programming error worth
// failing startup over.
func (a *App) registerBuiltinTools() error {
	sets := []struct {
		category engine.Category
		defs     []engine.ToolDefinition
	}{
		{engine.CategoryOS, ostools.NewTools()},
		{engine.CategoryFile, filetools.NewTools()},
		{engine.CategoryShell, shelltools.NewTools()},
		{engine.CategoryBrowser, browsertools.NewTools()},
		{engine.CategoryGenerate, generatetools.NewTools()},
		{engine.CategoryAutomation, automationtools.NewTools(a.scheduler)},
	}
	for _, set := range sets {
		if !a.cfg.Tools.Enabled(set.category) {
			a.logger.Info("built-in tool set disabled", "category", set.category)
			continue
		}
		if err := a.registry.RegisterAll(set.defs); err != nil {
			return err
		}
	}
	return nil
}

// buildRouter assembles the HTTP surface: health probes, the Prometheus
// scrape endpoint, and the shell websocket upgrade.
func (a *App) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Middleware(a.metrics))

	health.New(a.checkers()...).Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/shell/ws", a.handleShellWS)

	return r
}

// checkers builds the readiness checks: the scheduler must be constructed
// and every configured MCP server must hold a live session. A connected
// shell is a client, not a dependency, so it does not gate readiness.
func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "scheduler",
			Check: func(context.Context) error {
				if a.scheduler == nil {
					return errors.New("scheduler not initialised")
				}
				return nil
			},
		},
		{
			Name: "mcp",
			Check: func(context.Context) error {
				live := make(map[string]bool)
				for _, name := range a.bridge.Sessions() {
					live[name] = true
				}
				var missing []string
				for _, srv := range a.cfg.MCP.Servers {
					if !live[srv.Name] {
						missing = append(missing, srv.Name)
					}
				}
				if len(missing) > 0 {
					return fmt.Errorf("servers not connected: %v", missing)
				}
				return nil
			},
		},
	}
}

// Handler returns the HTTP surface for serving through a test server.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Registry returns the shared tool registry.
func (a *App) Registry() *engine.Registry {
	return a.registry
}

// ─── Shell sessions ──────────────────────────────────────────────────────────

// handleShellWS upgrades a desktop shell connection and serves it until it
// disconnects. Each connection gets its own runner whose capability context
// is backed by this websocket.
func (a *App) handleShellWS(w http.ResponseWriter, r *http.Request) {
	timeout := time.Duration(a.cfg.Shell.CallTimeoutSeconds) * time.Second
	conn, err := shellrpc.Accept(w, r,
		shellrpc.WithLogger(a.logger),
		shellrpc.WithMetrics(a.metrics),
		shellrpc.WithCallTimeout(timeout),
		shellrpc.WithOriginPatterns(a.cfg.Shell.AllowedOrigins),
	)
	if err != nil {
		a.logger.Warn("shell upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	runner := assistant.New(a.provider, a.registry,
		func() *host.Context { return conn.HostContext(a.cfg.Workspace.Root) },
		a.cfg.Assistant,
		assistant.WithLogger(a.logger),
		assistant.WithMetrics(a.metrics),
		assistant.WithDisplay(conn.SendDisplay),
	)
	conn.OnUserMessage(func(ctx context.Context, text string) {
		if _, err := runner.RunTurn(ctx, text); err != nil {
			a.logger.Error("assistant turn failed", "error", err)
			if err := conn.AppendMessage(ctx, "system",
				"The assistant hit an internal error on that message. Try again in a moment."); err != nil {
				a.logger.Warn("failed to report turn error to shell", "error", err)
			}
		}
	})

	a.bindShell(conn, runner)
	defer a.unbindShell(conn)

	if err := conn.Run(r.Context()); err != nil {
		a.logger.Warn("shell session ended with error", "error", err)
	}
}

// bindShell points reminder delivery at conn and tracks its runner for live
// tuning updates.
func (a *App) bindShell(conn *shellrpc.Conn, runner *assistant.Runner) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activeShell = conn
	a.runners[conn] = runner
	a.scheduler.Bind(conn)
}

// unbindShell detaches conn. Reminder delivery only unbinds when conn is
// still the active shell; a newer connection keeps its binding.
func (a *App) unbindShell(conn *shellrpc.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.runners, conn)
	if a.activeShell == conn {
		a.activeShell = nil
		a.scheduler.Bind(nil)
	}
}

// UpdateAssistantTuning applies reloaded assistant settings to every live
// runner. Turns already in flight keep the tuning they started with.
func (a *App) UpdateAssistantTuning(cfg config.AssistantConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Assistant = cfg
	for _, runner := range a.runners {
		runner.UpdateTuning(cfg)
	}
	a.logger.Info("assistant tuning updated",
		"max_tool_rounds", cfg.MaxToolRounds, "temperature", cfg.Temperature)
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run starts the scheduler and serves HTTP until ctx is cancelled or the
// listener fails. On cancellation it returns ctx's error after the listener
// stops; call Shutdown afterwards to tear down the remaining subsystems.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.logger.Info("serving", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(drainCtx); err != nil {
			a.logger.Warn("http drain incomplete", "error", err)
		}
		return ctx.Err()
	}
}

// Shutdown tears down the scheduler and MCP sessions. Safe to call more
// than once; Run must have returned first so no turn is mid-flight.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down")

		done := make(chan struct{})
		go func() {
			a.scheduler.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.logger.Warn("scheduler stop exceeded shutdown deadline")
			err = ctx.Err()
			return
		}

		if cerr := a.bridge.Close(); cerr != nil {
			a.logger.Warn("mcp bridge close error", "error", cerr)
		}
		a.logger.Info("shutdown complete")
	})
	return err
}

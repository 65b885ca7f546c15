// Command neuroos is the AI-assistant daemon behind the NeuroOS desktop
// shell. It serves the shell websocket, health probes, and the Prometheus
// scrape endpoint, and runs assistant turns against the configured LLM
// backend.
//
// Run with -demo to execute one scripted turn against in-memory fakes and
// exit; no shell, network, or configuration file is needed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatit-cloud/neuroos/internal/app"
	"github.com/chatit-cloud/neuroos/internal/assistant"
	"github.com/chatit-cloud/neuroos/internal/automation"
	"github.com/chatit-cloud/neuroos/internal/config"
	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/observe"
	"github.com/chatit-cloud/neuroos/internal/tools/automationtools"
	"github.com/chatit-cloud/neuroos/internal/tools/browsertools"
	"github.com/chatit-cloud/neuroos/internal/tools/filetools"
	"github.com/chatit-cloud/neuroos/internal/tools/generatetools"
	"github.com/chatit-cloud/neuroos/internal/tools/ostools"
	"github.com/chatit-cloud/neuroos/internal/tools/shelltools"
	"github.com/chatit-cloud/neuroos/pkg/host"
	hostmock "github.com/chatit-cloud/neuroos/pkg/host/mock"
	"github.com/chatit-cloud/neuroos/pkg/provider/llm"
	llmmock "github.com/chatit-cloud/neuroos/pkg/provider/llm/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	demo := flag.Bool("demo", false, "run one scripted assistant turn against in-memory fakes and exit")
	flag.Parse()

	if *demo {
		return runDemo()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "neuroos: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "neuroos: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can change it without
	// rebuilding the handler.
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("neuroos starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "neuroos"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── LLM provider ──────────────────────────────────────────────────────────
	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, provider, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			levelVar.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.AssistantChanged {
			application.UpdateAssistantTuning(new.Assistant)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config sections changed that need a restart to apply",
				"sections", d.RestartRequired)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── LLM provider wiring ───────────────────────────────────────────────────────

// buildProvider resolves the configured LLM backend. The repository ships
// the provider port plus the scriptable mock; vendor adapters implement
// [llm.Provider] and get a case here.
func buildProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "mock":
		return &llmmock.Provider{Script: demoScript}, nil
	case "":
		return nil, errors.New("llm.provider is not configured")
	default:
		return nil, fmt.Errorf("llm provider %q has no bundled adapter; implement llm.Provider for it and wire it into buildProvider", cfg.Provider)
	}
}

// ── Demo mode ─────────────────────────────────────────────────────────────────

// demoScript is the canned model behaviour for -demo and the mock provider:
// a first response carrying two tool calls, then a closing answer.
var demoScript = []string{
	"On it — opening your notes and saving the reminder.\n\n" +
		"```json\n{\"tool\": \"open_app\", \"args\": {\"app\": \"notes\"}}\n```\n" +
		"```json\n{\"tool\": \"write_file\", \"args\": {\"path\": \"notes/todo.txt\", \"content\": \"buy milk\"}}\n```",
	"Done! Your notes app is open and I saved \"buy milk\" to notes/todo.txt.",
}

// runDemo executes one assistant turn against the in-memory host and the
// scripted provider, then prints what the shell would have shown.
func runDemo() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := automation.New(automation.WithLogger(logger))
	scheduler.Start()
	defer scheduler.Stop()

	registry := engine.NewRegistry()
	for _, defs := range [][]engine.ToolDefinition{
		ostools.NewTools(),
		filetools.NewTools(),
		shelltools.NewTools(),
		browsertools.NewTools(),
		generatetools.NewTools(),
		automationtools.NewTools(scheduler),
	} {
		if err := registry.RegisterAll(defs); err != nil {
			fmt.Fprintf(os.Stderr, "neuroos: demo setup: %v\n", err)
			return 1
		}
	}

	shell := &hostmock.Host{}
	runner := assistant.New(
		&llmmock.Provider{Script: demoScript},
		registry,
		func() *host.Context { return shell.Context() },
		config.AssistantConfig{},
		assistant.WithLogger(logger),
	)

	const userMessage = "Open my notes and jot down: buy milk"
	fmt.Printf("user > %s\n\n", userMessage)

	reply, err := runner.RunTurn(ctx, userMessage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neuroos: demo turn: %v\n", err)
		return 1
	}

	fmt.Printf("assistant > %s\n\n", reply)
	fmt.Println("shell transcript:")
	for _, msg := range shell.Transcript() {
		fmt.Printf("  [%s] %s\n", msg.Role, msg.Text)
	}
	if data, ok := shell.FileContents("notes/todo.txt"); ok {
		fmt.Printf("\nworkspace notes/todo.txt: %q\n", data)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         NeuroOS — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("LLM", cfg.LLM.Provider+" / "+cfg.LLM.Model)
	printEntry("Workspace", cfg.Workspace.Root)
	printEntry("Listen addr", cfg.Server.ListenAddr)
	printEntry("Tools disabled", fmt.Sprintf("%d", len(cfg.Tools.Disabled)))
	printEntry("MCP servers", fmt.Sprintf("%d", len(cfg.MCP.Servers)))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" || value == " / " {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

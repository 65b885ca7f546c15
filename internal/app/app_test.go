package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/chatit-cloud/neuroos/internal/app"
	"github.com/chatit-cloud/neuroos/internal/config"
	llmmock "github.com/chatit-cloud/neuroos/pkg/provider/llm/mock"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Workspace: config.WorkspaceConfig{Root: "/workspace"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp builds an App against the mock provider with no MCP servers.
func newTestApp(t *testing.T, cfg *config.Config, provider *llmmock.Provider) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, provider, app.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

// ── Construction ──────────────────────────────────────────────────────────────

func TestNew_RegistersBuiltinTools(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), &llmmock.Provider{})

	names := a.Registry().Names()
	for _, want := range []string{
		"open_app", "list_windows",
		"read_file", "write_file",
		"run_command",
		"open_url", "web_search",
		"generate_widget",
		"schedule_task", "remember",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("registry is missing built-in tool %q (have %v)", want, names)
		}
	}
}

func TestNew_DisabledCategoriesAreSkipped(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Tools.Disabled = []string{"shell", "browser"}
	a := newTestApp(t, cfg, &llmmock.Provider{})

	names := a.Registry().Names()
	for _, gone := range []string{"run_command", "open_url", "web_search", "read_page"} {
		if slices.Contains(names, gone) {
			t.Errorf("tool %q registered despite its category being disabled", gone)
		}
	}
	if !slices.Contains(names, "read_file") {
		t.Error("file tools should stay registered when only shell and browser are disabled")
	}
}

func TestNew_RequiresProvider(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), testConfig(), nil); err == nil {
		t.Fatal("New accepted a nil provider")
	}
}

// ── HTTP surface ──────────────────────────────────────────────────────────────

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), &llmmock.Provider{})
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200 (body %s)", path, resp.StatusCode, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), &llmmock.Provider{})
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", resp.StatusCode)
	}
}

// ── Shell session end to end ──────────────────────────────────────────────────

// shellFrame is any frame the engine may send: capability requests carry an
// id and method, display frames carry a stream marker.
type shellFrame struct {
	ID     uint64         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
	Stream string         `json:"stream"`
	Text   string         `json:"text"`
}

// dialShell connects to the app's websocket endpoint as a desktop shell.
func dialShell(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/shell/ws"
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial shell: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "test done") })
	return ws
}

func writeFrame(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) shellFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f shellFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame %q: %v", data, err)
	}
	return f
}

// TestShellSession_TurnWithToolCall drives a full turn through the HTTP
// surface: the fake shell sends a user message, the scripted model answers
// with an open_app call, and the shell serves the window.open round-trip
// plus the transcript appends.
func TestShellSession_TurnWithToolCall(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Script: []string{
		"Opening notes.\n```json\n{\"tool\": \"open_app\", \"args\": {\"app\": \"notes\"}}\n```",
		"Your notes are open.",
	}}
	a := newTestApp(t, testConfig(), provider)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	ws := dialShell(t, srv)
	writeFrame(t, ws, map[string]any{"event": "user_message", "text": "Open my notes"})

	var (
		sawWindowOpen bool
		appends       []string
		drafts        []string
	)
	// The turn is done once the final assistant text lands in the transcript.
	for !slices.Contains(appends, "Your notes are open.") {
		f := readFrame(t, ws)
		switch {
		case f.Stream == "display":
			drafts = append(drafts, f.Text)
		case f.Method == "window.open":
			sawWindowOpen = true
			writeFrame(t, ws, map[string]any{"id": f.ID, "result": map[string]any{"id": "win-1"}})
		case f.Method == "conversation.append":
			appends = append(appends, f.Params["text"].(string))
			writeFrame(t, ws, map[string]any{"id": f.ID, "result": map[string]any{}})
		default:
			t.Fatalf("unexpected frame: %+v", f)
		}
	}

	if !sawWindowOpen {
		t.Error("the open_app call never reached the shell as window.open")
	}
	if !slices.Contains(appends, "Opening notes.") {
		t.Errorf("sanitized first response missing from transcript: %v", appends)
	}
	found := false
	for _, text := range appends {
		if strings.Contains(text, "Opened notes in window win-1") {
			found = true
		}
	}
	if !found {
		t.Errorf("tool result missing from transcript: %v", appends)
	}
	for _, d := range drafts {
		if strings.Contains(d, "{\"tool\"") || strings.Contains(d, "```") {
			t.Errorf("display draft leaked call syntax: %q", d)
		}
	}
}

// TestShellSession_PlainTurn covers the no-tool path: the reply streams as
// display drafts and lands in the transcript once.
func TestShellSession_PlainTurn(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Script: []string{"Hello! How can I help?"}}
	a := newTestApp(t, testConfig(), provider)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	ws := dialShell(t, srv)
	writeFrame(t, ws, map[string]any{"event": "user_message", "text": "hi"})

	for {
		f := readFrame(t, ws)
		if f.Stream == "display" {
			continue
		}
		if f.Method != "conversation.append" {
			t.Fatalf("unexpected frame: %+v", f)
		}
		if got := f.Params["text"].(string); got != "Hello! How can I help?" {
			t.Fatalf("transcript text = %q", got)
		}
		writeFrame(t, ws, map[string]any{"id": f.ID, "result": map[string]any{}})
		return
	}
}

func TestUpdateAssistantTuning_ReplacesConfig(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), &llmmock.Provider{})
	a.UpdateAssistantTuning(config.AssistantConfig{MaxToolRounds: 9})
	// No live runners to observe here; the call must simply not race or panic.
	a.UpdateAssistantTuning(config.AssistantConfig{MaxToolRounds: 2})
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), &llmmock.Provider{})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

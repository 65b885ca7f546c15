package assistant_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/chatit-cloud/neuroos/internal/assistant"
	"github.com/chatit-cloud/neuroos/internal/config"
	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/pkg/host"
	hostmock "github.com/chatit-cloud/neuroos/pkg/host/mock"
	"github.com/chatit-cloud/neuroos/pkg/provider/llm"
	llmmock "github.com/chatit-cloud/neuroos/pkg/provider/llm/mock"
)

// ── Helpers ────────────────────────────────────────────────────────────────────

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fencedCall(body string) string {
	return "```json\n" + body + "\n```"
}

// toolRecorder captures handler invocations in order.
type toolRecorder struct {
	calls []map[string]any
}

func (tr *toolRecorder) handler(res engine.ToolResult) engine.Handler {
	return func(_ context.Context, args map[string]any, _ *host.Context) (engine.ToolResult, error) {
		tr.calls = append(tr.calls, args)
		return res, nil
	}
}

// notesRegistry registers open_notes, the workhorse tool of these tests.
func notesRegistry(t *testing.T, rec *toolRecorder) *engine.Registry {
	t.Helper()
	reg := engine.NewRegistry()
	err := reg.Register(engine.ToolDefinition{
		Name:        "open_notes",
		Description: "Opens a notes file in an editor window.",
		Category:    engine.CategoryFile,
		Parameters: map[string]engine.ParamSpec{
			"path": {Type: engine.TypeString, Description: "Workspace path of the file."},
		},
		Handler: rec.handler(engine.ToolResult{
			Success: true,
			Message: "Opened todo.md in window win-1.",
			Data:    map[string]any{"window_id": "win-1"},
		}),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func newRunner(t *testing.T, p llm.Provider, reg *engine.Registry, h *hostmock.Host, cfg config.AssistantConfig, opts ...assistant.Option) *assistant.Runner {
	t.Helper()
	opts = append([]assistant.Option{assistant.WithLogger(quiet())}, opts...)
	return assistant.New(p, reg, h.Context, cfg, opts...)
}

func toolMessages(req llm.CompletionRequest) []llm.Message {
	var out []llm.Message
	for _, m := range req.Messages {
		if m.Role == "tool" {
			out = append(out, m)
		}
	}
	return out
}

// ── Plain answers and prompt assembly ──────────────────────────────────────────

func TestRunTurn_PlainAnswer(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{"Hello! How can I help?"}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{
		Persona:     "You are Neuro, the desktop assistant.",
		Temperature: 0.4,
		MaxTokens:   512,
	})

	reply, err := r.RunTurn(context.Background(), "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply != "Hello! How can I help?" {
		t.Errorf("reply = %q", reply)
	}
	if len(rec.calls) != 0 {
		t.Errorf("no tool should have run, got %d calls", len(rec.calls))
	}
	if len(p.StreamCalls) != 1 {
		t.Fatalf("StreamCompletion called %d times, want 1", len(p.StreamCalls))
	}

	req := p.StreamCalls[0].Req
	if req.Temperature != 0.4 || req.MaxTokens != 512 {
		t.Errorf("request tuning = (%v, %v), want (0.4, 512)", req.Temperature, req.MaxTokens)
	}
	if want := []llm.Message{{Role: "user", Content: "hi"}}; !reflect.DeepEqual(req.Messages, want) {
		t.Errorf("request messages = %+v, want %+v", req.Messages, want)
	}
	for _, fragment := range []string{
		"You are Neuro, the desktop assistant.",
		"```json",
		"[FILE]",
		"- open_notes: Opens a notes file in an editor window.",
		"path (string, required): Workspace path of the file.",
	} {
		if !strings.Contains(req.SystemPrompt, fragment) {
			t.Errorf("system prompt missing %q", fragment)
		}
	}

	want := []hostmock.Message{{Role: "assistant", Text: "Hello! How can I help?"}}
	if got := h.Transcript(); !reflect.DeepEqual(got, want) {
		t.Errorf("transcript = %+v, want %+v", got, want)
	}
}

// ── Call execution and feedback ────────────────────────────────────────────────

func TestRunTurn_ExecutesCallAndFeedsResultBack(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{
		"Let me open that.\n\n" + fencedCall(`{"tool": "open_notes", "args": {"path": "todo.md"}}`),
		"Done! Your notes are open.",
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	reply, err := r.RunTurn(context.Background(), "open my todo list")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if want := "Let me open that.\n\nDone! Your notes are open."; reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}

	if len(rec.calls) != 1 {
		t.Fatalf("handler ran %d times, want 1", len(rec.calls))
	}
	if got := rec.calls[0]["path"]; got != "todo.md" {
		t.Errorf("handler args path = %v, want todo.md", got)
	}

	if len(p.StreamCalls) != 2 {
		t.Fatalf("StreamCompletion called %d times, want 2", len(p.StreamCalls))
	}
	second := p.StreamCalls[1].Req

	// The model must see its own raw output, call syntax included.
	var sawRaw bool
	for _, m := range second.Messages {
		if m.Role == "assistant" && strings.Contains(m.Content, "```json") {
			sawRaw = true
		}
	}
	if !sawRaw {
		t.Error("second request has no assistant message carrying the raw call block")
	}

	tms := toolMessages(second)
	if len(tms) != 1 {
		t.Fatalf("second request has %d tool messages, want 1", len(tms))
	}
	if tms[0].Name != "open_notes" {
		t.Errorf("tool message Name = %q, want open_notes", tms[0].Name)
	}
	if !strings.Contains(tms[0].Content, "Opened todo.md in window win-1.") {
		t.Errorf("tool message missing result text: %q", tms[0].Content)
	}
	if !strings.Contains(tms[0].Content, `{"window_id":"win-1"}`) {
		t.Errorf("tool message missing data payload: %q", tms[0].Content)
	}

	want := []hostmock.Message{
		{Role: "assistant", Text: "Let me open that."},
		{Role: "tool", Text: "Opened todo.md in window win-1."},
		{Role: "assistant", Text: "Done! Your notes are open."},
	}
	if got := h.Transcript(); !reflect.DeepEqual(got, want) {
		t.Errorf("transcript = %+v, want %+v", got, want)
	}
}

func TestRunTurn_MultipleCallsRunInOrder(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{
		"Two steps.\n\n" +
			fencedCall(`{"tool": "open_notes", "args": {"path": "a.md"}}`) + "\n\n" +
			fencedCall(`{"tool": "open_notes", "args": {"path": "b.md"}}`),
		"Both open.",
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	if _, err := r.RunTurn(context.Background(), "open both"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(rec.calls) != 2 {
		t.Fatalf("handler ran %d times, want 2", len(rec.calls))
	}
	if rec.calls[0]["path"] != "a.md" || rec.calls[1]["path"] != "b.md" {
		t.Errorf("calls out of order: %v", rec.calls)
	}

	tms := toolMessages(p.StreamCalls[1].Req)
	if len(tms) != 2 {
		t.Errorf("second request has %d tool messages, want 2", len(tms))
	}
}

func TestRunTurn_ScannerTierCallExecutes(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{
		`On it. {"tool": "open_notes", "args": {"path": "todo.md"}}`,
		"Opened.",
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	reply, err := r.RunTurn(context.Background(), "open it")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("handler ran %d times, want 1", len(rec.calls))
	}
	if !strings.HasPrefix(reply, "On it.") {
		t.Errorf("reply = %q, want prefix %q", reply, "On it.")
	}
}

func TestRunTurn_UnknownToolGetsCorrectionFeedback(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{
		"Opening.\n\n" + fencedCall(`{"tool": "opne_notes", "args": {"path": "x"}}`),
		"Sorry, let me try again.",
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	reply, err := r.RunTurn(context.Background(), "open notes")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("handler ran %d times for a misspelled name, want 0", len(rec.calls))
	}
	if !strings.HasSuffix(reply, "Sorry, let me try again.") {
		t.Errorf("reply = %q", reply)
	}

	tms := toolMessages(p.StreamCalls[1].Req)
	if len(tms) != 1 {
		t.Fatalf("second request has %d tool messages, want 1", len(tms))
	}
	if !strings.Contains(tms[0].Content, `Unknown tool "opne_notes"`) {
		t.Errorf("feedback missing unknown-tool notice: %q", tms[0].Content)
	}
	if !strings.Contains(tms[0].Content, `Did you mean "open_notes"?`) {
		t.Errorf("feedback missing suggestion: %q", tms[0].Content)
	}
}

func TestRunTurn_DisplayOnlyResultNotFedToModel(t *testing.T) {
	t.Parallel()
	rec := &toolRecorder{}
	reg := engine.NewRegistry()
	err := reg.Register(engine.ToolDefinition{
		Name:        "show_windows",
		Description: "Shows the open windows to the user.",
		Category:    engine.CategoryOS,
		Handler: rec.handler(engine.ToolResult{
			Success:     true,
			Message:     "You have 2 windows open.",
			DisplayOnly: true,
		}),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	p := &llmmock.Provider{Script: []string{
		"Looking.\n\n" + fencedCall(`{"tool": "show_windows", "args": {}}`),
		"Anything else?",
	}}
	h := &hostmock.Host{}
	r := newRunner(t, p, reg, h, config.AssistantConfig{})

	reply, err := r.RunTurn(context.Background(), "what's open?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if want := "Looking.\n\nAnything else?"; reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}

	if tms := toolMessages(p.StreamCalls[1].Req); len(tms) != 0 {
		t.Errorf("display-only result leaked into the model request: %+v", tms)
	}

	var sawToolEntry bool
	for _, m := range h.Transcript() {
		if m.Role == "tool" && m.Text == "You have 2 windows open." {
			sawToolEntry = true
		}
	}
	if !sawToolEntry {
		t.Error("display-only result missing from the transcript")
	}
}

func TestRunTurn_CallOnlyResponseYieldsFinalTextOnly(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{
		fencedCall(`{"tool": "open_notes", "args": {"path": "todo.md"}}`),
		"Done.",
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	reply, err := r.RunTurn(context.Background(), "open it")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply != "Done." {
		t.Errorf("reply = %q, want %q", reply, "Done.")
	}

	want := []hostmock.Message{
		{Role: "tool", Text: "Opened todo.md in window win-1."},
		{Role: "assistant", Text: "Done."},
	}
	if got := h.Transcript(); !reflect.DeepEqual(got, want) {
		t.Errorf("transcript = %+v, want %+v", got, want)
	}
}

// ── Round limits ───────────────────────────────────────────────────────────────

func TestRunTurn_RoundLimitStopsExecution(t *testing.T) {
	t.Parallel()
	// A single script entry repeats forever, so every response carries a call.
	p := &llmmock.Provider{Script: []string{
		"Checking again.\n\n" + fencedCall(`{"tool": "open_notes", "args": {"path": "a.md"}}`),
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{MaxToolRounds: 2})

	reply, err := r.RunTurn(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(rec.calls) != 2 {
		t.Errorf("handler ran %d times, want 2", len(rec.calls))
	}
	if len(p.StreamCalls) != 3 {
		t.Errorf("StreamCompletion called %d times, want 3", len(p.StreamCalls))
	}
	if got := strings.Count(reply, "Checking again."); got != 3 {
		t.Errorf("reply carries %d narration rounds, want 3: %q", got, reply)
	}
}

func TestRunTurn_DefaultRoundLimit(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{
		fencedCall(`{"tool": "open_notes", "args": {"path": "a.md"}}`),
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	if _, err := r.RunTurn(context.Background(), "loop"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(rec.calls) != 4 {
		t.Errorf("handler ran %d times, want the default 4", len(rec.calls))
	}
	if len(p.StreamCalls) != 5 {
		t.Errorf("StreamCompletion called %d times, want 5", len(p.StreamCalls))
	}
}

// ── Failure paths ──────────────────────────────────────────────────────────────

func TestRunTurn_StartErrorPropagates(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamErr: errors.New("backend down")}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	reply, err := r.RunTurn(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("RunTurn error = %v, want backend down", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty on error", reply)
	}
}

func TestRunTurn_MidStreamErrorPropagates(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "Half a thought"},
		{FinishReason: "error"},
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	_, err := r.RunTurn(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "mid-response") {
		t.Fatalf("RunTurn error = %v, want mid-response failure", err)
	}
	if got := h.Transcript(); len(got) != 0 {
		t.Errorf("partial response leaked into transcript: %+v", got)
	}
}

func TestRunTurn_ContextCancelled(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{"hello"}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunTurn(ctx, "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunTurn error = %v, want context.Canceled", err)
	}
}

// ── History ────────────────────────────────────────────────────────────────────

func TestRunTurn_HistoryCarriesAcrossTurns(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{
		"Nice to meet you, Ada.",
		"Your name is Ada.",
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	if _, err := r.RunTurn(context.Background(), "My name is Ada."); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	reply, err := r.RunTurn(context.Background(), "What's my name?")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if reply != "Your name is Ada." {
		t.Errorf("reply = %q", reply)
	}

	want := []llm.Message{
		{Role: "user", Content: "My name is Ada."},
		{Role: "assistant", Content: "Nice to meet you, Ada."},
		{Role: "user", Content: "What's my name?"},
	}
	if got := p.StreamCalls[1].Req.Messages; !reflect.DeepEqual(got, want) {
		t.Errorf("turn 2 messages = %+v, want %+v", got, want)
	}
}

func TestRunTurn_HistoryBounded(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{"Noted."}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{})

	for i := range 30 {
		if _, err := r.RunTurn(context.Background(), fmt.Sprintf("ping %d", i)); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	last := p.StreamCalls[len(p.StreamCalls)-1].Req.Messages
	if len(last) != 49 {
		t.Errorf("final request carries %d messages, want 49 (48 history + 1 user)", len(last))
	}
	if last[0].Content == "ping 0" {
		t.Error("oldest history did not fall off the front")
	}
	if last[len(last)-1].Content != "ping 29" {
		t.Errorf("final user message = %q, want ping 29", last[len(last)-1].Content)
	}
}

// ── Live tuning ────────────────────────────────────────────────────────────────

func TestUpdateTuning_AppliesFromNextTurn(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{"Sure."}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	r := newRunner(t, p, notesRegistry(t, rec), h, config.AssistantConfig{
		Persona:     "Persona one.",
		Temperature: 0.2,
	})

	if _, err := r.RunTurn(context.Background(), "first"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	r.UpdateTuning(config.AssistantConfig{Persona: "Persona two.", Temperature: 0.9})
	if _, err := r.RunTurn(context.Background(), "second"); err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	first, second := p.StreamCalls[0].Req, p.StreamCalls[1].Req
	if !strings.Contains(first.SystemPrompt, "Persona one.") || first.Temperature != 0.2 {
		t.Errorf("turn 1 used wrong tuning: persona in prompt = %v, temperature = %v",
			strings.Contains(first.SystemPrompt, "Persona one."), first.Temperature)
	}
	if !strings.Contains(second.SystemPrompt, "Persona two.") || second.Temperature != 0.9 {
		t.Errorf("turn 2 did not pick up new tuning: persona in prompt = %v, temperature = %v",
			strings.Contains(second.SystemPrompt, "Persona two."), second.Temperature)
	}
	if strings.Contains(second.SystemPrompt, "Persona one.") {
		t.Error("turn 2 system prompt still carries the old persona")
	}
}

// ── Display drafts ─────────────────────────────────────────────────────────────

// draftLog collects everything pushed to the display sink.
type draftLog struct {
	drafts []string
}

func (d *draftLog) sink(_ context.Context, text string) error {
	d.drafts = append(d.drafts, text)
	return nil
}

func TestRunTurn_DraftsNeverLeakCallSyntax(t *testing.T) {
	t.Parallel()
	// Chunk boundaries deliberately split the fence, the tag, and the call
	// body, mimicking token-level streaming.
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "Opening "},
		{Text: "your notes.\n\n```json\n"},
		{Text: `{"tool": "open_notes", `},
		{Text: `"args": {"path": "todo.md"}}` + "\n```"},
		{FinishReason: "stop"},
	}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	d := &draftLog{}
	r := newRunner(t, p, notesRegistry(t, rec), h,
		config.AssistantConfig{MaxToolRounds: 1}, assistant.WithDisplay(d.sink))

	if _, err := r.RunTurn(context.Background(), "open my notes"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	// StreamChunks repeats for both rounds: two streams, two drafts each.
	want := []string{
		"Opening",
		"Opening your notes.",
		"Opening",
		"Opening your notes.",
	}
	if !reflect.DeepEqual(d.drafts, want) {
		t.Errorf("drafts = %q, want %q", d.drafts, want)
	}
	for _, draft := range d.drafts {
		if strings.Contains(draft, "`") || strings.Contains(draft, `"tool"`) {
			t.Errorf("draft leaked call syntax: %q", draft)
		}
	}
}

func TestRunTurn_DisplaySinkErrorDoesNotFailTurn(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []string{"All good."}}
	h := &hostmock.Host{}
	rec := &toolRecorder{}
	sink := func(context.Context, string) error { return errors.New("shell went away") }
	r := newRunner(t, p, notesRegistry(t, rec), h,
		config.AssistantConfig{}, assistant.WithDisplay(sink))

	reply, err := r.RunTurn(context.Background(), "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply != "All good." {
		t.Errorf("reply = %q", reply)
	}
}

// Package assistant runs the conversation loop between the user, the LLM
// provider, and the tool engine.
//
// A turn starts with one user message and alternates between streaming a
// model response and executing whatever tool calls that response carries,
// feeding each result back as a tool-role message, until the model answers
// in plain text or the round limit is reached. While a response streams,
// sanitized drafts of it go to an optional display sink so the user watches
// the answer take shape without ever seeing call syntax.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chatit-cloud/neuroos/internal/config"
	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/observe"
	"github.com/chatit-cloud/neuroos/pkg/host"
	"github.com/chatit-cloud/neuroos/pkg/provider/llm"
)

// defaultMaxToolRounds bounds execute-and-feed-back cycles per user message
// when the configuration does not say otherwise.
const defaultMaxToolRounds = 4

// maxHistoryMessages caps the cross-turn conversation carried between turns.
// Older messages fall off the front; the system prompt is rebuilt per request
// and never counts against the cap.
const maxHistoryMessages = 48

// ContextFactory produces the capability bag for a single tool execution.
// The runner calls it once per executed tool so handlers never share state
// through the bag itself.
type ContextFactory func() *host.Context

// DisplayFunc receives sanitized drafts of the response currently streaming.
// Each call carries the full draft so far, not an increment: stripping call
// syntax is not prefix-stable while a block is still arriving, so the sink
// must replace whatever it showed before.
type DisplayFunc func(ctx context.Context, text string) error

// Option configures a [Runner].
type Option func(*Runner)

// WithLogger sets the logger. Without it the runner logs through
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics sets the metrics handle used to record turn outcomes,
// extraction tiers, and per-call measurements.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithDisplay sets the sink for in-progress response drafts.
func WithDisplay(fn DisplayFunc) Option {
	return func(r *Runner) { r.display = fn }
}

// Runner owns one assistant conversation. RunTurn is not safe for concurrent
// use: the shell bridge delivers user messages one at a time, and a turn
// mutates the carried history. UpdateTuning may be called from any goroutine.
type Runner struct {
	provider   llm.Provider
	registry   *engine.Registry
	executor   *engine.Executor
	newContext ContextFactory

	// tuning is read once at the start of each turn, so a live config
	// reload applies from the next turn onwards.
	tuning atomic.Pointer[config.AssistantConfig]

	display DisplayFunc
	logger  *slog.Logger
	metrics *observe.Metrics

	// history is the conversation as the model sees it, raw call syntax
	// included, so the model stays consistent with its own earlier output.
	history []llm.Message
}

// New returns a runner speaking through provider and dispatching calls
// against reg. newContext supplies the capability bag per execution; nil
// yields an empty bag, which makes every capability-dependent tool report
// itself unavailable.
func New(provider llm.Provider, reg *engine.Registry, newContext ContextFactory, cfg config.AssistantConfig, opts ...Option) *Runner {
	r := &Runner{
		provider:   provider,
		registry:   reg,
		newContext: newContext,
		logger:     slog.Default(),
	}
	r.tuning.Store(&cfg)
	if r.newContext == nil {
		r.newContext = func() *host.Context { return &host.Context{} }
	}
	for _, opt := range opts {
		opt(r)
	}
	r.executor = engine.NewExecutor(reg, engine.WithLogger(r.logger), engine.WithMetrics(r.metrics))
	return r
}

// UpdateTuning swaps the assistant tuning. The change applies from the next
// turn; a turn already in flight keeps the tuning it started with.
func (r *Runner) UpdateTuning(cfg config.AssistantConfig) {
	r.tuning.Store(&cfg)
}

// callInstructions teaches the model the call syntax the extractor handles
// best. The fenced form is the primary tier; responses that drop the fences
// are still recovered by the scanner.
const callInstructions = "To use a tool, emit a fenced JSON block:\n\n" +
	"```json\n" +
	`{"tool": "tool_name", "args": {"param": "value"}}` + "\n" +
	"```\n\n" +
	"One block per call; blocks run in the order written. Text outside the\n" +
	"blocks is shown to the user, so narrate what you are doing. After each\n" +
	"call you receive a tool message with the result; read it before you\n" +
	"answer. Only call tools from the catalogue below, with the parameters\n" +
	"they declare."

// systemPrompt renders the persona, the call syntax instructions, and the
// current tool catalogue. Rebuilt per request so tools imported after
// startup are described as soon as they register.
func (r *Runner) systemPrompt(persona string) string {
	var b strings.Builder
	if persona != "" {
		b.WriteString(persona)
		b.WriteString("\n\n")
	}
	b.WriteString(callInstructions)
	b.WriteString("\n\nTool catalogue:\n\n")
	b.WriteString(r.registry.PromptText())
	return b.String()
}

// RunTurn processes one user message to completion and returns the
// assistant's visible reply: the sanitized text of every response in the
// turn, joined by blank lines. Tool results reach the user through the shell
// transcript, not through the return value.
//
// The user message itself is not appended to the shell transcript; it came
// from the shell, which already displays it.
//
// Calls execute unconditionally and in the order extracted. A tool marked
// as requiring confirmation runs like any other once it reaches the runner;
// gating belongs to the surface that accepted the user's message.
func (r *Runner) RunTurn(ctx context.Context, userMessage string) (string, error) {
	start := time.Now()
	status := "ok"
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordTurn(ctx, status, time.Since(start).Seconds())
		}
	}()

	tuning := *r.tuning.Load()
	maxRounds := tuning.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	conv := r.newContext().Conversation
	messages := append(r.history, llm.Message{Role: "user", Content: userMessage})

	var replies []string
	for round := 0; ; round++ {
		raw, err := r.streamOnce(ctx, tuning, messages)
		if err != nil {
			status = "error"
			return "", err
		}

		calls := engine.ParseToolCalls(raw)
		if r.metrics != nil {
			r.metrics.RecordCallsExtracted(ctx, engine.ExtractionTier(calls), int64(len(calls)))
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: raw})
		if clean := engine.StripToolCalls(raw, calls); clean != "" {
			replies = append(replies, clean)
			r.appendTranscript(ctx, conv, "assistant", clean)
		}

		if len(calls) == 0 {
			break
		}
		if round >= maxRounds {
			status = "max_rounds"
			r.logger.WarnContext(ctx, "tool round limit reached",
				"limit", maxRounds, "unexecuted_calls", len(calls))
			break
		}

		for _, call := range calls {
			res := r.executor.ExecuteTool(ctx, call, r.newContext())
			r.appendTranscript(ctx, conv, "tool", res.Message)
			if res.DisplayOnly {
				continue
			}
			messages = append(messages, llm.Message{
				Role:    "tool",
				Name:    call.Tool,
				Content: feedbackText(res),
			})
		}
	}

	r.history = messages
	if len(r.history) > maxHistoryMessages {
		r.history = r.history[len(r.history)-maxHistoryMessages:]
	}

	return strings.Join(replies, "\n\n"), nil
}

// streamOnce performs one streaming completion over messages, pushing
// sanitized drafts to the display sink as text accumulates, and returns the
// full raw response.
func (r *Runner) streamOnce(ctx context.Context, tuning config.AssistantConfig, messages []llm.Message) (string, error) {
	ch, err := r.provider.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     messages,
		Temperature:  tuning.Temperature,
		MaxTokens:    tuning.MaxTokens,
		SystemPrompt: r.systemPrompt(tuning.Persona),
	})
	if err != nil {
		return "", fmt.Errorf("assistant: completion: %w", err)
	}

	var raw strings.Builder
	lastDraft := ""
	var streamErr error
	for chunk := range ch {
		if chunk.Text != "" {
			raw.WriteString(chunk.Text)
			r.showDraft(ctx, raw.String(), &lastDraft)
		}
		if chunk.FinishReason == "error" && streamErr == nil {
			streamErr = errors.New("assistant: stream failed mid-response")
		}
	}
	if streamErr != nil {
		return "", streamErr
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("assistant: completion: %w", err)
	}
	return raw.String(), nil
}

// showDraft sanitizes the accumulated response and pushes it to the display
// sink when it differs from the previous push. A sink error is logged and
// otherwise ignored; display is best-effort and must not fail the turn.
func (r *Runner) showDraft(ctx context.Context, accumulated string, last *string) {
	if r.display == nil {
		return
	}
	clean := engine.StripToolCalls(accumulated, engine.ParseToolCalls(accumulated))
	if clean == *last {
		return
	}
	*last = clean
	if err := r.display(ctx, clean); err != nil {
		r.logger.DebugContext(ctx, "display sink rejected draft", "error", err)
	}
}

// appendTranscript records text in the shell-side conversation. Best-effort:
// a missing Conversation capability or an append failure never fails the
// turn.
func (r *Runner) appendTranscript(ctx context.Context, conv host.Conversation, role, text string) {
	if conv == nil || text == "" {
		return
	}
	if err := conv.AppendMessage(ctx, role, text); err != nil {
		r.logger.WarnContext(ctx, "transcript append failed", "role", role, "error", err)
	}
}

// feedbackText renders a result as the content of a tool-role message. The
// structured payload rides along as JSON so the model can chain identifiers
// into later calls.
func feedbackText(res engine.ToolResult) string {
	msg := res.Message
	if msg == "" {
		if res.Success {
			msg = "The tool completed."
		} else {
			msg = "The tool failed."
		}
	}
	if res.Data == nil {
		return msg
	}
	b, err := json.Marshal(res.Data)
	if err != nil {
		return msg
	}
	return msg + "\n" + string(b)
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/chatit-cloud/neuroos/internal/observe"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// maxSuggestionDistance is the largest Levenshtein distance at which an
// unknown tool name still earns a "did you mean" suggestion.
const maxSuggestionDistance = 3

// Executor dispatches parsed calls to registered handlers. It guarantees
// that no failure mode (unknown tool, handler error, handler panic) ever
// escapes as a panic; everything surfaces as a [ToolResult].
type Executor struct {
	registry *Registry
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// Option configures an [Executor].
type Option func(*Executor)

// WithMetrics sets the metrics handle used to record per-call counters and
// latency. Without it the executor records nothing.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger. Without it the executor logs through
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor returns an executor dispatching against reg.
func NewExecutor(reg *Registry, opts ...Option) *Executor {
	e := &Executor{registry: reg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteTool looks up call.Tool and runs its handler with a fresh capability
// context. It never panics and performs no retries, imposes no timeout, and
// does not gate on [ToolDefinition.RequiresConfirmation] — confirmation is
// entirely the caller's responsibility before it asks for execution.
//
// An unknown tool yields a failure result listing every registered name so
// the model can self-correct on its next turn; a close name match is
// suggested outright.
func (e *Executor) ExecuteTool(ctx context.Context, call ParsedToolCall, hc *host.Context) ToolResult {
	def, ok := e.registry.Get(call.Tool)
	if !ok {
		msg := fmt.Sprintf("Unknown tool %q. Available tools: %s",
			call.Tool, strings.Join(e.registry.Names(), ", "))
		if closest, found := e.closestTool(call.Tool); found {
			msg += fmt.Sprintf(" Did you mean %q?", closest)
		}
		e.log().WarnContext(ctx, "unknown tool requested", "tool", call.Tool)
		e.recordCall(ctx, call.Tool, "unknown_tool", 0)
		return ToolResult{Success: false, Message: msg}
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	ctx, span := observe.StartSpan(ctx, "tool "+call.Tool)
	defer span.End()

	start := time.Now()
	res, err := invokeHandler(ctx, def, args, hc)
	elapsed := time.Since(start)

	if err != nil {
		e.log().WarnContext(ctx, "tool failed",
			"tool", call.Tool, "error", err, "duration", elapsed)
		e.recordCall(ctx, call.Tool, "error", elapsed.Seconds())
		return ToolResult{Success: false, Message: fmt.Sprintf("Tool %s failed: %s", call.Tool, err)}
	}

	status := "ok"
	if !res.Success {
		status = "error"
	}
	e.log().DebugContext(ctx, "tool executed",
		"tool", call.Tool, "success", res.Success, "duration", elapsed)
	e.recordCall(ctx, call.Tool, status, elapsed.Seconds())
	return res
}

// invokeHandler runs the handler inside the executor's fault boundary,
// converting a panic into an ordinary error.
func invokeHandler(ctx context.Context, def ToolDefinition, args map[string]any, hc *host.Context) (res ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return def.Handler(ctx, args, hc)
}

// closestTool returns the registered name nearest to name by Levenshtein
// distance, if any lies within maxSuggestionDistance. Ties keep the earliest
// registration.
func (e *Executor) closestTool(name string) (string, bool) {
	best := ""
	bestDist := maxSuggestionDistance + 1
	for _, candidate := range e.registry.Names() {
		if d := matchr.Levenshtein(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best, best != ""
}

func (e *Executor) recordCall(ctx context.Context, tool, status string, seconds float64) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordToolCall(ctx, tool, status, seconds)
}

func (e *Executor) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

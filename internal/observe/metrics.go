// Package observe provides application-wide observability primitives for
// NeuroOS: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all NeuroOS metrics.
const meterName = "github.com/chatit-cloud/neuroos"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ToolExecutionDuration tracks tool handler execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// TurnDuration tracks full assistant turn latency, from the first model
	// chunk to the last tool result.
	TurnDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// CallsExtracted counts tool calls recovered from model output. Use with
	// attribute:
	//   attribute.String("tier", ...) — "fenced" or "scanner"
	CallsExtracted metric.Int64Counter

	// Turns counts completed assistant turns. Use with attribute:
	//   attribute.String("status", ...)
	Turns metric.Int64Counter

	// MCPToolsImported counts tools imported from external MCP servers. Use
	// with attribute:
	//   attribute.String("server", ...)
	MCPToolsImported metric.Int64Counter

	// --- Gauges ---

	// ActiveShellConns tracks the number of connected desktop shells.
	ActiveShellConns metric.Int64UpDownCounter

	// ScheduledTasks tracks the number of live scheduled automation tasks.
	ScheduledTasks metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// tool handler and assistant turn latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ToolExecutionDuration, err = m.Float64Histogram("neuroos.tool_execution.duration",
		metric.WithDescription("Latency of tool handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("neuroos.turn.duration",
		metric.WithDescription("End-to-end assistant turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("neuroos.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("neuroos.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.CallsExtracted, err = m.Int64Counter("neuroos.parse.calls_extracted",
		metric.WithDescription("Total tool calls extracted from model output by tier."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("neuroos.turns",
		metric.WithDescription("Total completed assistant turns by status."),
	); err != nil {
		return nil, err
	}
	if met.MCPToolsImported, err = m.Int64Counter("neuroos.mcp.tools_imported",
		metric.WithDescription("Total tools imported from MCP servers."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveShellConns, err = m.Int64UpDownCounter("neuroos.active_shell_connections",
		metric.WithDescription("Number of connected desktop shells."),
	); err != nil {
		return nil, err
	}
	if met.ScheduledTasks, err = m.Int64UpDownCounter("neuroos.scheduled_tasks",
		metric.WithDescription("Number of live scheduled automation tasks."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records a tool call counter increment and its execution
// latency with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolExecutionDuration.Record(ctx, seconds, attrs)
}

// RecordCallsExtracted records how many calls a parse pass recovered and
// which extraction tier produced them.
func (m *Metrics) RecordCallsExtracted(ctx context.Context, tier string, count int64) {
	if count == 0 {
		return
	}
	m.CallsExtracted.Add(ctx, count,
		metric.WithAttributes(attribute.String("tier", tier)),
	)
}

// RecordTurn records a completed assistant turn and its latency.
func (m *Metrics) RecordTurn(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, seconds, attrs)
}

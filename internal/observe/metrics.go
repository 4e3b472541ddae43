// Package observe provides the observability primitives of CuraAI:
// OpenTelemetry metrics, tracing, trace-aware logging and the HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported in
// Prometheus format by [InitProvider]. [Metrics] implements the recorder
// interfaces of the tool box, the agent and the conversation engine, so one
// instance can be handed to all of them. Tests should use [NewMetrics] with a
// manual reader to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of all CuraAI metrics.
const meterName = "github.com/MrWong99/curaai"

// Status attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the metric instruments of the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// StageDuration tracks per-clip pipeline latency. Attribute "stage" is
	// "transcode" or "transcribe", "status" is ok or error.
	StageDuration metric.Float64Histogram

	// TurnDuration tracks the time the agent spends on one utterance,
	// tool calls and playback included.
	TurnDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool latency by "tool".
	ToolExecutionDuration metric.Float64Histogram

	// ToolCalls counts tool invocations by "tool" and "status".
	ToolCalls metric.Int64Counter

	// Turns counts agent turns by "status".
	Turns metric.Int64Counter

	// Clips counts segmented utterances by "outcome".
	Clips metric.Int64Counter

	// ActiveConnections tracks open audio websockets.
	ActiveConnections metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request time by "method" and "path".
	HTTPRequestDuration metric.Float64Histogram

	// BreakerTransitions counts circuit breaker state changes by "breaker"
	// and target "state".
	BreakerTransitions metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds. Turns include speech
// playback, hence the long tail.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("curaai.pipeline.stage.duration",
		metric.WithDescription("Latency of clip transcoding and transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("curaai.agent.turn.duration",
		metric.WithDescription("Latency of one agent turn including tool calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("curaai.tool_execution.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ToolCalls, err = m.Int64Counter("curaai.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("curaai.agent.turns",
		metric.WithDescription("Total agent turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Clips, err = m.Int64Counter("curaai.clips",
		metric.WithDescription("Total segmented utterances by outcome."),
	); err != nil {
		return nil, err
	}

	if met.ActiveConnections, err = m.Int64UpDownCounter("curaai.active_connections",
		metric.WithDescription("Number of open audio connections."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("curaai.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("curaai.circuit_breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from the global meter provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func status(failed bool) string {
	if failed {
		return StatusError
	}
	return StatusOK
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, d time.Duration, failed bool) {
	m.ToolExecutionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("tool", tool)))
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		Attr("tool", tool),
		Attr("status", status(failed)),
	))
}

// RecordTurn records one agent turn.
func (m *Metrics) RecordTurn(ctx context.Context, d time.Duration, _ int, err error) {
	attrs := metric.WithAttributes(Attr("status", status(err != nil)))
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
	m.Turns.Add(ctx, 1, attrs)
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		Attr("stage", stage),
		Attr("status", status(err != nil)),
	))
}

// RecordClip counts one processed clip.
func (m *Metrics) RecordClip(ctx context.Context, outcome string) {
	m.Clips.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// ConnectionOpened increments the active connection gauge and returns the
// matching decrement.
func (m *Metrics) ConnectionOpened(ctx context.Context) (closed func()) {
	m.ActiveConnections.Add(ctx, 1)
	var once sync.Once
	return func() { once.Do(func() { m.ActiveConnections.Add(context.WithoutCancel(ctx), -1) }) }
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("breaker", breaker),
		Attr("state", to),
	))
}

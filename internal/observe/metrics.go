// Package observe provides the observability primitives of dawvox:
// OpenTelemetry metrics and traces, a trace-aware slog logger, and HTTP
// middleware for the diagnostics server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through a Prometheus exporter set up by [InitProvider]. Tests
// should build their own instance with [NewMetrics] and a
// [sdkmetric.ManualReader] rather than use [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every dawvox instrument.
const meterName = "github.com/MrWong99/dawvox"

// Pipeline stages used as the "stage" attribute of StageDuration.
const (
	StageTranscribe = "transcribe"
	StageResolve    = "resolve"
	StageDispatch   = "dispatch"
	StageFeedback   = "feedback"
)

// Metrics holds every instrument the pipeline records to.
type Metrics struct {
	// StageDuration is the latency of one pipeline stage, attribute "stage".
	StageDuration metric.Float64Histogram

	// CommandLatency is the time from the end of speech (utterance
	// finalised) to the dispatch result. This is the figure the latency
	// budget applies to.
	CommandLatency metric.Float64Histogram

	// Activations counts wake gate activations by "phrase" and "role".
	Activations metric.Int64Counter

	// Utterances counts finalised utterances by end "reason".
	Utterances metric.Int64Counter

	// Outcomes counts completed pipeline cycles by "outcome".
	Outcomes metric.Int64Counter

	// Dispatches counts dispatched commands by "intent", "mode" and "status".
	Dispatches metric.Int64Counter

	// FeedbackEmitted counts feedback phrases by "kind" and "status".
	FeedbackEmitted metric.Int64Counter

	// FramesDropped counts frames discarded by the bounded frame queue.
	FramesDropped metric.Int64Counter

	// StaleResults counts worker results discarded because their utterance
	// was superseded, by "stage".
	StaleResults metric.Int64Counter

	// ProviderErrors counts collaborator failures by "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by "name" and
	// "to".
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration is the diagnostics server's request latency.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, dense around the
// 500ms command budget.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.75, 1, 2.5, 5,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("dawvox.stage.duration",
		metric.WithDescription("Latency of one pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommandLatency, err = m.Float64Histogram("dawvox.command.latency",
		metric.WithDescription("Time from end of speech to dispatch result."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Activations, err = m.Int64Counter("dawvox.wake.activations",
		metric.WithDescription("Wake gate activations by phrase and role."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("dawvox.utterances",
		metric.WithDescription("Finalised utterances by end reason."),
	); err != nil {
		return nil, err
	}
	if met.Outcomes, err = m.Int64Counter("dawvox.pipeline.outcomes",
		metric.WithDescription("Completed pipeline cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("dawvox.dispatches",
		metric.WithDescription("Dispatched commands by intent, mode and status."),
	); err != nil {
		return nil, err
	}
	if met.FeedbackEmitted, err = m.Int64Counter("dawvox.feedback.emitted",
		metric.WithDescription("Feedback phrases by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("dawvox.frames.dropped",
		metric.WithDescription("Audio frames dropped by the bounded frame queue."),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("dawvox.stale_results",
		metric.WithDescription("Worker results discarded after their utterance was superseded."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("dawvox.provider.errors",
		metric.WithDescription("Collaborator failures by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("dawvox.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("dawvox.http.request.duration",
		metric.WithDescription("Diagnostics HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics built on the global meter
// provider. It panics if instrument creation fails.
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

// RecordStage records the latency of stage in seconds.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(Attr("stage", stage)))
}

// RecordActivation counts one wake gate activation.
func (m *Metrics) RecordActivation(ctx context.Context, phrase, role string) {
	m.Activations.Add(ctx, 1, metric.WithAttributes(Attr("phrase", phrase), Attr("role", role)))
}

// RecordOutcome counts one completed pipeline cycle.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.Outcomes.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordDispatch counts one dispatched command.
func (m *Metrics) RecordDispatch(ctx context.Context, intent, mode, status string) {
	m.Dispatches.Add(ctx, 1, metric.WithAttributes(
		Attr("intent", intent),
		Attr("mode", mode),
		Attr("status", status),
	))
}

// RecordFeedback counts one feedback emission.
func (m *Metrics) RecordFeedback(ctx context.Context, kind, status string) {
	m.FeedbackEmitted.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind), Attr("status", status)))
}

// RecordStale counts one discarded stale result.
func (m *Metrics) RecordStale(ctx context.Context, stage string) {
	m.StaleResults.Add(ctx, 1, metric.WithAttributes(Attr("stage", stage)))
}

// RecordProviderError counts one collaborator failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("name", name), Attr("to", to)))
}

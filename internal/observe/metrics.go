// Package observe provides application-wide observability primitives for
// Dictaflow: OpenTelemetry metrics with a Prometheus exporter bridge so the
// standard /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Dictaflow metrics.
const meterName = "github.com/MrWong99/dictaflow"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// EnrichmentDuration tracks LLM enrichment latency.
	EnrichmentDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding computation latency for the archive.
	EmbeddingDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsSealed counts sealed segments. Use with attribute:
	//   attribute.String("outcome", "queued"|"discarded")
	SegmentsSealed metric.Int64Counter

	// SegmentsTranscribed counts completed transcriptions. Use with attribute:
	//   attribute.String("outcome", "kept"|"discarded"|"uncertain")
	SegmentsTranscribed metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of sealed segments waiting for
	// transcription.
	QueueDepth metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live dictation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transcription and LLM latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("dictaflow.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EnrichmentDuration, err = m.Float64Histogram("dictaflow.enrichment.duration",
		metric.WithDescription("Latency of LLM enrichment calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("dictaflow.embedding.duration",
		metric.WithDescription("Latency of embedding computation for the archive."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsSealed, err = m.Int64Counter("dictaflow.segments.sealed",
		metric.WithDescription("Total sealed segments by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsTranscribed, err = m.Int64Counter("dictaflow.segments.transcribed",
		metric.WithDescription("Total completed transcriptions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("dictaflow.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("dictaflow.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("dictaflow.queue.depth",
		metric.WithDescription("Sealed segments waiting for transcription."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("dictaflow.active_sessions",
		metric.WithDescription("Number of live dictation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("dictaflow.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordSealed records one sealed segment with the given outcome. Safe to
// call on a nil receiver so pipeline code does not need nil checks.
func (m *Metrics) RecordSealed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.SegmentsSealed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordTranscribed records one completed transcription with the given
// outcome. Safe to call on a nil receiver.
func (m *Metrics) RecordTranscribed(ctx context.Context, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.SegmentsTranscribed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.TranscriptionDuration.Record(ctx, seconds)
}

// RecordEnrichment records one LLM enrichment latency sample. Safe to call
// on a nil receiver.
func (m *Metrics) RecordEnrichment(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.EnrichmentDuration.Record(ctx, seconds)
}

// RecordEmbedding records one embedding computation latency sample. Safe to
// call on a nil receiver.
func (m *Metrics) RecordEmbedding(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.EmbeddingDuration.Record(ctx, seconds)
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set. Safe to call on a nil receiver.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	if m == nil {
		return
	}
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment. Safe to
// call on a nil receiver.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// AddQueueDepth adjusts the queue depth gauge by delta. Safe to call on a
// nil receiver.
func (m *Metrics) AddQueueDepth(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Add(ctx, delta)
}

// AddActiveSessions adjusts the active session gauge by delta. Safe to call
// on a nil receiver.
func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}

// Package observe holds the metric instruments and logger setup shared by
// the pipeline components.
//
// Metrics go through the OpenTelemetry Metrics API. Callers without a
// configured provider get [otel.GetMeterProvider], which is a no-op until an
// SDK provider is installed. Tests should build their own provider with a
// ManualReader and pass it to [NewMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/maastricht-university/edmo-emotion"

// Attempt statuses recorded on StrategyAttempts.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusEmpty    = "empty"
	StatusAborted  = "aborted"
	StatusDegraded = "degraded"
)

type Metrics struct {
	// StageDuration tracks wall time per pipeline stage. Attribute "stage".
	StageDuration metric.Float64Histogram

	// StrategyAttempts counts fallback attempts. Attributes "component"
	// (speech, fusion), "strategy" and "status".
	StrategyAttempts metric.Int64Counter

	// Requests counts finished predictions by "status" (ok, aborted).
	Requests metric.Int64Counter

	// TranscriptionDegraded counts requests where every speech engine failed.
	TranscriptionDegraded metric.Int64Counter

	// CleanupFailures counts temp files that could not be removed.
	CleanupFailures metric.Int64Counter
}

// Stage latencies range from milliseconds (post-processing) to minutes
// (decoding long clips on CPU).
var stageBuckets = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("edmo.stage.duration",
		metric.WithDescription("Latency of each emotion pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StrategyAttempts, err = m.Int64Counter("edmo.strategy.attempts",
		metric.WithDescription("Fallback strategy attempts by component, strategy and status."),
	); err != nil {
		return nil, err
	}
	if met.Requests, err = m.Int64Counter("edmo.requests",
		metric.WithDescription("Finished prediction requests by status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDegraded, err = m.Int64Counter("edmo.transcription.degraded",
		metric.WithDescription("Requests whose transcription fell back to the no-speech sentinel."),
	); err != nil {
		return nil, err
	}
	if met.CleanupFailures, err = m.Int64Counter("edmo.cleanup.failures",
		metric.WithDescription("Temporary resources that could not be released."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide instance bound to the global meter
// provider.
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

// RecordStage records how long stage took since start.
func (m *Metrics) RecordStage(ctx context.Context, stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) RecordAttempt(ctx context.Context, component, strategy, status string) {
	if m == nil {
		return
	}
	m.StrategyAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordRequest(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordDegraded(ctx context.Context) {
	if m == nil {
		return
	}
	m.TranscriptionDegraded.Add(ctx, 1)
}

func (m *Metrics) RecordCleanupFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.CleanupFailures.Add(ctx, 1)
}

// Package observe holds the OpenTelemetry metric instruments for the
// expression pipeline and the Prometheus exporter bridge behind /metrics.
//
// Tests should build a Metrics with NewMetrics and a ManualReader-backed
// provider. Every record method is safe on a nil *Metrics.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/teslashibe/go-emote"

// Metrics holds every instrument.
type Metrics struct {
	// Attempts counts capture attempts by session and outcome.
	Attempts metric.Int64Counter

	// AttemptDuration is the wall time of a whole attempt.
	AttemptDuration metric.Float64Histogram

	// StageDuration is per stage: capture, estimate, process.
	StageDuration metric.Float64Histogram

	// Emissions counts delivered emotion_change events by label.
	Emissions metric.Int64Counter

	// Suppressed counts events held back by the throttle.
	Suppressed metric.Int64Counter

	// EmitErrors counts channel failures.
	EmitErrors metric.Int64Counter

	CalibrationLocked metric.Int64Counter

	// Clarity is the distribution of frame clarity scores.
	Clarity metric.Int64Histogram

	ActiveSessions metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

var clarityBuckets = []float64{10, 20, 30, 40, 50, 60, 65, 70, 80, 90, 100}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Attempts, err = m.Int64Counter("emote.attempts",
		metric.WithDescription("Capture attempts by session and outcome."),
	); err != nil {
		return nil, err
	}
	if met.AttemptDuration, err = m.Float64Histogram("emote.attempt.duration",
		metric.WithDescription("Wall time of a capture attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("emote.stage.duration",
		metric.WithDescription("Latency of each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Emissions, err = m.Int64Counter("emote.emissions",
		metric.WithDescription("Expression change events delivered, by label."),
	); err != nil {
		return nil, err
	}
	if met.Suppressed, err = m.Int64Counter("emote.emissions.suppressed",
		metric.WithDescription("Expression change events held back by the throttle."),
	); err != nil {
		return nil, err
	}
	if met.EmitErrors, err = m.Int64Counter("emote.emissions.errors",
		metric.WithDescription("Channel delivery failures."),
	); err != nil {
		return nil, err
	}
	if met.CalibrationLocked, err = m.Int64Counter("emote.calibration.locked",
		metric.WithDescription("Sessions whose neutral baseline locked."),
	); err != nil {
		return nil, err
	}
	if met.Clarity, err = m.Int64Histogram("emote.clarity",
		metric.WithDescription("Frame clarity score."),
		metric.WithExplicitBucketBoundaries(clarityBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("emote.active_sessions",
		metric.WithDescription("Sessions currently running."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance built on the global
// provider. Call after InitProvider.
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

// RecordAttempt counts an attempt outcome and its duration.
func (m *Metrics) RecordAttempt(ctx context.Context, session, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("session", session),
		attribute.String("outcome", outcome),
	)
	m.Attempts.Add(ctx, 1, attrs)
	if d > 0 {
		m.AttemptDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordStage records one stage's latency.
func (m *Metrics) RecordStage(ctx context.Context, session, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("session", session),
		attribute.String("stage", stage),
	))
}

// RecordEmission counts a delivered or failed event.
func (m *Metrics) RecordEmission(ctx context.Context, session, label string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("session", session),
		attribute.String("label", label),
	)
	if err != nil {
		m.EmitErrors.Add(ctx, 1, attrs)
		return
	}
	m.Emissions.Add(ctx, 1, attrs)
}

// RecordSuppressed counts a throttled event.
func (m *Metrics) RecordSuppressed(ctx context.Context, session string) {
	if m == nil {
		return
	}
	m.Suppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("session", session)))
}

// RecordClarity records a frame's clarity score.
func (m *Metrics) RecordClarity(ctx context.Context, session string, score int) {
	if m == nil {
		return
	}
	m.Clarity.Record(ctx, int64(score), metric.WithAttributes(attribute.String("session", session)))
}

// RecordCalibrationLocked counts a baseline lock.
func (m *Metrics) RecordCalibrationLocked(ctx context.Context, session string) {
	if m == nil {
		return
	}
	m.CalibrationLocked.Add(ctx, 1, metric.WithAttributes(attribute.String("session", session)))
}

// SessionStarted and SessionStopped move the active session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionStopped decrements the active session gauge.
func (m *Metrics) SessionStopped(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

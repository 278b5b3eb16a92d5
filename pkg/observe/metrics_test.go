package observe

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRecordAttempt(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAttempt(ctx, "s1", "done", 120*time.Millisecond)
	m.RecordAttempt(ctx, "s1", "done", 80*time.Millisecond)
	m.RecordAttempt(ctx, "s1", "skipped", 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "emote.attempts", "outcome", "done"); got != 2 {
		t.Errorf("done attempts = %d, want 2", got)
	}
	if got := sumFor(t, rm, "emote.attempts", "outcome", "skipped"); got != 1 {
		t.Errorf("skipped attempts = %d, want 1", got)
	}

	hist, ok := findMetric(rm, "emote.attempt.duration").Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("attempt duration histogram missing")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("duration samples = %d, want 2 (skips carry no duration)", got)
	}
}

func TestRecordEmission(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEmission(ctx, "s1", "Smiling", nil)
	m.RecordEmission(ctx, "s1", "Smiling", errors.New("down"))
	m.RecordSuppressed(ctx, "s1")
	m.RecordSuppressed(ctx, "s1")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "emote.emissions", "label", "Smiling"); got != 1 {
		t.Errorf("emissions = %d", got)
	}
	if got := sumFor(t, rm, "emote.emissions.errors", "", ""); got != 1 {
		t.Errorf("errors = %d", got)
	}
	if got := sumFor(t, rm, "emote.emissions.suppressed", "session", "s1"); got != 2 {
		t.Errorf("suppressed = %d", got)
	}
}

func TestActiveSessionsAndClarity(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionStopped(ctx)
	m.RecordClarity(ctx, "s1", 72)
	m.RecordCalibrationLocked(ctx, "s1")
	m.RecordStage(ctx, "s1", "estimate", 30*time.Millisecond)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "emote.active_sessions", "", ""); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
	if got := sumFor(t, rm, "emote.calibration.locked", "session", "s1"); got != 1 {
		t.Errorf("calibration locked = %d", got)
	}
	if findMetric(rm, "emote.clarity") == nil {
		t.Error("clarity histogram missing")
	}
	if findMetric(rm, "emote.stage.duration") == nil {
		t.Error("stage histogram missing")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordAttempt(ctx, "s", "done", time.Second)
	m.RecordStage(ctx, "s", "capture", time.Second)
	m.RecordEmission(ctx, "s", "Neutral", nil)
	m.RecordSuppressed(ctx, "s")
	m.RecordClarity(ctx, "s", 50)
	m.RecordCalibrationLocked(ctx, "s")
	m.SessionStarted(ctx)
	m.SessionStopped(ctx)
}

func TestInitProvider_ServesPrometheus(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	p, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	m.RecordAttempt(context.Background(), "s1", "done", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "emote_attempts") {
		t.Errorf("expected emote_attempts in scrape output, got:\n%s", body)
	}
}

package monitoring

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for all segmentation metrics.
const meterName = "github.com/banshee-data/eventseg"

// Metrics holds the OpenTelemetry instruments recorded by the segmenter.
// The instruments are safe for concurrent use.
type Metrics struct {
	// DecodeDuration tracks wall time of one full Viterbi decode.
	DecodeDuration metric.Float64Histogram

	// Decodes counts decode attempts. Use with attribute.String("status", ...).
	Decodes metric.Int64Counter

	// Frames counts frames decoded successfully.
	Frames metric.Int64Counter

	// Segments counts detected events.
	Segments metric.Int64Counter

	// Transitions records the number of legal joint transitions per frame
	// for each decode, which drives decode cost.
	Transitions metric.Int64Histogram
}

// decodeBuckets are histogram boundaries in seconds. Decodes range from
// sub-millisecond (one feature, short clip) to minutes (six features).
var decodeBuckets = []float64{
	0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300,
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DecodeDuration, err = m.Float64Histogram("eventseg.decode.duration",
		metric.WithDescription("Wall time of a full segmentation decode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Decodes, err = m.Int64Counter("eventseg.decodes",
		metric.WithDescription("Decode attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Frames, err = m.Int64Counter("eventseg.frames",
		metric.WithDescription("Frames decoded."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("eventseg.segments",
		metric.WithDescription("Events detected."),
	); err != nil {
		return nil, err
	}
	if met.Transitions, err = m.Int64Histogram("eventseg.transitions",
		metric.WithDescription("Legal joint-state transitions per frame."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments bound to the global meter provider.
// Until the application installs one with otel.SetMeterProvider the
// instruments record nothing.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			Logf("monitoring: default metrics unavailable: %v", err)
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordDecode records the outcome of one decode. err == nil counts as
// status "ok"; frames and segments are only added on success.
func (m *Metrics) RecordDecode(ctx context.Context, elapsed time.Duration, transitions, frames, segments int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Decodes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.DecodeDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	if transitions > 0 {
		m.Transitions.Record(ctx, int64(transitions))
	}
	if err != nil {
		return
	}
	m.Frames.Add(ctx, int64(frames))
	m.Segments.Add(ctx, int64(segments))
}

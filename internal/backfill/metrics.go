package backfill

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fieldsprout/internal/db"
	"fieldsprout/internal/sources"
)

// Metrics are the prometheus collectors updated by backfill runs.
type Metrics struct {
	records  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldsprout",
				Subsystem: "backfill",
				Name:      "records_total",
				Help:      "Performance records written by backfills.",
			},
			[]string{"source"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldsprout",
				Subsystem: "backfill",
				Name:      "source_errors_total",
				Help:      "Backfill source failures by error kind.",
			},
			[]string{"source", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fieldsprout",
				Subsystem: "backfill",
				Name:      "source_duration_seconds",
				Help:      "Time spent fetching and storing one source during a backfill.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"source"},
		),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.records, m.errors, m.duration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMetrics builds collectors and registers them with reg.
func RegisterMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(source db.SourceType, res SourceResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	src := string(source)
	m.duration.WithLabelValues(src).Observe(elapsed.Seconds())
	if n := res.Inserted + res.Updated; n > 0 {
		m.records.WithLabelValues(src).Add(float64(n))
	}
	if res.Status == StatusError {
		kind := string(res.ErrorKind)
		if kind == "" {
			kind = string(sources.KindTransient)
		}
		m.errors.WithLabelValues(src, kind).Inc()
	}
}

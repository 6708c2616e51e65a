package autosave

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Save outcomes recorded under the result label.
const (
	resultSaved   = "saved"
	resultSkipped = "skipped"
	resultError   = "error"
)

// Metrics holds the Prometheus collectors for autosave. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	saves     *prometheus.CounterVec
	duration  prometheus.Histogram
	conflicts prometheus.Counter
}

// NewMetrics registers the autosave collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formflow_autosave_saves_total",
			Help: "Autosave flushes by result (saved, skipped, error).",
		}, []string{"result"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "formflow_autosave_save_duration_seconds",
			Help:    "Latency of autosave writes to the store.",
			Buckets: prometheus.DefBuckets,
		}),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "formflow_autosave_conflicts_total",
			Help: "Fields found in conflict while reconciling local and remote snapshots.",
		}),
	}
}

func (m *Metrics) observeSave(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(result).Inc()
	if result != resultSkipped {
		m.duration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) addConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflicts.Add(float64(n))
}

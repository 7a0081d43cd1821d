package rframe

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
// Metrics
// ============================================================================

var (
	queriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rframe",
		Name:      "queries_total",
		Help:      "Terminal operations executed, by kind.",
	}, []string{"op"})

	plannerReuseTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rframe",
		Name:      "planner_reuse_total",
		Help:      "Work skipped because the table status already satisfied it.",
	}, []string{"stage"})

	rowsOutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rframe",
		Name:      "rows_out_total",
		Help:      "Rows produced by terminal operations.",
	}, []string{"op"})

	opSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rframe",
		Name:      "op_duration_seconds",
		Help:      "Wall time of terminal operations.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"op"})
)

// RegisterMetrics registers the engine's collectors with reg. Registering
// twice with the same registry is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{queriesTotal, plannerReuseTotal, rowsOutTotal, opSeconds} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func observeOp(op string, rows int, seconds float64) {
	queriesTotal.WithLabelValues(op).Inc()
	rowsOutTotal.WithLabelValues(op).Add(float64(rows))
	opSeconds.WithLabelValues(op).Observe(seconds)
}

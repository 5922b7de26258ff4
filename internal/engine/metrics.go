package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for engine operations.
//
// Metrics:
//   - tabregel_operations_total{op,result} - operations by outcome
//   - tabregel_operation_duration_seconds{op} - wall time per operation
//   - tabregel_tab_moves_total - move requests issued
//   - tabregel_settle_rounds - settle waits needed before the order held
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	MovesTotal        prometheus.Counter
	SettleRounds      prometheus.Histogram
}

// NewMetrics creates the engine metrics and registers them with reg.
// Pass a fresh registry in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabregel_operations_total",
				Help: "Total number of engine operations by result",
			},
			[]string{"op", "result"}, // result: "ok", "no_rules", "busy", "failed"
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabregel_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		MovesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tabregel_tab_moves_total",
			Help: "Total number of tab move requests issued",
		}),
		SettleRounds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabregel_settle_rounds",
			Help:    "Settle waits per operation before the tab order was confirmed",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
	}
}

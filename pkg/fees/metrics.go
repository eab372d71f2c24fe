package fees

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	branchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tonsend_fee_branch_total",
		Help: "Number of fee cascade branch attempts by outcome",
	}, []string{"branch", "result"})
	estimateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tonsend_fee_estimate_seconds",
		Help:    "Time spent resolving a fee, labeled by the adopted relay",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"relay"})
)

func observeBranch(b branch, result string) {
	branchAttempts.With(map[string]string{"branch": b.String(), "result": result}).Inc()
}

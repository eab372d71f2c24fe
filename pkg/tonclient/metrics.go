package tonclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "tonsend_tonapi_request_seconds",
	Help:    "Duration of tonapi and lite server requests",
	Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"method", "status"})

func observe(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	requestTime.With(map[string]string{"method": method, "status": status}).Observe(time.Since(start).Seconds())
}

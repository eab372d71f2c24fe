package battery

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "tonsend_battery_request_seconds",
	Help:    "Duration of battery requests",
	Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"endpoint", "status"})

func observe(path string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if strings.HasPrefix(path, "/gasless/estimate/") {
		path = "/gasless/estimate"
	}
	requestTime.With(map[string]string{"endpoint": path, "status": status}).Observe(time.Since(start).Seconds())
}

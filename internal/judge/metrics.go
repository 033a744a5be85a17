package judge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// retriesTotal counts judge call retries after transient failures.
var retriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "curator",
		Subsystem: "judge",
		Name:      "retries_total",
		Help:      "Total number of judge call retries",
	},
)

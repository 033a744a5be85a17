package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultScored = "scored"
	resultFailed = "failed"
)

var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curator",
		Subsystem: "scoring",
		Name:      "items_total",
		Help:      "Items processed by the scoring engine, by result.",
	}, []string{"result"})

	scoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "curator",
		Subsystem: "scoring",
		Name:      "item_duration_seconds",
		Help:      "End-to-end scoring latency per item.",
		Buckets:   prometheus.DefBuckets,
	})
)

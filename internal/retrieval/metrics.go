package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queriesTotal counts nearest-neighbor queries served.
	queriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "curator",
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total number of retrieval index queries",
		},
	)

	// upsertsTotal counts index upserts from feedback events.
	upsertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "curator",
			Subsystem: "retrieval",
			Name:      "upserts_total",
			Help:      "Total number of retrieval index upserts",
		},
	)
)

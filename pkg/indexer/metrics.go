package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docindexer_jobs_total",
		Help: "Indexing jobs by final status.",
	}, []string{"status"})

	fragmentsIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docindexer_fragments_total",
		Help: "Fragments written to the vector store.",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docindexer_cache_hits_total",
		Help: "Ingestions short-circuited by the content cache.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docindexer_cache_misses_total",
		Help: "Ingestions that ran the full pipeline.",
	})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docindexer_job_duration_seconds",
		Help:    "Wall-clock time of completed indexing jobs.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docindexer_queue_depth",
		Help: "Jobs waiting in the priority queue.",
	})
)

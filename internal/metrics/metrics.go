// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts cache hits by tier (memory, redis)
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costplan_cache_hits_total",
		Help: "Cache hits by tier",
	}, []string{"tier"})

	// CacheMisses counts cache misses by tier
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costplan_cache_misses_total",
		Help: "Cache misses by tier",
	}, []string{"tier"})

	// StageDuration observes per-stage wall time in seconds
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "costplan_stage_duration_seconds",
		Help:    "Stage execution duration",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"stage", "status"})

	// StageRetries counts stage retry attempts
	StageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costplan_stage_retries_total",
		Help: "Stage retries by stage name",
	}, []string{"stage"})

	// JobsByState tracks the current job population per state
	JobsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "costplan_jobs_by_state",
		Help: "Current number of jobs in each state",
	}, []string{"state"})

	// ExecutorQueueDepth tracks queued plan executions
	ExecutorQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "costplan_executor_queue_depth",
		Help: "Plan executions waiting for a worker",
	})

	// DescribeCalls counts provider describe API calls by service
	DescribeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costplan_describe_calls_total",
		Help: "Provider describe calls by service",
	}, []string{"service"})

	// CatalogFetches counts price catalog downloads by service
	CatalogFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costplan_catalog_fetches_total",
		Help: "Price catalog fetches by service and outcome",
	}, []string{"service", "outcome"})
)

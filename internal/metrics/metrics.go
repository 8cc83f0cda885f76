package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cycles_total",
			Help: "Per-user recomputation cycles by result (success, noop, lock_timeout, failed)",
		},
		[]string{"result"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_cycle_duration_seconds",
			Help:    "Duration of a single user's recomputation cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	EvaluationBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_evaluation_batches_total",
			Help: "Scoring batches dispatched by result (ok, fallback)",
		},
		[]string{"result"},
	)

	LockAcquire = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_lock_acquire_total",
			Help: "Lock acquisition attempts by result (acquired, timeout, error, bypassed)",
		},
		[]string{"result"},
	)

	RowsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_rows_persisted_total",
			Help: "Recommendation cache rows upserted",
		},
	)

	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_scheduler_runs_total",
			Help: "Refresh-then-recompute runs by trigger and result",
		},
		[]string{"trigger", "result"},
	)
)

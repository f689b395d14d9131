package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PrefilterOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_prefilter_outcomes_total",
			Help: "Pre-filter decisions by outcome",
		},
		[]string{"status"},
	)

	CompletionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_completion_attempts_total",
			Help: "Completion provider attempts by result",
		},
		[]string{"provider", "result"}, // result: success, error, empty, unauthorized
	)

	CompletionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "applytrack_completion_latency_seconds",
			Help:    "Completion provider call latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"provider"},
	)

	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_classifications_total",
			Help: "Classification outcomes",
		},
		[]string{"outcome"}, // outcome: qualified, unqualified, extraction_failed, error
	)

	ReviewTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_review_transitions_total",
			Help: "Review workflow transitions by action",
		},
		[]string{"action"},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_sync_runs_total",
			Help: "Finished sync runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_rate_limited_total",
			Help: "Calls refused by the local rate limit",
		},
		[]string{"operation"},
	)
)

// RecordCompletion records one provider attempt
func RecordCompletion(provider, result string, duration time.Duration) {
	CompletionAttempts.WithLabelValues(provider, result).Inc()
	CompletionLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// Package metrics provides centralized Prometheus metrics for the polling
// pipeline: poll outcome counters, fetch duration, in-flight gauge, and
// store query duration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollOutcomesTotal counts terminal poll outcomes by category.
	PollOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedspool_poll_outcomes_total",
			Help: "Total number of feed polls by terminal outcome.",
		},
		[]string{"outcome"},
	)

	// PollDuration measures the wall-clock time of a single feed poll.
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedspool_poll_duration_seconds",
			Help:    "Time taken to poll a single feed end to end.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// InFlightPolls tracks the number of polls currently in flight.
	InFlightPolls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedspool_inflight_polls",
			Help: "Number of feed polls currently in flight.",
		},
	)

	// StoreQueryDuration measures the duration of Store operations.
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedspool_store_query_duration_seconds",
			Help:    "Duration of Store operations by name.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)
)

// RecordPollOutcome records a terminal poll outcome and its duration.
func RecordPollOutcome(outcome string, duration time.Duration) {
	PollOutcomesTotal.WithLabelValues(outcome).Inc()
	PollDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// PollStarted increments the in-flight gauge; callers defer PollFinished.
func PollStarted() {
	InFlightPolls.Inc()
}

// PollFinished decrements the in-flight gauge.
func PollFinished() {
	InFlightPolls.Dec()
}

// RecordStoreQuery records the duration of a named Store operation.
func RecordStoreQuery(operation string, duration time.Duration) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Package metrics exposes Prometheus collectors for the extraction pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal        *prometheus.CounterVec
	threadsMerged     prometheus.Counter
	postsMerged       prometheus.Counter
	mergeRetriesTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumharvest_pages_total",
				Help: "Total number of page snapshots processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		threadsMerged = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "forumharvest_threads_merged_total",
				Help: "Total number of thread records merged into the store.",
			},
		)

		postsMerged = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "forumharvest_posts_merged_total",
				Help: "Total number of post rows submitted for insert.",
			},
		)

		mergeRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "forumharvest_merge_retries_total",
				Help: "Total number of merge transactions retried after lock contention.",
			},
		)
	})
}

// RecordPage counts one processed page snapshot with its outcome
// ("merged", "parse_error" or "merge_error").
func RecordPage(outcome string) {
	if pagesTotal == nil {
		return
	}
	pagesTotal.WithLabelValues(outcome).Inc()
}

// RecordThreadMerged counts one successfully merged thread record.
func RecordThreadMerged(posts int) {
	if threadsMerged == nil {
		return
	}
	threadsMerged.Inc()
	postsMerged.Add(float64(posts))
}

// RecordMergeRetry counts one retry of a contended merge transaction.
func RecordMergeRetry() {
	if mergeRetriesTotal == nil {
		return
	}
	mergeRetriesTotal.Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

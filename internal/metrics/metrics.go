// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlRunsTotal        *prometheus.CounterVec
	articlesPersisted     prometheus.Counter
	detailsPersisted      prometheus.Counter
	detailCacheTotal      *prometheus.CounterVec
	fetchDurationSeconds  *prometheus.HistogramVec
	activeDetailWorkers   prometheus.Gauge
	backfillItemsTotal    *prometheus.CounterVec
	categoryFailuresTotal prometheus.Counter

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		crawlRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newscrawler_runs_total",
			Help: "Crawl runs by terminal status.",
		}, []string{"status"})

		articlesPersisted = promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscrawler_articles_persisted_total",
			Help: "New article records persisted.",
		})

		detailsPersisted = promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscrawler_details_persisted_total",
			Help: "Detail records persisted, backfill included.",
		})

		detailCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newscrawler_detail_cache_total",
			Help: "Detail cache lookups by outcome.",
		}, []string{"outcome"})

		fetchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newscrawler_fetch_duration_seconds",
			Help:    "Page fetch latency by page kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"})

		activeDetailWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "newscrawler_active_detail_workers",
			Help: "Detail fetch tasks currently in flight.",
		})

		backfillItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newscrawler_backfill_items_total",
			Help: "Backfill sweep items by outcome.",
		}, []string{"outcome"})

		categoryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscrawler_category_failures_total",
			Help: "Category listing fetches that failed and were skipped.",
		})
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveRun records a finished run by terminal status.
func ObserveRun(status string) {
	Init()
	crawlRunsTotal.WithLabelValues(status).Inc()
}

// AddArticles counts newly persisted article records.
func AddArticles(n int) {
	Init()
	articlesPersisted.Add(float64(n))
}

// IncDetailPersisted counts a persisted detail record.
func IncDetailPersisted() {
	Init()
	detailsPersisted.Inc()
}

// ObserveDetailCache records a cache lookup outcome ("hit" or "miss").
func ObserveDetailCache(outcome string) {
	Init()
	detailCacheTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records a page fetch duration. kind is "listing" or "detail".
func ObserveFetch(kind string, d time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// DetailWorkerStarted and DetailWorkerFinished track in-flight detail tasks.
func DetailWorkerStarted() {
	Init()
	activeDetailWorkers.Inc()
}

// DetailWorkerFinished decrements the in-flight gauge.
func DetailWorkerFinished() {
	Init()
	activeDetailWorkers.Dec()
}

// ObserveBackfillItem records one backfill item outcome ("ok" or "error").
func ObserveBackfillItem(outcome string) {
	Init()
	backfillItemsTotal.WithLabelValues(outcome).Inc()
}

// IncCategoryFailure counts a skipped category.
func IncCategoryFailure() {
	Init()
	categoryFailuresTotal.Inc()
}

// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	broadcastsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxsync_broadcasts_published_total",
			Help: "Total number of broadcast messages published, by kind",
		},
		[]string{"kind"},
	)

	deliveriesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxsync_deliveries_dropped_total",
			Help: "Total number of deliveries dropped because a context's inbox was full",
		},
		[]string{"kind"},
	)

	contextsAttached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandboxsync_contexts_attached",
			Help: "Number of contexts currently attached to the broadcast hub",
		},
	)

	readinessSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sandboxsync_readiness_signals_total",
			Help: "Total number of readiness signals received",
		},
	)

	typingsRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxsync_typings_refreshes_total",
			Help: "Total number of typings refreshes, by outcome",
		},
		[]string{"status"},
	)

	typingsRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandboxsync_typings_refresh_duration_seconds",
			Help:    "Duration of typings refreshes that ran the full pipeline",
			Buckets: prometheus.DefBuckets,
		},
	)

	bundleFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sandboxsync_bundle_fetch_failures_total",
			Help: "Total number of declaration bundle fetches that failed",
		},
	)
)

// RecordBroadcast counts a published message.
func RecordBroadcast(kind string) {
	broadcastsPublished.WithLabelValues(kind).Inc()
}

// RecordDroppedDelivery counts a delivery that was dropped for a slow context.
func RecordDroppedDelivery(kind string) {
	deliveriesDropped.WithLabelValues(kind).Inc()
}

func SetContextsAttached(n int) {
	contextsAttached.Set(float64(n))
}

func RecordReadinessSignal() {
	readinessSignals.Inc()
}

// RecordTypingsRefresh counts a refresh outcome. The duration is only
// recorded for refreshes that went past the modification time check.
func RecordTypingsRefresh(status string, duration time.Duration, ranPipeline bool) {
	typingsRefreshes.WithLabelValues(status).Inc()
	if ranPipeline {
		typingsRefreshDuration.Observe(duration.Seconds())
	}
}

func RecordBundleFetchFailure() {
	bundleFetchFailures.Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics exposes Prometheus collectors for the extraction service.
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
	pagesFetchedTotal     *prometheus.CounterVec
	pagesFailedTotal      *prometheus.CounterVec
	escalationsTotal      *prometheus.CounterVec
	eventsSuppressedTotal *prometheus.CounterVec
	phaseDurationSeconds  *prometheus.HistogramVec
	discoveredURLs        prometheus.Histogram
	activeExtractions     prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteharvest_pages_fetched_total",
				Help: "Pages fetched successfully, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		pagesFailedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteharvest_pages_failed_total",
				Help: "Page fetches that yielded no usable content, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		escalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteharvest_escalations_total",
				Help: "Enhancement re-fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		eventsSuppressedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteharvest_events_suppressed_total",
				Help: "Progress events dropped by duplicate suppression, labeled by window.",
			},
			[]string{"window"},
		)

		phaseDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteharvest_phase_duration_seconds",
				Help:    "Wall time spent per pipeline phase.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		)

		discoveredURLs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "siteharvest_discovered_urls",
				Help:    "Candidate URLs surviving discovery per run.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 200},
			},
		)

		activeExtractions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "siteharvest_active_extractions",
				Help: "Extraction runs currently in flight.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetched counts a successful fetch for the given strategy.
func ObservePageFetched(strategy string) {
	if pagesFetchedTotal != nil {
		pagesFetchedTotal.WithLabelValues(strategy).Inc()
	}
}

// ObservePageFailed counts a fetch that produced no usable record.
func ObservePageFailed(strategy string) {
	if pagesFailedTotal != nil {
		pagesFailedTotal.WithLabelValues(strategy).Inc()
	}
}

// ObserveEscalation counts an enhancement attempt by outcome
// ("replaced" or "retained").
func ObserveEscalation(outcome string) {
	if escalationsTotal != nil {
		escalationsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveEventSuppressed counts a suppressed event by dedup window
// ("dedup", "notification" or "terminal").
func ObserveEventSuppressed(window string) {
	if eventsSuppressedTotal != nil {
		eventsSuppressedTotal.WithLabelValues(window).Inc()
	}
}

// ObservePhaseDuration records wall time for one phase.
func ObservePhaseDuration(phase string, d time.Duration) {
	if phaseDurationSeconds != nil {
		phaseDurationSeconds.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// ObserveDiscoveredURLs records the discovery yield for one run.
func ObserveDiscoveredURLs(count int) {
	if discoveredURLs != nil {
		discoveredURLs.Observe(float64(count))
	}
}

// ExtractionStarted increments the in-flight gauge.
func ExtractionStarted() {
	if activeExtractions != nil {
		activeExtractions.Inc()
	}
}

// ExtractionFinished decrements the in-flight gauge.
func ExtractionFinished() {
	if activeExtractions != nil {
		activeExtractions.Dec()
	}
}

// Package metrics holds the Prometheus collectors for ingestion and correlation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Incident actions.
const (
	ActionCreated  = "created"
	ActionAttached = "attached"
)

// Skip reasons.
const (
	SkipDuplicate   = "duplicate"
	SkipNoLink      = "no_link"
	SkipFiltered    = "filtered"
	SkipOutOfRegion = "out_of_region"
	SkipFailed      = "failed"
)

// Feed fetch outcomes.
const (
	FetchOK          = "ok"
	FetchNotModified = "not_modified"
	FetchError       = "error"
	FetchCircuitOpen = "circuit_open"
)

const namespace = "breakwatch"

var (
	signalsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_ingested_total",
			Help:      "Signals persisted and correlated, partitioned by source type.",
		},
		[]string{"source_type"},
	)

	signalsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_skipped_total",
			Help:      "Feed entries not ingested, partitioned by reason.",
		},
		[]string{"reason"},
	)

	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_total",
			Help:      "Incident updates from ingestion, partitioned by created or attached.",
		},
		[]string{"action"},
	)

	feedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Feed fetch attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	ingestSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_seconds",
			Help:      "Latency of a single signal ingest transaction in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// Register attaches the collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		signalsIngestedTotal,
		signalsSkippedTotal,
		incidentsTotal,
		feedFetchesTotal,
		ingestSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveIngest records one ingested signal and what happened to its incident.
func ObserveIngest(sourceType string, created bool, duration time.Duration) {
	signalsIngestedTotal.WithLabelValues(sourceType).Inc()
	action := ActionAttached
	if created {
		action = ActionCreated
	}
	incidentsTotal.WithLabelValues(action).Inc()
	ingestSeconds.Observe(max(duration, 0).Seconds())
}

// ObserveSkip records an entry that was not ingested.
func ObserveSkip(reason string) {
	signalsSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveFetch records a feed fetch outcome.
func ObserveFetch(outcome string) {
	feedFetchesTotal.WithLabelValues(outcome).Inc()
}

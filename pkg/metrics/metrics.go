// Package metrics provides Prometheus metrics for the Fern reading store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsCreatedTotal tracks readings created by source type
	ReadingsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "readings",
			Name:      "created_total",
			Help:      "Total number of readings created by source type",
		},
		[]string{"source_type", "kind"},
	)

	// LinksCreatedTotal tracks entry links created
	LinksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "links",
			Name:      "created_total",
			Help:      "Total number of reading/entry links created",
		},
		[]string{"link_type"},
	)

	// LinksSkippedTotal tracks idempotent link requests that already existed
	LinksSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "links",
			Name:      "skipped_total",
			Help:      "Total number of link requests skipped because the pair already existed",
		},
	)

	// LinksRemovedTotal tracks unlink operations that removed a link
	LinksRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "links",
			Name:      "removed_total",
			Help:      "Total number of reading/entry links removed",
		},
	)

	// MigrationsTotal tracks migration outcomes by name
	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "migrations",
			Name:      "runs_total",
			Help:      "Total number of migration applications by outcome",
		},
		[]string{"name", "status"},
	)

	// DatabaseQueryDuration tracks store query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of store queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordReadingCreated records a reading creation with its link fan-out.
func RecordReadingCreated(sourceType, kind string, linkTypes []string) {
	ReadingsCreatedTotal.WithLabelValues(sourceType, kind).Inc()
	for _, lt := range linkTypes {
		LinksCreatedTotal.WithLabelValues(lt).Inc()
	}
}

// RecordLinkOutcome records the result of an idempotent link request.
func RecordLinkOutcome(linkType string, created, skipped int) {
	if created > 0 {
		LinksCreatedTotal.WithLabelValues(linkType).Add(float64(created))
	}
	if skipped > 0 {
		LinksSkippedTotal.Add(float64(skipped))
	}
}

// RecordMigration records one migration application outcome.
func RecordMigration(name string, success bool) {
	status := "applied"
	if !success {
		status = "failed"
	}
	MigrationsTotal.WithLabelValues(name, status).Inc()
}

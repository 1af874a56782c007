// Package metrics exposes the tracker's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "woodgate"

var (
	// CapturesTotal counts collector fetches by source and outcome.
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "captures_total",
		Help:      "Estimate capture attempts by source and status.",
	}, []string{"source", "status"})

	// CaptureBatchDuration observes the wall time of one capture batch.
	CaptureBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capture_batch_duration_seconds",
		Help:      "Wall time of one capture batch, politeness delays included.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// EstimatesSaved counts estimates written to storage.
	EstimatesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "estimates_saved_total",
		Help:      "Estimates written to storage.",
	})

	// SalesRecorded counts sales accepted into the ledger.
	SalesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sales_recorded_total",
		Help:      "Sales accepted into the ledger.",
	})

	// StaleUnits tracks how many (unit, source) pairs are currently stale.
	StaleUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stale_units",
		Help:      "Unit/source pairs whose latest sale postdates the latest capture.",
	})

	// LastExport records when the site data was last written.
	LastExport = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_export_unixtime",
		Help:      "Unix time of the last site data export.",
	})
)

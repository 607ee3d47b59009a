// Package metrics exposes batch counters on the default Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orderproof"

var (
	UploadAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_attempts_total",
		Help:      "Upload or share attempts made against the storage backend.",
	})

	ItemOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_total",
		Help:      "Processed orders by outcome.",
	}, []string{"outcome"})

	ItemDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "item_duration_seconds",
		Help:      "Wall time per order from capture start to record.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	BatchesAborted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_aborted_total",
		Help:      "Batches stopped by a fatal infrastructure error or interrupt.",
	})
)

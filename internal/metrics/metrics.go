// Package metrics exposes the operator-facing Prometheus gauges and
// histograms for outbox health, in the same promauto pattern the
// teacher's HTTP metrics middleware uses, renamespaced from "paybridge"
// to "eventbus".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutboxRowsByState reports the current row count per outbox
	// state, refreshed each republisher pass.
	OutboxRowsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "eventbus",
		Subsystem: "outbox",
		Name:      "rows",
		Help:      "Current IntegrationEventLog row count by state.",
	}, []string{"state"})

	// RepublishDuration times one republisher sweep, from
	// retrievePending through the row-count refresh that ends it.
	RepublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventbus",
		Subsystem: "outbox",
		Name:      "republish_duration_seconds",
		Help:      "Wall-clock time of one republisher sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	// ReaperRowsReset counts rows the reaper has transitioned from
	// InProgress to PublishedFailed, across the process lifetime.
	ReaperRowsReset = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventbus",
		Subsystem: "outbox",
		Name:      "reaper_rows_reset_total",
		Help:      "Outbox rows the reaper has transitioned from InProgress to PublishedFailed.",
	})
)

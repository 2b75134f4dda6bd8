// Package observability holds process-wide Prometheus instrumentation.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	parseDecisionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quicklog",
		Subsystem: "parse",
		Name:      "decisions_total",
		Help:      "Number of parse decisions grouped by entry type and decision.",
	}, []string{"entry_type", "decision"})

	parseConfidenceHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quicklog",
		Subsystem: "parse",
		Name:      "confidence",
		Help:      "Distribution of confidence scores assigned to parsed segments.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	entryPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quicklog",
		Subsystem: "persistence",
		Name:      "last_entry_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent entry persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(parseDecisionCounter, parseConfidenceHistogram, entryPersistGauge)
}

// RecordParseDecision counts one parsed segment by entry type and decision.
func RecordParseDecision(entryType, decision string, confidence int) {
	parseDecisionCounter.WithLabelValues(entryType, decision).Inc()
	parseConfidenceHistogram.Observe(float64(confidence))
}

// RecordEntryPersisted updates the persistence watermark gauge.
func RecordEntryPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	entryPersistGauge.Set(float64(ts.Unix()))
}

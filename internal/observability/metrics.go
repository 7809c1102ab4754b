// Package observability holds the process-wide metrics and logger setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes reported by the recorder.
const (
	OutcomeNew       = "new"
	OutcomeDuplicate = "duplicate"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_service",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity first recorded in the store.",
	})

	recordOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "recorder",
		Name:      "records_total",
		Help:      "Number of log records recorded, split into new and duplicate deliveries.",
	}, []string{"outcome", "activity_type"})

	recordDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "activity_service",
		Subsystem: "recorder",
		Name:      "process_duration_seconds",
		Help:      "Time spent decoding and upserting a single log record.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	recordFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "recorder",
		Name:      "failures_total",
		Help:      "Number of log records that could not be recorded, by failure kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, recordOutcomeCounter, recordDuration, recordFailureCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordOutcome counts a successfully recorded log record.
func RecordOutcome(outcome, activityType string, elapsed time.Duration) {
	recordOutcomeCounter.WithLabelValues(outcome, activityType).Inc()
	recordDuration.Observe(elapsed.Seconds())
}

// RecordFailure counts a record that failed validation or storage.
func RecordFailure(kind string) {
	recordFailureCounter.WithLabelValues(kind).Inc()
}

// OutcomeCount exposes the outcome counter for a label pair; used by tests.
func OutcomeCount(outcome, activityType string) prometheus.Counter {
	return recordOutcomeCounter.WithLabelValues(outcome, activityType)
}

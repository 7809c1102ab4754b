package eventlog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "publisher",
		Name:      "messages_published_total",
		Help:      "Number of activity events written to the event log.",
	}, []string{"activity_type"})

	publishFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "publisher",
		Name:      "publish_failures_total",
		Help:      "Number of activity events the event log rejected.",
	}, []string{"activity_type"})

	publishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "activity_service",
		Subsystem: "publisher",
		Name:      "publish_duration_seconds",
		Help:      "Latency of successful publishes.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(publishedCounter, publishFailureCounter, publishDuration)
}

func recordPublished(activityType string, elapsed time.Duration) {
	publishedCounter.WithLabelValues(activityType).Inc()
	publishDuration.Observe(elapsed.Seconds())
}

func recordPublishFailure(activityType string) {
	publishFailureCounter.WithLabelValues(activityType).Inc()
}

package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages successfully handled.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of records skipped after a handler error, by kind.",
	}, []string{"topic", "kind"})

	transportErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "consumer",
		Name:      "transport_errors_total",
		Help:      "Number of fatal fetch or commit failures.",
	}, []string{"op"})

	deadLetterCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "consumer",
		Name:      "dead_letters_total",
		Help:      "Number of records written to the dead-letter table.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity_service",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, transportErrorCounter, deadLetterCounter, lastMessageGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message, kind string) {
	handlerErrorCounter.WithLabelValues(msg.Topic, kind).Inc()
}

func recordTransportError(op string) {
	transportErrorCounter.WithLabelValues(op).Inc()
}

func recordDeadLetter(topic string) {
	deadLetterCounter.WithLabelValues(topic).Inc()
}

// Package eventlog connects the service to the Kafka event log.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/activitylog/internal/domain"
	"example.com/activitylog/internal/events"
)

// MessageWriter is the subset of *kafka.Writer used by the Publisher.
type MessageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Config describes how to reach the event log.
type Config struct {
	Brokers      []string
	ClientID     string
	Topic        string
	Acks         kafka.RequiredAcks
	MaxAttempts  int
	WriteTimeout time.Duration
}

// ParseAcks maps a configured acknowledgment level onto kafka-go. Only
// leader and full ISR acknowledgment are accepted.
func ParseAcks(raw string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all", "-1":
		return kafka.RequireAll, nil
	case "leader", "one", "1":
		return kafka.RequireOne, nil
	default:
		return 0, fmt.Errorf("unsupported producer acks %q (want all or leader)", raw)
	}
}

// NewWriter builds a synchronous writer that routes records by key hash, so
// every record for one user lands on the same partition.
func NewWriter(cfg Config) *kafka.Writer {
	acks := cfg.Acks
	if acks == kafka.RequireNone {
		acks = kafka.RequireAll
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		Compression:  kafka.Snappy,
		Async:        false,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger overrides the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// WithPublisherClock overrides the clock used for the produced-at header.
func WithPublisherClock(clock func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = clock }
}

// Publisher writes activity events to the log keyed by user id.
type Publisher struct {
	writer MessageWriter
	now    func() time.Time
	logger *slog.Logger
}

// NewPublisher constructs a Publisher around writer.
func NewPublisher(writer MessageWriter, opts ...PublisherOption) *Publisher {
	p := &Publisher{writer: writer, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish serializes the event and writes it. Transport failures come back
// as *domain.TransportError; retries are left to the writer's MaxAttempts.
func (p *Publisher) Publish(ctx context.Context, event domain.ActivityEvent) error {
	payload, err := event.Envelope().Encode()
	if err != nil {
		return fmt.Errorf("encode activity %s: %w", event.EventID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(event.ActivityType)},
			{Key: events.HeaderProducedAt, Value: []byte(p.now().UTC().Format(time.RFC3339Nano))},
		},
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		recordPublishFailure(string(event.ActivityType))
		p.logger.ErrorContext(ctx, "publish failed", "event_id", event.EventID, "user_id", event.UserID, "error", err)
		return &domain.TransportError{Op: "publish", Err: err}
	}
	recordPublished(string(event.ActivityType), time.Since(start))
	p.logger.DebugContext(ctx, "activity published", "event_id", event.EventID, "activity_type", event.ActivityType)
	return nil
}

// Close flushes and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

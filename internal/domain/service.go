// Package domain defines the business logic for the activity log service.
package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Publisher hands an event to the event log.
type Publisher interface {
	Publish(ctx context.Context, event ActivityEvent) error
}

// CreateActivityInput captures the payload from the API layer.
type CreateActivityInput struct {
	UserID       string
	ActivityType string
	Metadata     map[string]any
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestorClock overrides the clock used for occurredAt.
func WithIngestorClock(clock Clock) IngestorOption {
	return func(i *Ingestor) { i.now = clock }
}

// WithIngestorLogger overrides the logger.
func WithIngestorLogger(logger *slog.Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = logger }
}

// Ingestor accepts activities at the edge and publishes them for
// asynchronous recording.
type Ingestor struct {
	publisher Publisher
	now       Clock
	logger    *slog.Logger
}

// NewIngestor constructs an Ingestor.
func NewIngestor(publisher Publisher, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{publisher: publisher, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Accept validates the input, creates the event and publishes it. Nothing is
// published when validation fails.
func (i *Ingestor) Accept(ctx context.Context, input CreateActivityInput) (ActivityEvent, error) {
	activityType, err := ParseActivityType(input.ActivityType)
	if err != nil {
		return ActivityEvent{}, err
	}

	event, err := NewActivityEvent(input.UserID, activityType, input.Metadata, i.now())
	if err != nil {
		return ActivityEvent{}, err
	}

	if err := i.publisher.Publish(ctx, event); err != nil {
		i.logger.ErrorContext(ctx, "activity publish failed", "event_id", event.EventID, "user_id", event.UserID, "error", err)
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			return ActivityEvent{}, err
		}
		return ActivityEvent{}, &TransportError{Op: "publish", Err: err}
	}

	i.logger.InfoContext(ctx, "activity accepted", "event_id", event.EventID, "user_id", event.UserID, "activity_type", event.ActivityType)
	return event, nil
}

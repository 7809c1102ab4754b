package domain

import (
	"context"
	"log/slog"
	"time"

	"example.com/activitylog/internal/observability"
)

// Clock supplies the current time.
type Clock func() time.Time

// ProcessResult reports how a delivered record was recorded.
type ProcessResult struct {
	IsNew    bool
	EventID  string
	Duration time.Duration
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the clock used to stamp processedAt.
func WithRecorderClock(clock Clock) RecorderOption {
	return func(r *Recorder) { r.now = clock }
}

// WithRecorderLogger overrides the logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// Recorder persists delivered log records exactly once per event id.
type Recorder struct {
	store  ActivityStore
	now    Clock
	logger *slog.Logger
}

// NewRecorder constructs a Recorder backed by store.
func NewRecorder(store ActivityStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process decodes a raw record, stamps it and stores it if absent.
//
// New and duplicate deliveries are told apart by the processedAt value on the
// returned record: only the attempt that inserted the row sees its own stamp.
// Two attempts stamping the same microsecond both report new; storage is
// still written once, only the metrics double count.
func (r *Recorder) Process(ctx context.Context, raw []byte) (ProcessResult, error) {
	start := time.Now()

	event, err := DecodeActivityRecord(raw)
	if err != nil {
		observability.RecordFailure("validation")
		return ProcessResult{}, err
	}

	processedAt := r.now().UTC().Truncate(time.Microsecond)
	stored, err := r.store.UpsertIfAbsent(ctx, event.Processed(processedAt))
	if err != nil {
		observability.RecordFailure("store")
		r.logger.ErrorContext(ctx, "activity upsert failed", "event_id", event.EventID, "user_id", event.UserID, "error", err)
		return ProcessResult{EventID: event.EventID}, &StoreError{Op: "upsert", Err: err}
	}

	isNew := stored.ProcessedAt != nil && stored.ProcessedAt.Equal(processedAt)
	elapsed := time.Since(start)

	outcome := observability.OutcomeDuplicate
	if isNew {
		outcome = observability.OutcomeNew
		observability.RecordActivityPersisted(processedAt)
		r.logger.InfoContext(ctx, "activity recorded", "event_id", event.EventID, "activity_type", event.ActivityType, "duration", elapsed)
	} else {
		r.logger.InfoContext(ctx, "duplicate activity skipped", "event_id", event.EventID, "activity_type", event.ActivityType, "duration", elapsed)
	}
	observability.RecordOutcome(outcome, string(event.ActivityType), elapsed)

	return ProcessResult{IsNew: isNew, EventID: event.EventID, Duration: elapsed}, nil
}

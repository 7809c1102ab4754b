package consumer

import (
	"context"

	"example.com/activitylog/internal/domain"
)

// RecordProcessor is satisfied by *domain.Recorder.
type RecordProcessor interface {
	Process(ctx context.Context, raw []byte) (domain.ProcessResult, error)
}

// PersistenceHandler records each consumed activity exactly once.
type PersistenceHandler struct {
	recorder RecordProcessor
}

// NewPersistenceHandler constructs a handler backed by the provided recorder.
func NewPersistenceHandler(recorder RecordProcessor) *PersistenceHandler {
	return &PersistenceHandler{recorder: recorder}
}

// Handle passes the payload to the recorder. Duplicates are not errors.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.recorder.Process(ctx, msg.Payload)
	return err
}

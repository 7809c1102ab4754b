// Package events defines the wire payloads exchanged over the activity log.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Header keys attached to every record on the activity topic.
const (
	HeaderEventType  = "event-type"
	HeaderProducedAt = "produced-at"
)

// ActivityEnvelope is the JSON body of a record on the activity topic.
type ActivityEnvelope struct {
	EventID      string         `json:"eventId"`
	UserID       string         `json:"userId"`
	ActivityType string         `json:"activityType"`
	Metadata     map[string]any `json:"metadata"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

// FieldError reports a required envelope field that is missing or malformed.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid envelope field %s: %s", e.Field, e.Reason)
}

// Encode serialises the envelope.
func (e ActivityEnvelope) Encode() ([]byte, error) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return json.Marshal(e)
}

// DecodeActivityEnvelope parses a record body, rejecting unknown fields,
// trailing data and missing required fields.
func DecodeActivityEnvelope(raw []byte) (ActivityEnvelope, error) {
	var env ActivityEnvelope

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return ActivityEnvelope{}, fmt.Errorf("decode activity envelope: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return ActivityEnvelope{}, fmt.Errorf("decode activity envelope: trailing data after object")
	}

	switch {
	case env.EventID == "":
		return ActivityEnvelope{}, &FieldError{Field: "eventId", Reason: "required"}
	case env.UserID == "":
		return ActivityEnvelope{}, &FieldError{Field: "userId", Reason: "required"}
	case env.ActivityType == "":
		return ActivityEnvelope{}, &FieldError{Field: "activityType", Reason: "required"}
	case env.OccurredAt.IsZero():
		return ActivityEnvelope{}, &FieldError{Field: "occurredAt", Reason: "required"}
	}

	if env.Metadata == nil {
		env.Metadata = map[string]any{}
	}
	return env, nil
}

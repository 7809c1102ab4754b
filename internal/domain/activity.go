package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/activitylog/internal/events"
)

// ActivityType enumerates the activities the service records.
type ActivityType string

const (
	ActivityUserLogin      ActivityType = "USER_LOGIN"
	ActivityUserLogout     ActivityType = "USER_LOGOUT"
	ActivityPageView       ActivityType = "PAGE_VIEW"
	ActivityButtonClick    ActivityType = "BUTTON_CLICK"
	ActivityItemPurchased  ActivityType = "ITEM_PURCHASED"
	ActivityProfileUpdated ActivityType = "PROFILE_UPDATED"
)

// MaxUserIDLength bounds the length of a user identifier.
const MaxUserIDLength = 255

var activityTypes = []ActivityType{
	ActivityUserLogin,
	ActivityUserLogout,
	ActivityPageView,
	ActivityButtonClick,
	ActivityItemPurchased,
	ActivityProfileUpdated,
}

// ActivityTypes returns the closed set of accepted activity types.
func ActivityTypes() []ActivityType {
	out := make([]ActivityType, len(activityTypes))
	copy(out, activityTypes)
	return out
}

// Valid reports whether t belongs to the enumeration.
func (t ActivityType) Valid() bool {
	for _, known := range activityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseActivityType normalises caller input (trim, upper-case) and checks it
// against the enumeration.
func ParseActivityType(raw string) (ActivityType, error) {
	t := ActivityType(strings.ToUpper(strings.TrimSpace(raw)))
	if t == "" {
		return "", NewValidationError("activityType", "is required")
	}
	if !t.Valid() {
		return "", NewValidationError("activityType", "must be one of: %s", joinActivityTypes())
	}
	return t, nil
}

func joinActivityTypes() string {
	names := make([]string, 0, len(activityTypes))
	for _, t := range activityTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// ActivityEvent is one recorded occurrence of a user activity.
type ActivityEvent struct {
	EventID      string
	UserID       string
	ActivityType ActivityType
	Metadata     map[string]any
	OccurredAt   time.Time
	ProcessedAt  *time.Time
}

// NewActivityEvent builds a pending event with a fresh identifier. Timestamps
// are kept at microsecond precision, the resolution of the store.
func NewActivityEvent(userID string, activityType ActivityType, metadata map[string]any, now time.Time) (ActivityEvent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ActivityEvent{}, NewValidationError("userId", "is required")
	}
	if len(userID) > MaxUserIDLength {
		return ActivityEvent{}, NewValidationError("userId", "must be at most %d characters", MaxUserIDLength)
	}
	if !activityType.Valid() {
		return ActivityEvent{}, NewValidationError("activityType", "must be one of: %s", joinActivityTypes())
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	return ActivityEvent{
		EventID:      uuid.NewString(),
		UserID:       userID,
		ActivityType: activityType,
		Metadata:     metadata,
		OccurredAt:   now.UTC().Truncate(time.Microsecond),
	}, nil
}

// Processed returns a copy of the event stamped with the given processing time.
func (e ActivityEvent) Processed(at time.Time) ActivityEvent {
	stamp := at.UTC()
	e.ProcessedAt = &stamp
	return e
}

// Envelope converts the event into its wire representation.
func (e ActivityEvent) Envelope() events.ActivityEnvelope {
	return events.ActivityEnvelope{
		EventID:      e.EventID,
		UserID:       e.UserID,
		ActivityType: string(e.ActivityType),
		Metadata:     e.Metadata,
		OccurredAt:   e.OccurredAt,
	}
}

// DecodeActivityRecord turns a raw log record into an event. Every failure is
// a *ValidationError: the record is malformed and retrying cannot fix it.
func DecodeActivityRecord(raw []byte) (ActivityEvent, error) {
	env, err := events.DecodeActivityEnvelope(raw)
	if err != nil {
		var fieldErr *events.FieldError
		if errors.As(err, &fieldErr) {
			return ActivityEvent{}, NewValidationError(fieldErr.Field, "%s", fieldErr.Reason)
		}
		return ActivityEvent{}, NewValidationError("record", "%v", err)
	}

	if _, err := uuid.Parse(env.EventID); err != nil {
		return ActivityEvent{}, NewValidationError("eventId", "must be a UUID")
	}
	userID := strings.TrimSpace(env.UserID)
	if userID == "" {
		return ActivityEvent{}, NewValidationError("userId", "is required")
	}
	if len(userID) > MaxUserIDLength {
		return ActivityEvent{}, NewValidationError("userId", "must be at most %d characters", MaxUserIDLength)
	}
	activityType := ActivityType(env.ActivityType)
	if !activityType.Valid() {
		return ActivityEvent{}, NewValidationError("activityType", "unknown activity type %q", env.ActivityType)
	}

	return ActivityEvent{
		EventID:      env.EventID,
		UserID:       userID,
		ActivityType: activityType,
		Metadata:     env.Metadata,
		OccurredAt:   env.OccurredAt.UTC().Truncate(time.Microsecond),
	}, nil
}

func (e ActivityEvent) String() string {
	return fmt.Sprintf("%s(%s, user=%s)", e.ActivityType, e.EventID, e.UserID)
}

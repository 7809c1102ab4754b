package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueryParams are the externally supplied list filters, as received.
type QueryParams struct {
	UserID       string
	ActivityType string
	From         string
	To           string
	Page         int
	Limit        int
}

// ActivityView is the external shape of a stored activity.
type ActivityView struct {
	EventID      string         `json:"eventId"`
	UserID       string         `json:"userId"`
	ActivityType ActivityType   `json:"activityType"`
	Metadata     map[string]any `json:"metadata"`
	OccurredAt   time.Time      `json:"occurredAt"`
	ProcessedAt  *time.Time     `json:"processedAt"`
}

// ListResult packages a page of views.
type ListResult struct {
	Items      []ActivityView `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

// QueryOption configures a QueryService.
type QueryOption func(*QueryService)

// WithPageLimits overrides the default and maximum page sizes. The maximum
// never exceeds MaxPageLimit.
func WithPageLimits(defaultLimit, maxLimit int) QueryOption {
	return func(s *QueryService) {
		if maxLimit > 0 && maxLimit <= MaxPageLimit {
			s.maxLimit = maxLimit
		}
		if defaultLimit > 0 && defaultLimit <= s.maxLimit {
			s.defaultLimit = defaultLimit
		}
	}
}

// QueryService validates read requests and shapes store results.
type QueryService struct {
	store        ActivityStore
	defaultLimit int
	maxLimit     int
}

// NewQueryService constructs a QueryService.
func NewQueryService(store ActivityStore, opts ...QueryOption) *QueryService {
	s := &QueryService{store: store, defaultLimit: DefaultPageLimit, maxLimit: MaxPageLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns a page of activities, most recent first.
func (s *QueryService) List(ctx context.Context, params QueryParams) (ListResult, error) {
	filter, err := s.filterFromParams(params)
	if err != nil {
		return ListResult{}, err
	}
	page, limit := s.normalizePage(params.Page, params.Limit)

	result, err := s.store.Query(ctx, filter, page, limit)
	if err != nil {
		return ListResult{}, &StoreError{Op: "query", Err: err}
	}

	items := make([]ActivityView, 0, len(result.Items))
	for _, rec := range result.Items {
		items = append(items, toView(rec))
	}
	return ListResult{Items: items, Pagination: result.Pagination}, nil
}

// Get fetches one activity by event id.
func (s *QueryService) Get(ctx context.Context, eventID string) (ActivityView, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ActivityView{}, NewValidationError("eventId", "is required")
	}
	if _, err := uuid.Parse(eventID); err != nil {
		return ActivityView{}, NewValidationError("eventId", "must be a valid UUID")
	}

	rec, err := s.store.FindByEventID(ctx, eventID)
	if err != nil {
		return ActivityView{}, &StoreError{Op: "find", Err: err}
	}
	if rec == nil {
		return ActivityView{}, ErrActivityNotFound
	}
	return toView(*rec), nil
}

// Stats aggregates counts per activity type, optionally for one user.
func (s *QueryService) Stats(ctx context.Context, userID string) ([]ActivityStat, error) {
	userID = strings.TrimSpace(userID)
	if len(userID) > MaxUserIDLength {
		return nil, NewValidationError("userId", "must be at most %d characters", MaxUserIDLength)
	}
	stats, err := s.store.Aggregate(ctx, userID)
	if err != nil {
		return nil, &StoreError{Op: "aggregate", Err: err}
	}
	if stats == nil {
		stats = []ActivityStat{}
	}
	return stats, nil
}

func (s *QueryService) filterFromParams(params QueryParams) (ActivityFilter, error) {
	var filter ActivityFilter

	filter.UserID = strings.TrimSpace(params.UserID)
	if len(filter.UserID) > MaxUserIDLength {
		return ActivityFilter{}, NewValidationError("userId", "must be at most %d characters", MaxUserIDLength)
	}

	if strings.TrimSpace(params.ActivityType) != "" {
		t, err := ParseActivityType(params.ActivityType)
		if err != nil {
			return ActivityFilter{}, err
		}
		filter.ActivityType = t
	}

	from, err := parseInstant("from", params.From)
	if err != nil {
		return ActivityFilter{}, err
	}
	to, err := parseInstant("to", params.To)
	if err != nil {
		return ActivityFilter{}, err
	}
	if from != nil && to != nil && from.After(*to) {
		return ActivityFilter{}, NewValidationError("from", "must be before or equal to to")
	}
	filter.From, filter.To = from, to

	return filter, nil
}

func (s *QueryService) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return page, limit
}

// Accepted ISO 8601 forms. Zone-less values are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseInstant(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range instantLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, NewValidationError(field, "must be a valid ISO 8601 date")
}

func toView(rec ActivityRecord) ActivityView {
	return ActivityView{
		EventID:      rec.EventID,
		UserID:       rec.UserID,
		ActivityType: rec.ActivityType,
		Metadata:     rec.Metadata,
		OccurredAt:   rec.OccurredAt,
		ProcessedAt:  rec.ProcessedAt,
	}
}

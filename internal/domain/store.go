package domain

import (
	"context"
	"time"
)

// Page size bounds applied by every store implementation.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ActivityRecord is a persisted event. RowID is internal to the store and is
// only used to break ordering ties.
type ActivityRecord struct {
	RowID int64
	ActivityEvent
}

// ActivityFilter narrows a query. Zero values mean "any"; From and To are inclusive.
type ActivityFilter struct {
	UserID       string
	ActivityType ActivityType
	From         *time.Time
	To           *time.Time
}

// Matches reports whether an event satisfies the filter.
func (f ActivityFilter) Matches(e ActivityEvent) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.ActivityType != "" && e.ActivityType != f.ActivityType {
		return false
	}
	if f.From != nil && e.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.OccurredAt.After(*f.To) {
		return false
	}
	return true
}

// Pagination describes a 1-indexed page of results.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// ClampPage forces page to at least 1 and limit into [1, MaxPageLimit],
// substituting DefaultPageLimit for non-positive limits.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// NewPagination computes the derived page fields.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// ActivityPage is one page of query results, most recent first.
type ActivityPage struct {
	Items      []ActivityRecord
	Pagination Pagination
}

// ActivityStat summarises one activity type.
type ActivityStat struct {
	ActivityType ActivityType `json:"activityType"`
	Count        int64        `json:"count"`
	LastOccurred time.Time    `json:"lastOccurred"`
}

// ActivityStore captures persistence operations.
type ActivityStore interface {
	// UpsertIfAbsent stores the event unless one with the same EventID exists
	// and returns whichever record is stored afterwards. It must be a single
	// atomic operation on the store side.
	UpsertIfAbsent(ctx context.Context, event ActivityEvent) (ActivityRecord, error)
	// FindByEventID returns nil when no record exists.
	FindByEventID(ctx context.Context, eventID string) (*ActivityRecord, error)
	Query(ctx context.Context, filter ActivityFilter, page, limit int) (ActivityPage, error)
	Aggregate(ctx context.Context, userID string) ([]ActivityStat, error)
}

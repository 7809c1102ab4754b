// Package memory provides an in-process ActivityStore used by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/activitylog/internal/domain"
)

// Repository keeps activity records in memory. Every operation runs inside a
// single critical section, which gives UpsertIfAbsent the same atomicity the
// PostgreSQL statement has.
type Repository struct {
	mu      sync.RWMutex
	nextID  int64
	byEvent map[string]domain.ActivityRecord
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{byEvent: make(map[string]domain.ActivityRecord)}
}

// UpsertIfAbsent implements domain.ActivityStore.
func (r *Repository) UpsertIfAbsent(_ context.Context, event domain.ActivityEvent) (domain.ActivityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byEvent[event.EventID]; ok {
		return cloneRecord(existing), nil
	}

	if event.ProcessedAt == nil {
		now := time.Now().UTC().Truncate(time.Microsecond)
		event.ProcessedAt = &now
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	r.nextID++
	rec := domain.ActivityRecord{RowID: r.nextID, ActivityEvent: event}
	r.byEvent[event.EventID] = rec
	return cloneRecord(rec), nil
}

// FindByEventID implements domain.ActivityStore.
func (r *Repository) FindByEventID(_ context.Context, eventID string) (*domain.ActivityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byEvent[eventID]
	if !ok {
		return nil, nil
	}
	out := cloneRecord(rec)
	return &out, nil
}

// Query implements domain.ActivityStore.
func (r *Repository) Query(_ context.Context, filter domain.ActivityFilter, page, limit int) (domain.ActivityPage, error) {
	page, limit = domain.ClampPage(page, limit)

	r.mu.RLock()
	matched := make([]domain.ActivityRecord, 0)
	for _, rec := range r.byEvent {
		if filter.Matches(rec.ActivityEvent) {
			matched = append(matched, cloneRecord(rec))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].RowID > matched[j].RowID
	})

	total := int64(len(matched))
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return domain.ActivityPage{
		Items:      matched[start:end],
		Pagination: domain.NewPagination(page, limit, total),
	}, nil
}

// Aggregate implements domain.ActivityStore.
func (r *Repository) Aggregate(_ context.Context, userID string) ([]domain.ActivityStat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := make(map[domain.ActivityType]*domain.ActivityStat)
	for _, rec := range r.byEvent {
		if userID != "" && rec.UserID != userID {
			continue
		}
		stat, ok := byType[rec.ActivityType]
		if !ok {
			stat = &domain.ActivityStat{ActivityType: rec.ActivityType}
			byType[rec.ActivityType] = stat
		}
		stat.Count++
		if rec.OccurredAt.After(stat.LastOccurred) {
			stat.LastOccurred = rec.OccurredAt
		}
	}

	stats := make([]domain.ActivityStat, 0, len(byType))
	for _, stat := range byType {
		stats = append(stats, *stat)
	}
	return stats, nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEvent)
}

func cloneRecord(rec domain.ActivityRecord) domain.ActivityRecord {
	if rec.ProcessedAt != nil {
		ts := *rec.ProcessedAt
		rec.ProcessedAt = &ts
	}
	return rec
}

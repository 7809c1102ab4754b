// Package postgres implements the activity store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitylog/internal/domain"
)

const activityColumns = `id, event_id::text, user_id, activity_type, metadata, occurred_at, processed_at`

// Repository provides Postgres-backed persistence for activity records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertIfAbsent inserts the event unless its event_id is already stored and
// returns the stored row either way.
//
// The conflict branch is a no-op update rather than DO NOTHING: it waits for a
// concurrent inserter of the same event_id to commit and then returns that
// row, all within this one statement. DO NOTHING would return no row and
// force a second read, reopening the race.
func (r *Repository) UpsertIfAbsent(ctx context.Context, event domain.ActivityEvent) (domain.ActivityRecord, error) {
	const stmt = `INSERT INTO activity_logs (event_id, user_id, activity_type, metadata, occurred_at, processed_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (event_id) DO UPDATE SET event_id = activity_logs.event_id
        RETURNING ` + activityColumns

	processedAt := time.Now().UTC()
	if event.ProcessedAt != nil {
		processedAt = *event.ProcessedAt
	}
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	row := r.pool.QueryRow(ctx, stmt,
		event.EventID,
		event.UserID,
		string(event.ActivityType),
		metadata,
		event.OccurredAt,
		processedAt,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("upsert activity %s: %w", event.EventID, err)
	}
	return rec, nil
}

// FindByEventID retrieves an activity by event id; nil when absent.
func (r *Repository) FindByEventID(ctx context.Context, eventID string) (*domain.ActivityRecord, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_logs WHERE event_id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find activity %s: %w", eventID, err)
	}
	return &rec, nil
}

// Query returns one page of activities matching filter, most recent first.
func (r *Repository) Query(ctx context.Context, filter domain.ActivityFilter, page, limit int) (domain.ActivityPage, error) {
	page, limit = domain.ClampPage(page, limit)
	where, args := buildWhere(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_logs`+where, args...).Scan(&total); err != nil {
		return domain.ActivityPage{}, fmt.Errorf("count activities: %w", err)
	}

	offset := (page - 1) * limit
	query := fmt.Sprintf(`SELECT %s FROM activity_logs%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		activityColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.ActivityPage{}, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ActivityRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return domain.ActivityPage{}, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.ActivityPage{}, err
	}

	return domain.ActivityPage{
		Items:      items,
		Pagination: domain.NewPagination(page, limit, total),
	}, nil
}

// Aggregate counts activities per type with the most recent occurrence,
// optionally scoped to one user.
func (r *Repository) Aggregate(ctx context.Context, userID string) ([]domain.ActivityStat, error) {
	where, args := buildWhere(domain.ActivityFilter{UserID: userID})
	query := `SELECT activity_type, COUNT(*), MAX(occurred_at) FROM activity_logs` + where + ` GROUP BY activity_type`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate activities: %w", err)
	}
	defer rows.Close()

	stats := make([]domain.ActivityStat, 0)
	for rows.Next() {
		var (
			stat         domain.ActivityStat
			activityType string
		)
		if err := rows.Scan(&activityType, &stat.Count, &stat.LastOccurred); err != nil {
			return nil, err
		}
		stat.ActivityType = domain.ActivityType(activityType)
		stat.LastOccurred = stat.LastOccurred.UTC()
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// Ping checks connectivity to the database.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func buildWhere(filter domain.ActivityFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ActivityType != "" {
		add("activity_type = $%d", string(filter.ActivityType))
	}
	if filter.From != nil {
		add("occurred_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("occurred_at <= $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRecord(row pgx.Row) (domain.ActivityRecord, error) {
	var (
		rec          domain.ActivityRecord
		activityType string
		processedAt  time.Time
	)
	if err := row.Scan(&rec.RowID, &rec.EventID, &rec.UserID, &activityType, &rec.Metadata, &rec.OccurredAt, &processedAt); err != nil {
		return domain.ActivityRecord{}, err
	}
	rec.ActivityType = domain.ActivityType(activityType)
	rec.OccurredAt = rec.OccurredAt.UTC()
	processedAt = processedAt.UTC()
	rec.ProcessedAt = &processedAt
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return rec, nil
}

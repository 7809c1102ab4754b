package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitylog/internal/consumer"
)

// DeadLetterRepository persists log records the consumer could not record,
// for investigation. Nothing reads them back automatically.
type DeadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepository initialises a writer backed by the provided connection pool.
func NewDeadLetterRepository(pool *pgxpool.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{pool: pool}
}

// Write records a failed message alongside the supplied reason.
func (r *DeadLetterRepository) Write(ctx context.Context, msg consumer.Message, reason string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO activity_dead_letters (topic, partition, record_offset, record_key, event_id, payload, reason)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		nullIfEmpty(string(msg.Key)),
		nullIfEmpty(msg.EventID),
		[]byte(msg.Payload),
		reason,
	)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

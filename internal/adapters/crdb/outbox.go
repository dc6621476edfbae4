package crdb

import (
	"context"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, record outbox.Record) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return err
}

// GetUnpublishedOutbox returns up to limit NEW records, oldest first.
func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, storeError(err, "list outbox")
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var rec outbox.Record
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, storeError(err, "scan outbox")
		}
		records = append(records, rec)
	}
	return records, storeError(rows.Err(), "iterate outbox")
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1 AND status = 'NEW'
	`, id, publishedAt)
	return storeError(err, "mark outbox published")
}

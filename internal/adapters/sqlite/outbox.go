package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
)

func (s *Store) InsertOutbox(ctx context.Context, rec outbox.Record) error {
	_, err := s.exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.AggregateType, rec.AggregateID.String(), rec.EventType,
		string(rec.Payload), rec.Status, rec.DedupeKey, toMillis(rec.CreatedAt))
	return errors.Wrap(err, "insert outbox")
}

func (s *Store) GetUnpublishedOutbox(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key, created_at, published_at
		FROM outbox WHERE status = ? ORDER BY created_at, id LIMIT ?`, outbox.StatusNew, limit)
	if err != nil {
		return nil, errors.Wrap(err, "get unpublished outbox")
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var (
			r               outbox.Record
			id, aggregateID string
			payload         string
			createdAt       int64
			publishedAt     sql.NullInt64
		)
		if err := rows.Scan(&id, &r.AggregateType, &aggregateID, &r.EventType, &payload,
			&r.Status, &r.DedupeKey, &createdAt, &publishedAt); err != nil {
			return nil, errors.Wrap(err, "scan outbox")
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrap(err, "parse outbox id")
		}
		if r.AggregateID, err = uuid.Parse(aggregateID); err != nil {
			return nil, errors.Wrap(err, "parse outbox aggregate id")
		}
		r.Payload = []byte(payload)
		r.CreatedAt = fromMillis(createdAt)
		if publishedAt.Valid {
			t := fromMillis(publishedAt.Int64)
			r.PublishedAt = &t
		}
		records = append(records, r)
	}
	return records, errors.Wrap(rows.Err(), "iterate outbox")
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := s.exec(ctx, `UPDATE outbox SET status = ?, published_at = ? WHERE id = ?`,
		outbox.StatusPublished, toMillis(publishedAt), id.String())
	return errors.Wrap(err, "mark outbox published")
}

package sqlite

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
)

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	_, err := s.exec(ctx, `
		INSERT INTO events (id, total_tickets, cancelled, entry_seq, version, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, ?, ?)`,
		event.ID.String(), event.TotalTickets, event.Cancelled,
		toMillis(event.CreatedAt), toMillis(event.UpdatedAt))
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrInvalidInput, "event %s already exists", event.ID)
	}
	return errors.Wrap(err, "create event")
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	row := s.queryRow(ctx, `
		SELECT id, total_tickets, cancelled, entry_seq, version, created_at, updated_at
		FROM events WHERE id = ?`, id.String())
	return scanEvent(row)
}

// LockEvent is a plain read: the IMMEDIATE transaction already holds the
// database write lock.
func (s *Store) LockEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return s.GetEvent(ctx, id)
}

func (s *Store) UpdateEvent(ctx context.Context, event domain.Event) error {
	res, err := s.exec(ctx, `
		UPDATE events SET total_tickets = ?, cancelled = ?, version = version + 1, updated_at = ?
		WHERE id = ?`,
		event.TotalTickets, event.Cancelled, toMillis(event.UpdatedAt), event.ID.String())
	if err != nil {
		return errors.Wrap(err, "update event")
	}
	return requireRow(res, domain.ErrEventNotFound)
}

func (s *Store) NextEntrySeq(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var seq int64
	err := s.queryRow(ctx, `
		UPDATE events SET entry_seq = entry_seq + 1, version = version + 1
		WHERE id = ? RETURNING entry_seq`, eventID.String()).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrEventNotFound
	}
	return seq, errors.Wrap(err, "next entry seq")
}

func scanEvent(row *sql.Row) (domain.Event, error) {
	var (
		e                    domain.Event
		id                   string
		createdAt, updatedAt int64
	)
	err := row.Scan(&id, &e.TotalTickets, &e.Cancelled, &e.EntrySeq, &e.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "scan event")
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return domain.Event{}, errors.Wrap(err, "parse event id")
	}
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return e, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

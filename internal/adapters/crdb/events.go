package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
)

const eventColumns = `id, total_tickets, cancelled, entry_seq, version, created_at, updated_at`

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO events (id, total_tickets, cancelled, entry_seq, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $5)
	`, event.ID, event.TotalTickets, event.Cancelled, event.CreatedAt, event.UpdatedAt)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrInvalidInput, "event %s already exists", event.ID)
	}
	return errors.Wrap(err, "create event")
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	row := s.db(ctx).QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

// LockEvent takes the row lock that serializes capacity decisions for one
// event.
func (s *Store) LockEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	row := s.db(ctx).QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
	return scanEvent(row)
}

func (s *Store) UpdateEvent(ctx context.Context, event domain.Event) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE events SET total_tickets = $2, cancelled = $3, version = version + 1, updated_at = $4
		WHERE id = $1
	`, event.ID, event.TotalTickets, event.Cancelled, event.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update event")
	}
	return requireRow(tag, domain.ErrEventNotFound)
}

func (s *Store) NextEntrySeq(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var seq int64
	err := s.db(ctx).QueryRow(ctx, `
		UPDATE events SET entry_seq = entry_seq + 1, version = version + 1
		WHERE id = $1 RETURNING entry_seq
	`, eventID).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrEventNotFound
	}
	return seq, errors.Wrap(err, "next entry seq")
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	err := row.Scan(&e.ID, &e.TotalTickets, &e.Cancelled, &e.EntrySeq, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "scan event")
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

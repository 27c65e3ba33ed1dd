package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
)

const entryColumns = `id, event_id, user_id, status, offer_expires_at, seq, created_at, updated_at`

func (s *Store) CountActiveOffers(ctx context.Context, eventID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := s.db(ctx).QueryRow(ctx, `
		SELECT count(*) FROM waiting_list
		WHERE event_id = $1 AND status = 'offered' AND offer_expires_at > $2
	`, eventID, now).Scan(&n)
	return n, errors.Wrap(err, "count active offers")
}

func (s *Store) FindActiveEntry(ctx context.Context, eventID uuid.UUID, userID string) (*domain.WaitingListEntry, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+entryColumns+` FROM waiting_list
		WHERE event_id = $1 AND user_id = $2 AND status IN ('waiting', 'offered')
		LIMIT 1
	`, eventID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find active entry")
	}
	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *Store) CreateEntry(ctx context.Context, e domain.WaitingListEntry) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO waiting_list (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.EventID, e.UserID, string(e.Status), e.OfferExpiresAt, e.Seq, e.CreatedAt, e.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEntry
	}
	return errors.Wrap(err, "create entry")
}

func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (domain.WaitingListEntry, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+entryColumns+` FROM waiting_list WHERE id = $1`, id)
	if err != nil {
		return domain.WaitingListEntry{}, errors.Wrap(err, "get entry")
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return domain.WaitingListEntry{}, err
	}
	if len(entries) == 0 {
		return domain.WaitingListEntry{}, domain.ErrOfferNotFound
	}
	return entries[0], nil
}

func (s *Store) UpdateEntry(ctx context.Context, e domain.WaitingListEntry, from domain.EntryStatus) error {
	if !from.CanTransition(e.Status) {
		return domain.ErrInvalidTransition
	}
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE waiting_list SET status = $2, offer_expires_at = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`, e.ID, string(e.Status), e.OfferExpiresAt, e.UpdatedAt, string(from))
	if err != nil {
		return errors.Wrap(err, "update entry")
	}
	return requireRow(tag, domain.ErrInvalidTransition)
}

func (s *Store) ListWaiting(ctx context.Context, eventID uuid.UUID, limit int) ([]domain.WaitingListEntry, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+entryColumns+` FROM waiting_list
		WHERE event_id = $1 AND status = 'waiting'
		ORDER BY seq ASC LIMIT $2
	`, eventID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list waiting")
	}
	return scanEntries(rows)
}

func (s *Store) CountAhead(ctx context.Context, eventID uuid.UUID, seq int64) (int, error) {
	var n int
	err := s.db(ctx).QueryRow(ctx, `
		SELECT count(*) FROM waiting_list
		WHERE event_id = $1 AND status IN ('waiting', 'offered') AND seq < $2
	`, eventID, seq).Scan(&n)
	return n, errors.Wrap(err, "count entries ahead")
}

func (s *Store) DeleteEntries(ctx context.Context, eventID uuid.UUID) (int64, error) {
	tag, err := s.db(ctx).Exec(ctx, `DELETE FROM waiting_list WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, errors.Wrap(err, "delete entries")
	}
	return tag.RowsAffected(), nil
}

func scanEntries(rows pgx.Rows) ([]domain.WaitingListEntry, error) {
	defer rows.Close()

	var entries []domain.WaitingListEntry
	for rows.Next() {
		var (
			e      domain.WaitingListEntry
			status string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.UserID, &status, &e.OfferExpiresAt, &e.Seq, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		e.Status = domain.EntryStatus(status)
		if e.OfferExpiresAt != nil {
			t := e.OfferExpiresAt.UTC()
			e.OfferExpiresAt = &t
		}
		e.CreatedAt = e.CreatedAt.UTC()
		e.UpdatedAt = e.UpdatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "iterate entries")
}

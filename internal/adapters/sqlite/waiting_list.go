package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
)

const entryColumns = `id, event_id, user_id, status, offer_expires_at, seq, created_at, updated_at`

func (s *Store) CountActiveOffers(ctx context.Context, eventID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM waiting_list
		WHERE event_id = ? AND status = 'offered' AND offer_expires_at > ?`,
		eventID.String(), toMillis(now)).Scan(&n)
	return n, errors.Wrap(err, "count active offers")
}

func (s *Store) FindActiveEntry(ctx context.Context, eventID uuid.UUID, userID string) (*domain.WaitingListEntry, error) {
	rows, err := s.query(ctx, `
		SELECT `+entryColumns+` FROM waiting_list
		WHERE event_id = ? AND user_id = ? AND status IN ('waiting', 'offered')
		LIMIT 1`, eventID.String(), userID)
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
	_, err := s.exec(ctx, `
		INSERT INTO waiting_list (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.EventID.String(), e.UserID, string(e.Status), nullableMillis(e.OfferExpiresAt),
		e.Seq, toMillis(e.CreatedAt), toMillis(e.UpdatedAt))
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEntry
	}
	return errors.Wrap(err, "create entry")
}

func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (domain.WaitingListEntry, error) {
	rows, err := s.query(ctx, `SELECT `+entryColumns+` FROM waiting_list WHERE id = ?`, id.String())
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
	res, err := s.exec(ctx, `
		UPDATE waiting_list SET status = ?, offer_expires_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(e.Status), nullableMillis(e.OfferExpiresAt), toMillis(e.UpdatedAt), e.ID.String(), string(from))
	if err != nil {
		return errors.Wrap(err, "update entry")
	}
	return requireRow(res, domain.ErrInvalidTransition)
}

func (s *Store) ListWaiting(ctx context.Context, eventID uuid.UUID, limit int) ([]domain.WaitingListEntry, error) {
	rows, err := s.query(ctx, `
		SELECT `+entryColumns+` FROM waiting_list
		WHERE event_id = ? AND status = 'waiting'
		ORDER BY seq ASC LIMIT ?`, eventID.String(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list waiting")
	}
	return scanEntries(rows)
}

func (s *Store) CountAhead(ctx context.Context, eventID uuid.UUID, seq int64) (int, error) {
	var n int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM waiting_list
		WHERE event_id = ? AND status IN ('waiting', 'offered') AND seq < ?`,
		eventID.String(), seq).Scan(&n)
	return n, errors.Wrap(err, "count entries ahead")
}

func (s *Store) DeleteEntries(ctx context.Context, eventID uuid.UUID) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM waiting_list WHERE event_id = ?`, eventID.String())
	if err != nil {
		return 0, errors.Wrap(err, "delete entries")
	}
	return res.RowsAffected()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func scanEntries(rows *sql.Rows) ([]domain.WaitingListEntry, error) {
	defer rows.Close()

	var entries []domain.WaitingListEntry
	for rows.Next() {
		var (
			e                    domain.WaitingListEntry
			id, eventID, status  string
			offerExpiresAt       sql.NullInt64
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&id, &eventID, &e.UserID, &status, &offerExpiresAt, &e.Seq, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		var err error
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrap(err, "parse entry id")
		}
		if e.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, errors.Wrap(err, "parse entry event id")
		}
		e.Status = domain.EntryStatus(status)
		if offerExpiresAt.Valid {
			t := fromMillis(offerExpiresAt.Int64)
			e.OfferExpiresAt = &t
		}
		e.CreatedAt = fromMillis(createdAt)
		e.UpdatedAt = fromMillis(updatedAt)
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "iterate entries")
}

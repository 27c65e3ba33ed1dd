package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/shopspring/decimal"
)

const ticketColumns = `id, event_id, user_id, entry_id, status, purchased_at, payment_ref, amount`

func (s *Store) CountValidOrUsedTickets(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM tickets WHERE event_id = ? AND status IN ('valid', 'used')`,
		eventID.String()).Scan(&n)
	return n, errors.Wrap(err, "count valid tickets")
}

func (s *Store) CreateTicket(ctx context.Context, t domain.Ticket) error {
	_, err := s.exec(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.EventID.String(), t.UserID, t.EntryID.String(), string(t.Status),
		toMillis(t.PurchasedAt), t.PaymentRef, t.Amount.String())
	if isUniqueViolation(err) {
		return domain.ErrOfferExpiredOrConsumed
	}
	return errors.Wrap(err, "create ticket")
}

func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	rows, err := s.query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id.String())
	if err != nil {
		return domain.Ticket{}, errors.Wrap(err, "get ticket")
	}
	tickets, err := scanTickets(rows)
	if err != nil {
		return domain.Ticket{}, err
	}
	if len(tickets) == 0 {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return tickets[0], nil
}

func (s *Store) UpdateTicketStatus(ctx context.Context, id uuid.UUID, from, to domain.TicketStatus) error {
	res, err := s.exec(ctx, `UPDATE tickets SET status = ? WHERE id = ? AND status = ?`,
		string(to), id.String(), string(from))
	if err != nil {
		return errors.Wrap(err, "update ticket status")
	}
	return requireRow(res, domain.ErrInvalidTransition)
}

func (s *Store) ListUserTickets(ctx context.Context, userID string) ([]domain.Ticket, error) {
	rows, err := s.query(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE user_id = ?
		ORDER BY purchased_at DESC, id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user tickets")
	}
	return scanTickets(rows)
}

func (s *Store) ListEventTickets(ctx context.Context, eventID uuid.UUID, statuses ...domain.TicketStatus) ([]domain.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = ?`
	args := []any{eventID.String()}
	if len(statuses) > 0 {
		q += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	rows, err := s.query(ctx, q+` ORDER BY purchased_at, id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list event tickets")
	}
	return scanTickets(rows)
}

func scanTickets(rows *sql.Rows) ([]domain.Ticket, error) {
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var (
			t                    domain.Ticket
			id, eventID, entryID string
			status, amount       string
			purchasedAt          int64
		)
		if err := rows.Scan(&id, &eventID, &t.UserID, &entryID, &status, &purchasedAt, &t.PaymentRef, &amount); err != nil {
			return nil, errors.Wrap(err, "scan ticket")
		}
		var err error
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrap(err, "parse ticket id")
		}
		if t.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, errors.Wrap(err, "parse ticket event id")
		}
		if t.EntryID, err = uuid.Parse(entryID); err != nil {
			return nil, errors.Wrap(err, "parse ticket entry id")
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, "parse ticket amount")
		}
		t.Status = domain.TicketStatus(status)
		t.PurchasedAt = fromMillis(purchasedAt)
		tickets = append(tickets, t)
	}
	return tickets, errors.Wrap(rows.Err(), "iterate tickets")
}

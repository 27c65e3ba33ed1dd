package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/shopspring/decimal"
)

const ticketColumns = `id, event_id, user_id, entry_id, status, purchased_at, payment_ref, amount::STRING`

func (s *Store) CountValidOrUsedTickets(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := s.db(ctx).QueryRow(ctx, `
		SELECT count(*) FROM tickets WHERE event_id = $1 AND status IN ('valid', 'used')
	`, eventID).Scan(&n)
	return n, errors.Wrap(err, "count valid tickets")
}

func (s *Store) CreateTicket(ctx context.Context, t domain.Ticket) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO tickets (id, event_id, user_id, entry_id, status, purchased_at, payment_ref, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::DECIMAL)
	`, t.ID, t.EventID, t.UserID, t.EntryID, string(t.Status), t.PurchasedAt, t.PaymentRef, t.Amount.String())
	if isUniqueViolation(err) {
		return domain.ErrOfferExpiredOrConsumed
	}
	return errors.Wrap(err, "create ticket")
}

func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
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
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE tickets SET status = $2 WHERE id = $1 AND status = $3
	`, id, string(to), string(from))
	if err != nil {
		return errors.Wrap(err, "update ticket status")
	}
	return requireRow(tag, domain.ErrInvalidTransition)
}

func (s *Store) ListUserTickets(ctx context.Context, userID string) ([]domain.Ticket, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1
		ORDER BY purchased_at DESC, id
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user tickets")
	}
	return scanTickets(rows)
}

func (s *Store) ListEventTickets(ctx context.Context, eventID uuid.UUID, statuses ...domain.TicketStatus) ([]domain.Ticket, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db(ctx).Query(ctx, `
			SELECT `+ticketColumns+` FROM tickets WHERE event_id = $1
			ORDER BY purchased_at, id
		`, eventID)
	} else {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		rows, err = s.db(ctx).Query(ctx, `
			SELECT `+ticketColumns+` FROM tickets WHERE event_id = $1 AND status = ANY($2)
			ORDER BY purchased_at, id
		`, eventID, names)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list event tickets")
	}
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var (
			t              domain.Ticket
			status, amount string
		)
		if err := rows.Scan(&t.ID, &t.EventID, &t.UserID, &t.EntryID, &status, &t.PurchasedAt, &t.PaymentRef, &amount); err != nil {
			return nil, errors.Wrap(err, "scan ticket")
		}
		var err error
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, "parse ticket amount")
		}
		t.Status = domain.TicketStatus(status)
		t.PurchasedAt = t.PurchasedAt.UTC()
		tickets = append(tickets, t)
	}
	return tickets, errors.Wrap(rows.Err(), "iterate tickets")
}

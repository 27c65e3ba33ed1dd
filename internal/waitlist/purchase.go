package waitlist

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
)

type PurchaseInput struct {
	EventID uuid.UUID
	UserID  string
	EntryID uuid.UUID
	Payment domain.PaymentConfirmation
}

// Purchase records a ticket for an offer whose payment the collaborator has
// already captured. It consumes the offer and issues the ticket atomically.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (ticket domain.Ticket, err error) {
	ctx, span := startSpan(ctx, "Purchase",
		attribute.String("event_id", in.EventID.String()),
		attribute.String("entry_id", in.EntryID.String()))
	defer func() { endSpan(span, err) }()

	if !in.Payment.Valid() {
		return domain.Ticket{}, domain.ErrPaymentConfirmationMissing
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		event, err := s.store.LockEvent(ctx, in.EventID)
		if err != nil {
			return err
		}
		entry, err := s.store.GetEntry(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if entry.EventID != in.EventID {
			return domain.ErrOfferNotFound
		}
		if entry.UserID != in.UserID {
			return domain.ErrOfferNotOwned
		}
		if event.IsCancelled() {
			return domain.ErrEventCancelled
		}

		if err := entry.Purchase(now); err != nil {
			return err
		}
		if err := s.store.UpdateEntry(ctx, entry, domain.EntryOffered); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return domain.ErrOfferExpiredOrConsumed
			}
			return err
		}

		ticket = domain.NewTicket(entry, in.Payment, now)
		if err := s.store.CreateTicket(ctx, ticket); err != nil {
			return err
		}
		return s.emitTicket(ctx, ticket, outbox.TicketPurchased)
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	observability.TicketsPurchased.Inc()
	s.logger.WithField("event_id", in.EventID).WithField("ticket_id", ticket.ID).Info("ticket purchased")
	s.audit(ctx, "ticket.purchased", in.UserID, ticketPayload(ticket))
	return ticket, nil
}

// Refund marks a ticket refunded after the collaborator returned the money
// and hands the freed seat to the queue.
func (s *Service) Refund(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	return s.releaseTicket(ctx, ticketID, domain.TicketRefunded, outbox.TicketRefunded)
}

// CancelTicket voids a ticket without a monetary refund and frees its seat.
func (s *Service) CancelTicket(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	return s.releaseTicket(ctx, ticketID, domain.TicketCancelled, outbox.TicketCancelled)
}

func (s *Service) releaseTicket(ctx context.Context, ticketID uuid.UUID, to domain.TicketStatus, eventType string) (ticket domain.Ticket, err error) {
	ctx, span := startSpan(ctx, "ReleaseTicket",
		attribute.String("ticket_id", ticketID.String()),
		attribute.String("status", string(to)))
	defer func() { endSpan(span, err) }()

	var offered []domain.WaitingListEntry
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		found, err := s.store.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		event, err := s.store.LockEvent(ctx, found.EventID)
		if err != nil {
			return err
		}
		// re-read under the event lock
		if found, err = s.store.GetTicket(ctx, ticketID); err != nil {
			return err
		}
		ticket = found
		if !ticket.Status.CountsAgainstCapacity() {
			return domain.ErrTicketNotRefundable
		}

		if err := s.store.UpdateTicketStatus(ctx, ticketID, ticket.Status, to); err != nil {
			return err
		}
		ticket.Status = to
		if err := s.emitTicket(ctx, ticket, eventType); err != nil {
			return err
		}

		offered, err = s.processQueue(ctx, event, now)
		return err
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	observability.TicketsReleased.WithLabelValues(string(to)).Inc()
	s.logger.WithField("event_id", ticket.EventID).WithField("ticket_id", ticketID).
		WithField("status", to).Info("ticket released")
	s.audit(ctx, eventType, ticket.UserID, ticketPayload(ticket))
	s.afterOffers(ctx, offered)
	return ticket, nil
}

// MarkTicketUsed checks a valid ticket in. A used ticket still holds its seat.
func (s *Service) MarkTicketUsed(ctx context.Context, ticketID uuid.UUID) (ticket domain.Ticket, err error) {
	ctx, span := startSpan(ctx, "MarkTicketUsed", attribute.String("ticket_id", ticketID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		found, err := s.store.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		ticket = found
		if ticket.Status != domain.TicketValid {
			return domain.ErrTicketNotUsable
		}
		if err := s.store.UpdateTicketStatus(ctx, ticketID, domain.TicketValid, domain.TicketUsed); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return domain.ErrTicketNotUsable
			}
			return err
		}
		ticket.Status = domain.TicketUsed
		return s.emitTicket(ctx, ticket, outbox.TicketUsed)
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	return ticket, nil
}

func (s *Service) UserTickets(ctx context.Context, userID string) ([]domain.Ticket, error) {
	return s.store.ListUserTickets(ctx, userID)
}

// EventTickets lists the tickets still holding seats, which the payment
// collaborator has to refund before the event can be cancelled.
func (s *Service) EventTickets(ctx context.Context, eventID uuid.UUID) ([]domain.Ticket, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListEventTickets(ctx, eventID, domain.TicketValid, domain.TicketUsed)
}

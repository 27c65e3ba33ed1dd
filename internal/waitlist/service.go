// Package waitlist is the admission and waiting-queue allocation engine.
//
// Capacity of an event is never stored as a counter. Every decision re-derives
//
//	available = totalTickets - (valid or used tickets + unexpired offers)
//
// inside the transaction that acts on it, after locking the event row.
package waitlist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultOfferWindow = 30 * time.Minute

var tracer = observability.Tracer("waitlist")

type Service struct {
	store       Store
	scheduler   OfferScheduler
	clock       clock.Clock
	logger      observability.Logger
	auditor     Auditor
	offerWindow time.Duration
}

type Option func(*Service)

// WithOfferWindow overrides how long a granted offer may be held.
func WithOfferWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.offerWindow = d
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func NewService(store Store, sched OfferScheduler, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		store:       store,
		scheduler:   sched,
		clock:       clk,
		logger:      observability.NewNopLogger(),
		offerWindow: DefaultOfferWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) OfferWindow() time.Duration {
	return s.offerWindow
}

func (s *Service) availability(ctx context.Context, event domain.Event, now time.Time) (domain.Availability, error) {
	sold, err := s.store.CountValidOrUsedTickets(ctx, event.ID)
	if err != nil {
		return domain.Availability{}, err
	}
	offers, err := s.store.CountActiveOffers(ctx, event.ID, now)
	if err != nil {
		return domain.Availability{}, err
	}
	return domain.Availability{
		EventID:        event.ID,
		TotalTickets:   event.TotalTickets,
		PurchasedCount: sold,
		ActiveOffers:   offers,
	}, nil
}

func (s *Service) emit(ctx context.Context, aggregateType string, aggregateID uuid.UUID, eventType string, payload any) error {
	rec, err := outbox.NewRecord(aggregateType, aggregateID, eventType, payload, s.clock.Now())
	if err != nil {
		return err
	}
	return s.store.InsertOutbox(ctx, rec)
}

func (s *Service) emitEntry(ctx context.Context, entry domain.WaitingListEntry, eventType string) error {
	return s.emit(ctx, "waiting_list_entry", entry.ID, eventType, entryPayload(entry))
}

func (s *Service) emitTicket(ctx context.Context, ticket domain.Ticket, eventType string) error {
	return s.emit(ctx, "ticket", ticket.ID, eventType, ticketPayload(ticket))
}

func (s *Service) audit(ctx context.Context, action, userID string, data map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogEvent(ctx, action, userID, data); err != nil {
		s.logger.WithField("action", action).WithError(err).Warn("audit log write failed")
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "waitlist."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func entryPayload(e domain.WaitingListEntry) map[string]any {
	p := map[string]any{
		"entry_id": e.ID,
		"event_id": e.EventID,
		"user_id":  e.UserID,
		"status":   e.Status,
		"seq":      e.Seq,
	}
	if e.OfferExpiresAt != nil {
		p["offer_expires_at"] = e.OfferExpiresAt.Format(time.RFC3339)
	}
	return p
}

func ticketPayload(t domain.Ticket) map[string]any {
	return map[string]any{
		"ticket_id":   t.ID,
		"event_id":    t.EventID,
		"user_id":     t.UserID,
		"entry_id":    t.EntryID,
		"status":      t.Status,
		"payment_ref": t.PaymentRef,
		"amount":      t.Amount.String(),
	}
}

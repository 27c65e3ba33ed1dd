package waitlist

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
)

// CreateEvent registers the ticket ceiling of an event. A zero id gets a new
// one.
func (s *Service) CreateEvent(ctx context.Context, id uuid.UUID, totalTickets int) (event domain.Event, err error) {
	ctx, span := startSpan(ctx, "CreateEvent")
	defer func() { endSpan(span, err) }()

	if totalTickets <= 0 {
		return domain.Event{}, domain.ErrInvalidCapacity
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := s.clock.Now()
	event = domain.Event{
		ID:           id,
		TotalTickets: totalTickets,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// UpdateCapacity changes the ticket ceiling. It may not drop below the seats
// already held by tickets and unexpired offers. A raise is offered to the
// queue at once.
func (s *Service) UpdateCapacity(ctx context.Context, eventID uuid.UUID, totalTickets int) (event domain.Event, err error) {
	ctx, span := startSpan(ctx, "UpdateCapacity", attribute.String("event_id", eventID.String()))
	defer func() { endSpan(span, err) }()

	if totalTickets <= 0 {
		return domain.Event{}, domain.ErrInvalidCapacity
	}

	var offered []domain.WaitingListEntry
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		locked, err := s.store.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if locked.IsCancelled() {
			return domain.ErrEventCancelled
		}
		avail, err := s.availability(ctx, locked, now)
		if err != nil {
			return err
		}
		if totalTickets < avail.PurchasedCount+avail.ActiveOffers {
			return domain.ErrCapacityBelowSold
		}

		locked.TotalTickets = totalTickets
		locked.UpdatedAt = now
		if err := s.store.UpdateEvent(ctx, locked); err != nil {
			return err
		}
		locked.Version++
		event = locked
		if err := s.emit(ctx, "event", eventID, outbox.EventCapacity, map[string]any{
			"event_id":      eventID,
			"total_tickets": totalTickets,
		}); err != nil {
			return err
		}

		offered, err = s.processQueue(ctx, event, now)
		return err
	})
	if err != nil {
		return domain.Event{}, err
	}
	s.afterOffers(ctx, offered)
	return event, nil
}

// CancelEvent permanently cancels an event once no valid or used tickets
// remain, and purges its whole waiting list. Cancelling a cancelled event is
// a no-op.
func (s *Service) CancelEvent(ctx context.Context, eventID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "CancelEvent", attribute.String("event_id", eventID.String()))
	defer func() { endSpan(span, err) }()

	var purged int64
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.store.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.IsCancelled() {
			return nil
		}

		sold, err := s.store.CountValidOrUsedTickets(ctx, eventID)
		if err != nil {
			return err
		}
		if sold > 0 {
			return domain.ErrActiveTicketsRemain
		}

		event.Cancelled = true
		event.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateEvent(ctx, event); err != nil {
			return err
		}
		if purged, err = s.store.DeleteEntries(ctx, eventID); err != nil {
			return err
		}
		return s.emit(ctx, "event", eventID, outbox.EventCancelled, map[string]any{
			"event_id":       eventID,
			"purged_entries": purged,
		})
	})
	if err != nil {
		return err
	}

	s.logger.WithField("event_id", eventID).WithField("purged_entries", purged).Info("event cancelled")
	s.audit(ctx, "event.cancelled", "", map[string]interface{}{"event_id": eventID.String(), "purged_entries": purged})
	return nil
}

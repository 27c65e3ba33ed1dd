package waitlist

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
)

type JoinResult struct {
	Success bool
	Status  domain.EntryStatus
	Message string
	Entry   domain.WaitingListEntry
}

// Join admits userID to the event's queue. With free capacity the entry is
// created offered and its expiry is scheduled; otherwise it waits. The
// capacity read and the entry write share one transaction under the event
// lock, so two joins can never both take the last slot.
func (s *Service) Join(ctx context.Context, eventID uuid.UUID, userID string) (res JoinResult, err error) {
	ctx, span := startSpan(ctx, "Join", attribute.String("event_id", eventID.String()))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return JoinResult{}, errors.Wrap(domain.ErrInvalidInput, "user id is required")
	}

	var entry domain.WaitingListEntry
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		event, err := s.store.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.IsCancelled() {
			return domain.ErrEventCancelled
		}

		existing, err := s.store.FindActiveEntry(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateEntry
		}

		avail, err := s.availability(ctx, event, now)
		if err != nil {
			return err
		}

		entry = domain.NewEntry(eventID, userID, now)
		if entry.Seq, err = s.store.NextEntrySeq(ctx, eventID); err != nil {
			return err
		}
		if avail.Available() > 0 {
			if err := entry.Offer(now, s.offerWindow); err != nil {
				return err
			}
		}
		if err := s.store.CreateEntry(ctx, entry); err != nil {
			return err
		}

		if entry.Status == domain.EntryOffered {
			if err := s.scheduler.ScheduleExpiry(ctx, entry.ID, eventID, s.offerWindow); err != nil {
				return err
			}
			return s.emitEntry(ctx, entry, outbox.EntryOffered)
		}
		return s.emitEntry(ctx, entry, outbox.EntryWaiting)
	})
	if err != nil {
		observability.JoinsTotal.WithLabelValues("rejected").Inc()
		return JoinResult{}, err
	}

	observability.JoinsTotal.WithLabelValues(string(entry.Status)).Inc()
	if entry.Status == domain.EntryOffered {
		observability.OffersGranted.WithLabelValues("join").Inc()
	}
	s.logger.WithField("event_id", eventID).WithField("entry_id", entry.ID).
		WithField("status", entry.Status).Info("user joined waiting list")
	s.audit(ctx, "entry."+string(entry.Status), userID, entryPayload(entry))

	return JoinResult{
		Success: true,
		Status:  entry.Status,
		Message: s.joinMessage(entry.Status),
		Entry:   entry,
	}, nil
}

func (s *Service) joinMessage(status domain.EntryStatus) string {
	if status == domain.EntryOffered {
		return fmt.Sprintf("Ticket offered - you have %d minutes to purchase", int(s.offerWindow.Minutes()))
	}
	return "Added to waiting list - you'll be notified when a ticket becomes available"
}

type QueuePosition struct {
	Entry    domain.WaitingListEntry
	Position int
}

// GetQueuePosition returns the caller's active entry and its 1-based
// position among waiting and offered entries of the event, or nil when the
// caller has no active entry.
func (s *Service) GetQueuePosition(ctx context.Context, eventID uuid.UUID, userID string) (pos *QueuePosition, err error) {
	ctx, span := startSpan(ctx, "GetQueuePosition", attribute.String("event_id", eventID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetEvent(ctx, eventID); err != nil {
			return err
		}
		entry, err := s.store.FindActiveEntry(ctx, eventID, userID)
		if err != nil || entry == nil {
			return err
		}
		ahead, err := s.store.CountAhead(ctx, eventID, entry.Seq)
		if err != nil {
			return err
		}
		pos = &QueuePosition{Entry: *entry, Position: ahead + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// Availability reports the capacity snapshot of an event.
func (s *Service) Availability(ctx context.Context, eventID uuid.UUID) (avail domain.Availability, err error) {
	ctx, span := startSpan(ctx, "Availability", attribute.String("event_id", eventID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		avail, err = s.availability(ctx, event, s.clock.Now())
		return err
	})
	return avail, err
}

package waitlist

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
)

// ProcessQueue offers freed capacity to the earliest waiting entries and
// returns how many offers it granted.
func (s *Service) ProcessQueue(ctx context.Context, eventID uuid.UUID) (granted int, err error) {
	ctx, span := startSpan(ctx, "ProcessQueue", attribute.String("event_id", eventID.String()))
	defer func() { endSpan(span, err) }()

	var offered []domain.WaitingListEntry
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.store.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		offered, err = s.processQueue(ctx, event, s.clock.Now())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.afterOffers(ctx, offered)
	return len(offered), nil
}

// processQueue must run inside a transaction that holds the event lock.
// Entries created after the snapshot below wait for the next sweep.
func (s *Service) processQueue(ctx context.Context, event domain.Event, now time.Time) ([]domain.WaitingListEntry, error) {
	if event.IsCancelled() {
		return nil, nil
	}

	avail, err := s.availability(ctx, event, now)
	if err != nil {
		return nil, err
	}
	spots := avail.Available()
	if spots <= 0 {
		return nil, nil
	}

	waiting, err := s.store.ListWaiting(ctx, event.ID, spots)
	if err != nil {
		return nil, err
	}

	for i := range waiting {
		entry := &waiting[i]
		if err := entry.Offer(now, s.offerWindow); err != nil {
			return nil, err
		}
		if err := s.store.UpdateEntry(ctx, *entry, domain.EntryWaiting); err != nil {
			return nil, errors.Wrapf(err, "offer entry %s", entry.ID)
		}
		if err := s.scheduler.ScheduleExpiry(ctx, entry.ID, event.ID, s.offerWindow); err != nil {
			return nil, err
		}
		if err := s.emitEntry(ctx, *entry, outbox.EntryOffered); err != nil {
			return nil, err
		}
	}
	return waiting, nil
}

func (s *Service) afterOffers(ctx context.Context, offered []domain.WaitingListEntry) {
	for _, entry := range offered {
		observability.OffersGranted.WithLabelValues("queue").Inc()
		s.logger.WithField("event_id", entry.EventID).WithField("entry_id", entry.ID).Info("offer granted from queue")
		s.audit(ctx, "entry.offered", entry.UserID, entryPayload(entry))
	}
}

// ExpireOffer is the scheduler's expiry handler. Delivery is at-least-once,
// so it only acts on an entry that is still offered; anything else (already
// purchased, already expired, purged with its event) is a silent no-op.
func (s *Service) ExpireOffer(ctx context.Context, entryID, eventID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "ExpireOffer",
		attribute.String("event_id", eventID.String()),
		attribute.String("entry_id", entryID.String()))
	defer func() { endSpan(span, err) }()

	var (
		expired *domain.WaitingListEntry
		offered []domain.WaitingListEntry
	)
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		event, err := s.store.LockEvent(ctx, eventID)
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		entry, err := s.store.GetEntry(ctx, entryID)
		if errors.Is(err, domain.ErrOfferNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.EventID != eventID || entry.Status != domain.EntryOffered {
			return nil
		}

		if err := s.expire(ctx, &entry, now); err != nil {
			return err
		}
		expired = &entry

		offered, err = s.processQueue(ctx, event, now)
		return err
	})
	if err != nil {
		return err
	}

	if expired != nil {
		observability.OffersExpired.Inc()
		s.logger.WithField("event_id", eventID).WithField("entry_id", entryID).Info("offer expired")
		s.audit(ctx, "entry.expired", expired.UserID, entryPayload(*expired))
	}
	s.afterOffers(ctx, offered)
	return nil
}

// ReleaseOffer lets the holder hand an offer back before it lapses. The slot
// goes to the next waiting entry straight away.
func (s *Service) ReleaseOffer(ctx context.Context, eventID, entryID uuid.UUID, userID string) (err error) {
	ctx, span := startSpan(ctx, "ReleaseOffer",
		attribute.String("event_id", eventID.String()),
		attribute.String("entry_id", entryID.String()))
	defer func() { endSpan(span, err) }()

	var (
		released domain.WaitingListEntry
		offered  []domain.WaitingListEntry
	)
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		event, err := s.store.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		entry, err := s.store.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.EventID != eventID {
			return domain.ErrOfferNotFound
		}
		if entry.UserID != userID {
			return domain.ErrOfferNotOwned
		}
		if entry.Status != domain.EntryOffered {
			return domain.ErrOfferExpiredOrConsumed
		}

		if err := s.expire(ctx, &entry, now); err != nil {
			return err
		}
		released = entry

		offered, err = s.processQueue(ctx, event, now)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.WithField("event_id", eventID).WithField("entry_id", entryID).Info("offer released")
	s.audit(ctx, "entry.released", userID, entryPayload(released))
	s.afterOffers(ctx, offered)
	return nil
}

func (s *Service) expire(ctx context.Context, entry *domain.WaitingListEntry, now time.Time) error {
	if err := entry.Expire(now); err != nil {
		return err
	}
	if err := s.store.UpdateEntry(ctx, *entry, domain.EntryOffered); err != nil {
		return err
	}
	return s.emitEntry(ctx, *entry, outbox.EntryExpired)
}

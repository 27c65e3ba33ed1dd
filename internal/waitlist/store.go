package waitlist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
)

// Store is the transactional storage the engine runs on. Methods called with
// a context produced by WithTx join that transaction.
type Store interface {
	// WithTx runs fn in one serializable transaction. Nested calls reuse the
	// outer transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	EventStore
	Ledger
	WaitingList

	InsertOutbox(ctx context.Context, rec outbox.Record) error
}

// EventStore holds the capacity record of each event.
type EventStore interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	// LockEvent reads the event and keeps it locked until the transaction
	// ends. Every capacity-affecting write starts with it.
	LockEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	// UpdateEvent writes TotalTickets and Cancelled and bumps Version.
	UpdateEvent(ctx context.Context, event domain.Event) error
	NextEntrySeq(ctx context.Context, eventID uuid.UUID) (int64, error)
}

type Ledger interface {
	CountValidOrUsedTickets(ctx context.Context, eventID uuid.UUID) (int, error)
	CreateTicket(ctx context.Context, ticket domain.Ticket) error
	GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error)
	// UpdateTicketStatus fails with domain.ErrInvalidTransition when the
	// ticket is no longer in status from.
	UpdateTicketStatus(ctx context.Context, id uuid.UUID, from, to domain.TicketStatus) error
	ListUserTickets(ctx context.Context, userID string) ([]domain.Ticket, error)
	ListEventTickets(ctx context.Context, eventID uuid.UUID, statuses ...domain.TicketStatus) ([]domain.Ticket, error)
}

type WaitingList interface {
	CountActiveOffers(ctx context.Context, eventID uuid.UUID, now time.Time) (int, error)
	// FindActiveEntry returns the user's waiting or offered entry, or nil.
	FindActiveEntry(ctx context.Context, eventID uuid.UUID, userID string) (*domain.WaitingListEntry, error)
	CreateEntry(ctx context.Context, entry domain.WaitingListEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (domain.WaitingListEntry, error)
	// UpdateEntry persists Status and OfferExpiresAt if the stored status is
	// still from; otherwise it fails with domain.ErrInvalidTransition.
	UpdateEntry(ctx context.Context, entry domain.WaitingListEntry, from domain.EntryStatus) error
	// ListWaiting returns up to limit waiting entries in Seq order.
	ListWaiting(ctx context.Context, eventID uuid.UUID, limit int) ([]domain.WaitingListEntry, error)
	// CountAhead counts waiting or offered entries with a smaller Seq.
	CountAhead(ctx context.Context, eventID uuid.UUID, seq int64) (int, error)
	DeleteEntries(ctx context.Context, eventID uuid.UUID) (int64, error)
}

// OfferScheduler registers the deferred expiry of an offer. It must write
// through the transaction in ctx so the timer commits with the offer.
type OfferScheduler interface {
	ScheduleExpiry(ctx context.Context, entryID, eventID uuid.UUID, delay time.Duration) error
}

// Auditor records engine decisions outside the transactional store.
// Failures are logged and never fail the operation.
type Auditor interface {
	LogEvent(ctx context.Context, action string, userID string, data map[string]interface{}) error
}

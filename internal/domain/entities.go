package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is the capacity record of a ticketed event. Metadata such as name or
// venue lives outside this service.
type Event struct {
	ID           uuid.UUID
	TotalTickets int
	Cancelled    bool
	// EntrySeq is the last sequence number handed to a waiting-list entry.
	EntrySeq  int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Event) IsCancelled() bool {
	return e.Cancelled
}

type Ticket struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	UserID      string
	EntryID     uuid.UUID
	Status      TicketStatus
	PurchasedAt time.Time
	PaymentRef  string
	Amount      decimal.Decimal
}

type WaitingListEntry struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	UserID         string
	Status         EntryStatus
	OfferExpiresAt *time.Time
	// Seq orders entries of one event in creation order.
	Seq       int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasActiveOffer reports whether the entry holds an unexpired offer at now.
func (e WaitingListEntry) HasActiveOffer(now time.Time) bool {
	return e.Status == EntryOffered && e.OfferExpiresAt != nil && e.OfferExpiresAt.After(now)
}

// PaymentConfirmation is what the payment collaborator hands over once a
// charge has been captured.
type PaymentConfirmation struct {
	Reference string
	Amount    decimal.Decimal
}

func (p PaymentConfirmation) Valid() bool {
	return p.Reference != "" && !p.Amount.IsNegative()
}

// Availability is the capacity snapshot of one event.
type Availability struct {
	EventID        uuid.UUID
	TotalTickets   int
	PurchasedCount int
	ActiveOffers   int
}

func (a Availability) Available() int {
	return a.TotalTickets - (a.PurchasedCount + a.ActiveOffers)
}

func (a Availability) Remaining() int {
	return max(0, a.Available())
}

func (a Availability) SoldOut() bool {
	return a.PurchasedCount+a.ActiveOffers >= a.TotalTickets
}

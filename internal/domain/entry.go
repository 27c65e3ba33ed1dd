package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewEntry builds a waiting entry. Seq is assigned by the store under the
// event lock.
func NewEntry(eventID uuid.UUID, userID string, now time.Time) WaitingListEntry {
	return WaitingListEntry{
		ID:        uuid.New(),
		EventID:   eventID,
		UserID:    userID,
		Status:    EntryWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Offer moves a waiting entry to offered. A freshly built entry may be
// offered directly at creation.
func (e *WaitingListEntry) Offer(now time.Time, window time.Duration) error {
	if !e.Status.CanTransition(EntryOffered) {
		return ErrInvalidTransition
	}
	expires := now.Add(window)
	e.Status = EntryOffered
	e.OfferExpiresAt = &expires
	e.UpdatedAt = now
	return nil
}

func (e *WaitingListEntry) Expire(now time.Time) error {
	if !e.Status.CanTransition(EntryExpired) {
		return ErrInvalidTransition
	}
	e.Status = EntryExpired
	e.UpdatedAt = now
	return nil
}

func (e *WaitingListEntry) Purchase(now time.Time) error {
	if !e.HasActiveOffer(now) {
		return ErrOfferExpiredOrConsumed
	}
	e.Status = EntryPurchased
	e.UpdatedAt = now
	return nil
}

func NewTicket(entry WaitingListEntry, payment PaymentConfirmation, now time.Time) Ticket {
	return Ticket{
		ID:          uuid.New(),
		EventID:     entry.EventID,
		UserID:      entry.UserID,
		EntryID:     entry.ID,
		Status:      TicketValid,
		PurchasedAt: now,
		PaymentRef:  payment.Reference,
		Amount:      payment.Amount,
	}
}

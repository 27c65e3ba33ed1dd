package outbox

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Routing keys for ledger updates.
const (
	EntryOffered    = "entry.offered"
	EntryWaiting    = "entry.waiting"
	EntryExpired    = "entry.expired"
	TicketPurchased = "ticket.purchased"
	TicketRefunded  = "ticket.refunded"
	TicketCancelled = "ticket.cancelled"
	TicketUsed      = "ticket.used"
	EventCancelled  = "event.cancelled"
	EventCapacity   = "event.capacity_changed"
)

const (
	StatusNew       = "NEW"
	StatusPublished = "PUBLISHED"
)

type Record struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string
	DedupeKey     string
}

func NewRecord(aggregateType string, aggregateID uuid.UUID, eventType string, payload any, now time.Time) (Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, errors.Wrapf(err, "marshal %s payload", eventType)
	}
	id := uuid.New()
	return Record{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     now,
		Status:        StatusNew,
		DedupeKey:     id.String(),
	}, nil
}

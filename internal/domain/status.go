package domain

type EntryStatus string

const (
	EntryWaiting   EntryStatus = "waiting"
	EntryOffered   EntryStatus = "offered"
	EntryExpired   EntryStatus = "expired"
	EntryPurchased EntryStatus = "purchased"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryWaiting, EntryOffered, EntryExpired, EntryPurchased:
		return true
	}
	return false
}

// IsActive reports whether the entry still occupies the user's single slot
// in the event's queue.
func (s EntryStatus) IsActive() bool {
	return s == EntryWaiting || s == EntryOffered
}

func (s EntryStatus) IsTerminal() bool {
	return s == EntryExpired || s == EntryPurchased
}

// CanTransition encodes waiting -> offered -> {purchased, expired}.
func (s EntryStatus) CanTransition(to EntryStatus) bool {
	switch s {
	case EntryWaiting:
		return to == EntryOffered
	case EntryOffered:
		return to == EntryPurchased || to == EntryExpired
	}
	return false
}

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketRefunded  TicketStatus = "refunded"
	TicketCancelled TicketStatus = "cancelled"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketValid, TicketUsed, TicketRefunded, TicketCancelled:
		return true
	}
	return false
}

// CountsAgainstCapacity reports whether a ticket in this status holds a seat.
func (s TicketStatus) CountsAgainstCapacity() bool {
	return s == TicketValid || s == TicketUsed
}

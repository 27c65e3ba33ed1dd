package domain

import "github.com/cockroachdb/errors"

// Class groups engine failures by how a caller should react to them.
// Every specific error below matches exactly one class under errors.Is.
type Class string

func (c Class) Error() string { return string(c) }

const (
	ErrValidation         Class = "validation failed"
	ErrConflict           Class = "conflict"
	ErrNotFound           Class = "not found"
	ErrPreconditionFailed Class = "precondition failed"
	ErrExternalDependency Class = "external dependency failed"
)

type classError struct {
	class Class
	msg   string
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Is(target error) bool {
	c, ok := target.(Class)
	return ok && c == e.class
}

func newError(class Class, msg string) error {
	return &classError{class: class, msg: msg}
}

// ClassOf reports the class of err, or "" when err is not an engine error.
func ClassOf(err error) Class {
	for _, c := range []Class{ErrValidation, ErrConflict, ErrNotFound, ErrPreconditionFailed, ErrExternalDependency} {
		if errors.Is(err, c) {
			return c
		}
	}
	return ""
}

var (
	ErrEventNotFound  = newError(ErrNotFound, "event not found")
	ErrOfferNotFound  = newError(ErrNotFound, "offer not found")
	ErrTicketNotFound = newError(ErrNotFound, "ticket not found")

	ErrEventCancelled         = newError(ErrConflict, "event is cancelled")
	ErrDuplicateEntry         = newError(ErrConflict, "already in waiting list for this event")
	ErrOfferNotOwned          = newError(ErrConflict, "offer belongs to another user")
	ErrOfferExpiredOrConsumed = newError(ErrConflict, "offer expired or already consumed")
	ErrTicketNotRefundable    = newError(ErrConflict, "ticket is not refundable")
	ErrTicketNotUsable        = newError(ErrConflict, "ticket cannot be marked used")
	ErrInvalidTransition      = newError(ErrConflict, "invalid status transition")
	ErrSerializationFailure   = newError(ErrConflict, "serialization failure, try again")

	ErrInvalidCapacity   = newError(ErrValidation, "total tickets must be positive")
	ErrCapacityBelowSold = newError(ErrValidation, "total tickets cannot be lower than tickets already sold")
	ErrInvalidInput      = newError(ErrValidation, "invalid input")

	ErrActiveTicketsRemain = newError(ErrPreconditionFailed, "event still has active tickets")

	ErrPaymentConfirmationMissing = newError(ErrExternalDependency, "payment confirmation missing or invalid")
)

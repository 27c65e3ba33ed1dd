// Package refunds applies refund confirmations sent by the payment provider.
package refunds

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
)

type Refunder interface {
	Refund(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error)
}

type Message struct {
	TicketID uuid.UUID `json:"ticket_id"`
}

type Handler struct {
	refunder Refunder
	logger   observability.Logger
}

func NewHandler(refunder Refunder, logger observability.Logger) *Handler {
	return &Handler{refunder: refunder, logger: logger}
}

// Run handles deliveries until ctx is done or the channel closes.
func (h *Handler) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			h.Handle(ctx, d)
		}
	}
}

// Handle applies one refund and settles the delivery. Messages that can never
// succeed are dropped, transient failures are requeued, and a ticket that is
// already refunded counts as done.
func (h *Handler) Handle(ctx context.Context, d amqp.Delivery) {
	log := h.logger.WithField("message_id", d.MessageId)

	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.TicketID == uuid.Nil {
		log.WithError(err).Warn("dropping malformed refund message")
		h.settle(log, d.Reject(false))
		return
	}
	log = log.WithField("ticket_id", msg.TicketID)

	_, err := h.refunder.Refund(ctx, msg.TicketID)
	switch {
	case err == nil:
		log.Info("refund applied")
		h.settle(log, d.Ack(false))
	case errors.Is(err, domain.ErrTicketNotRefundable):
		log.Info("ticket already released, acknowledging duplicate refund")
		h.settle(log, d.Ack(false))
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
		log.WithError(err).Warn("dropping refund that cannot be applied")
		h.settle(log, d.Reject(false))
	default:
		log.WithError(err).Error("refund failed, requeueing")
		h.settle(log, d.Nack(false, true))
	}
}

func (h *Handler) settle(log observability.Logger, err error) {
	if err != nil {
		log.WithError(err).Error("failed to settle delivery")
	}
}

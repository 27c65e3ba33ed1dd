package refunds_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/refunds"
	"github.com/stretchr/testify/assert"
)

type ack struct {
	acked, nacked, rejected bool
	requeue                 bool
}

func (a *ack) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ack) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ack) Reject(_ uint64, requeue bool) error {
	a.rejected, a.requeue = true, requeue
	return nil
}

type refunderFunc func(ctx context.Context, id uuid.UUID) (domain.Ticket, error)

func (f refunderFunc) Refund(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	return f(ctx, id)
}

func deliver(t *testing.T, body string, err error) (*ack, []uuid.UUID) {
	t.Helper()
	var got []uuid.UUID
	h := refunds.NewHandler(refunderFunc(func(_ context.Context, id uuid.UUID) (domain.Ticket, error) {
		got = append(got, id)
		return domain.Ticket{ID: id}, err
	}), observability.NewNopLogger())

	a := &ack{}
	h.Handle(context.Background(), amqp.Delivery{Acknowledger: a, DeliveryTag: 1, Body: []byte(body)})
	return a, got
}

func TestHandle(t *testing.T) {
	id := uuid.New()
	body := `{"ticket_id":"` + id.String() + `"}`

	t.Run("applied", func(t *testing.T) {
		a, got := deliver(t, body, nil)
		assert.True(t, a.acked)
		assert.Equal(t, []uuid.UUID{id}, got)
	})

	t.Run("duplicate", func(t *testing.T) {
		a, _ := deliver(t, body, domain.ErrTicketNotRefundable)
		assert.True(t, a.acked)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		a, _ := deliver(t, body, errors.Wrap(domain.ErrTicketNotFound, "refund"))
		assert.True(t, a.rejected)
		assert.False(t, a.requeue)
	})

	t.Run("transient", func(t *testing.T) {
		a, _ := deliver(t, body, domain.ErrSerializationFailure)
		assert.True(t, a.nacked)
		assert.True(t, a.requeue)
	})

	t.Run("malformed", func(t *testing.T) {
		a, got := deliver(t, `{"ticket_id":`, nil)
		assert.True(t, a.rejected)
		assert.Empty(t, got)
	})
}

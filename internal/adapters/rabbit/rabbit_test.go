package rabbit_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-waitlist/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-waitlist/internal/adapters/sqlite"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
	"github.com/robertarktes/ticket-waitlist/internal/refunds"
	"github.com/robertarktes/ticket-waitlist/internal/scheduler"
	"github.com/robertarktes/ticket-waitlist/internal/waitlist"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func dialRabbit(t *testing.T) *amqp.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	conn, err := amqp.Dial(fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Purchases go out through the outbox and refund confirmations come back on
// the refund queue.
func TestOutboxAndRefundRoundTrip(t *testing.T) {
	conn := dialRabbit(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "rabbit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewSystem()
	logger := observability.NewNopLogger()
	svc := waitlist.NewService(store, scheduler.New(store, clk), clk)

	pub, err := rabbit.NewPublisher(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	ch, err := conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "ticket.*", rabbit.Exchange, false, nil))
	tickets, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	event, err := svc.CreateEvent(ctx, uuid.Nil, 1)
	require.NoError(t, err)
	joined, err := svc.Join(ctx, event.ID, "alice")
	require.NoError(t, err)
	ticket, err := svc.Purchase(ctx, waitlist.PurchaseInput{
		EventID: event.ID,
		UserID:  "alice",
		EntryID: joined.Entry.ID,
		Payment: domain.PaymentConfirmation{Reference: "pay_1", Amount: decimal.NewFromInt(25)},
	})
	require.NoError(t, err)

	publisher := outbox.NewPublisher(store, pub, clk, logger, 100)
	n, err := publisher.PublishPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "entry.offered and ticket.purchased")

	select {
	case msg := <-tickets:
		assert.Equal(t, outbox.TicketPurchased, msg.RoutingKey)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Body, &body))
		assert.Equal(t, ticket.ID.String(), body["ticket_id"])
	case <-ctx.Done():
		t.Fatal("ticket.purchased was not delivered")
	}

	const refundQueue = "waitlist.refunds.test"
	consumer, err := rabbit.NewConsumer(conn, refundQueue, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })
	deliveries, err := consumer.Consume(ctx)
	require.NoError(t, err)

	body, err := json.Marshal(refunds.Message{TicketID: ticket.ID})
	require.NoError(t, err)
	require.NoError(t, ch.PublishWithContext(ctx, "", refundQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}))

	handler := refunds.NewHandler(svc, logger)
	select {
	case d := <-deliveries:
		handler.Handle(ctx, d)
	case <-ctx.Done():
		t.Fatal("refund message was not delivered")
	}

	got, err := store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketRefunded, got.Status)
}

package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
)

type Store interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type MessagePublisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Publisher drains outbox rows to the broker. Delivery is at-least-once; the
// dedupe key travels as the AMQP message id.
type Publisher struct {
	store  Store
	pub    MessagePublisher
	clock  clock.Clock
	logger observability.Logger
	batch  int
}

func NewPublisher(store Store, pub MessagePublisher, clk clock.Clock, logger observability.Logger, batch int) *Publisher {
	if batch <= 0 {
		batch = 100
	}
	return &Publisher{store: store, pub: pub, clock: clk, logger: logger, batch: batch}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	p.logger.Info("Outbox publisher started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil {
				p.logger.WithError(err).Error("outbox publish round failed")
			}
		}
	}
}

// PublishPending publishes one batch and returns how many records went out.
// A record that fails to publish stays NEW and is retried next round.
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	records, err := p.store.GetUnpublishedOutbox(ctx, p.batch)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:    rec.DedupeKey,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.CreatedAt,
			Type:         rec.EventType,
			Body:         rec.Payload,
		}
		if err := p.pub.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishRetries.Inc()
			p.logger.WithField("outbox_id", rec.ID).WithError(err).Warn("publish failed, will retry")
			continue
		}
		now := p.clock.Now()
		if err := p.store.MarkPublished(ctx, rec.ID, now); err != nil {
			return published, err
		}
		observability.OutboxLag.Set(now.Sub(rec.CreatedAt).Seconds())
		published++
	}
	return published, nil
}

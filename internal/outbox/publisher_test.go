package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records   []Record
	published map[uuid.UUID]time.Time
}

func (f *fakeStore) GetUnpublishedOutbox(_ context.Context, limit int) ([]Record, error) {
	var out []Record
	for _, r := range f.records {
		if _, done := f.published[r.ID]; done {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	f.published[id] = at
	return nil
}

type fakePub struct {
	failKey string
	sent    []amqp.Publishing
	keys    []string
}

func (f *fakePub) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	if key == f.failKey {
		return errors.New("broker unavailable")
	}
	f.keys = append(f.keys, key)
	f.sent = append(f.sent, msg)
	return nil
}

func TestPublisher_PublishPending(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	offered, err := NewRecord("waiting_list_entry", uuid.New(), EntryOffered, map[string]any{"status": "offered"}, now)
	require.NoError(t, err)
	refunded, err := NewRecord("ticket", uuid.New(), TicketRefunded, map[string]any{"status": "refunded"}, now)
	require.NoError(t, err)

	store := &fakeStore{records: []Record{offered, refunded}, published: map[uuid.UUID]time.Time{}}
	pub := &fakePub{failKey: TicketRefunded}
	p := NewPublisher(store, pub, clock.NewManual(now.Add(time.Second)), observability.NewNopLogger(), 10)

	n, err := p.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{EntryOffered}, pub.keys)
	assert.Equal(t, offered.DedupeKey, pub.sent[0].MessageId)
	assert.JSONEq(t, `{"status":"offered"}`, string(pub.sent[0].Body))
	assert.Contains(t, store.published, offered.ID)
	assert.NotContains(t, store.published, refunded.ID)

	// the failed record is retried once the broker recovers
	pub.failKey = ""
	n, err = p.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{EntryOffered, TicketRefunded}, pub.keys)
}

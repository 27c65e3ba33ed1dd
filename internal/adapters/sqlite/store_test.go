package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/adapters/sqlite"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
	"github.com/robertarktes/ticket-waitlist/internal/scheduler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "waitlist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createEvent(t *testing.T, store *sqlite.Store, total int) domain.Event {
	t.Helper()
	event := domain.Event{ID: uuid.New(), TotalTickets: total, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, store.CreateEvent(context.Background(), event))
	return event
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open("  ")
	require.Error(t, err)
}

func TestOpen_ReappliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waitlist.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	event := createEvent(t, store, 3)

	err := store.CreateEvent(ctx, event)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalTickets)
	assert.False(t, got.Cancelled)
	assert.Equal(t, t0, got.CreatedAt)

	seq, err := store.NextEntrySeq(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	seq, err = store.NextEntrySeq(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	got.TotalTickets = 5
	got.Cancelled = true
	require.NoError(t, store.UpdateEvent(ctx, got))
	got, err = store.LockEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.TotalTickets)
	assert.True(t, got.Cancelled)
	assert.Equal(t, int64(3), got.Version)

	_, err = store.GetEvent(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	_, err = store.NextEntrySeq(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	err = store.UpdateEvent(ctx, domain.Event{ID: uuid.New(), TotalTickets: 1})
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestWaitingList(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	event := createEvent(t, store, 2)

	alice := domain.NewEntry(event.ID, "alice", t0)
	alice.Seq = 1
	require.NoError(t, alice.Offer(t0, 30*time.Minute))
	require.NoError(t, store.CreateEntry(ctx, alice))

	bob := domain.NewEntry(event.ID, "bob", t0)
	bob.Seq = 2
	require.NoError(t, store.CreateEntry(ctx, bob))

	dup := domain.NewEntry(event.ID, "bob", t0)
	dup.Seq = 3
	assert.ErrorIs(t, store.CreateEntry(ctx, dup), domain.ErrDuplicateEntry)

	n, err := store.CountActiveOffers(ctx, event.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.CountActiveOffers(ctx, event.ID, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n, "offer is not active at its expiry instant")

	found, err := store.FindActiveEntry(ctx, event.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, bob.ID, found.ID)
	found, err = store.FindActiveEntry(ctx, event.ID, "carol")
	require.NoError(t, err)
	assert.Nil(t, found)

	got, err := store.GetEntry(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OfferExpiresAt)
	assert.Equal(t, t0.Add(30*time.Minute), *got.OfferExpiresAt)

	ahead, err := store.CountAhead(ctx, event.ID, bob.Seq)
	require.NoError(t, err)
	assert.Equal(t, 1, ahead)

	waiting, err := store.ListWaiting(ctx, event.ID, 10)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, "bob", waiting[0].UserID)

	require.NoError(t, got.Expire(t0.Add(time.Hour)))
	require.NoError(t, store.UpdateEntry(ctx, got, domain.EntryOffered))
	assert.ErrorIs(t, store.UpdateEntry(ctx, got, domain.EntryOffered), domain.ErrInvalidTransition)

	// Expired entries free the user's slot.
	again := domain.NewEntry(event.ID, "alice", t0)
	again.Seq = 4
	require.NoError(t, store.CreateEntry(ctx, again))

	_, err = store.GetEntry(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)

	deleted, err := store.DeleteEntries(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	event := createEvent(t, store, 2)

	entry := domain.NewEntry(event.ID, "alice", t0)
	entry.Seq = 1
	require.NoError(t, entry.Offer(t0, time.Minute))
	require.NoError(t, store.CreateEntry(ctx, entry))

	payment := domain.PaymentConfirmation{Reference: "pay_1", Amount: decimal.RequireFromString("49.90")}
	ticket := domain.NewTicket(entry, payment, t0)
	require.NoError(t, store.CreateTicket(ctx, ticket))

	again := domain.NewTicket(entry, payment, t0)
	assert.ErrorIs(t, store.CreateTicket(ctx, again), domain.ErrOfferExpiredOrConsumed)

	got, err := store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, payment.Amount.Equal(got.Amount))
	assert.Equal(t, domain.TicketValid, got.Status)

	n, err := store.CountValidOrUsedTickets(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.UpdateTicketStatus(ctx, ticket.ID, domain.TicketValid, domain.TicketRefunded))
	err = store.UpdateTicketStatus(ctx, ticket.ID, domain.TicketValid, domain.TicketRefunded)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	n, err = store.CountValidOrUsedTickets(ctx, event.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	byUser, err := store.ListUserTickets(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	refunded, err := store.ListEventTickets(ctx, event.ID, domain.TicketRefunded)
	require.NoError(t, err)
	assert.Len(t, refunded, 1)
	valid, err := store.ListEventTickets(ctx, event.ID, domain.TicketValid, domain.TicketUsed)
	require.NoError(t, err)
	assert.Empty(t, valid)

	_, err = store.GetTicket(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestWithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	event := createEvent(t, store, 1)

	err := store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := store.NextEntrySeq(ctx, event.ID); err != nil {
			return err
		}
		return domain.ErrEventCancelled
	})
	require.ErrorIs(t, err, domain.ErrEventCancelled)

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Zero(t, got.EntrySeq)
}

func TestJobs_ClaimLeaseComplete(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	due := scheduler.Job{ID: uuid.New(), Kind: scheduler.KindOfferExpiry, EntryID: uuid.New(), EventID: uuid.New(), RunAt: t0, CreatedAt: t0}
	later := scheduler.Job{ID: uuid.New(), Kind: scheduler.KindOfferExpiry, EntryID: uuid.New(), EventID: uuid.New(), RunAt: t0.Add(time.Hour), CreatedAt: t0}
	require.NoError(t, store.InsertJob(ctx, due))
	require.NoError(t, store.InsertJob(ctx, later))

	jobs, err := store.ClaimDueJobs(ctx, t0, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, due.ID, jobs[0].ID)
	assert.Equal(t, 1, jobs[0].Attempts)

	jobs, err = store.ClaimDueJobs(ctx, t0.Add(30*time.Second), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "leased job is hidden")

	require.NoError(t, store.FailJob(ctx, due.ID, "boom"))
	jobs, err = store.ClaimDueJobs(ctx, t0.Add(time.Minute), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].Attempts)
	assert.Equal(t, "boom", jobs[0].LastError)

	require.NoError(t, store.CompleteJob(ctx, due.ID))
	n, err := store.PendingJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutbox(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	first, err := outbox.NewRecord("ticket", uuid.New(), outbox.TicketPurchased, map[string]string{"k": "v"}, t0)
	require.NoError(t, err)
	second, err := outbox.NewRecord("ticket", uuid.New(), outbox.TicketRefunded, map[string]string{"k": "w"}, t0.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, store.InsertOutbox(ctx, first))
	require.NoError(t, store.InsertOutbox(ctx, second))

	pending, err := store.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.JSONEq(t, `{"k":"v"}`, string(pending[0].Payload))

	require.NoError(t, store.MarkPublished(ctx, first.ID, t0.Add(time.Minute)))
	pending, err = store.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

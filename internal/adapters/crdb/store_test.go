package crdb_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/adapters/crdb"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/scheduler"
	"github.com/robertarktes/ticket-waitlist/internal/waitlist"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

var (
	sharedOnce  sync.Once
	sharedDSN   string
	sharedError error
)

// startCockroach boots one single-node cluster per test binary.
func startCockroach(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	sharedOnce.Do(func() {
		ctx := context.Background()
		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "cockroachdb/cockroach:v24.1.1",
				Cmd:          []string{"start-single-node", "--insecure"},
				ExposedPorts: []string{"26257/tcp", "8080/tcp"},
				WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080/tcp"),
			},
			Started: true,
		})
		if err != nil {
			sharedError = err
			return
		}
		host, err := c.Host(ctx)
		if err != nil {
			sharedError = err
			return
		}
		port, err := c.MappedPort(ctx, "26257/tcp")
		if err != nil {
			sharedError = err
			return
		}
		sharedDSN = fmt.Sprintf("postgresql://root@%s:%s/defaultdb?sslmode=disable", host, port.Port())
	})
	require.NoError(t, sharedError)
	return sharedDSN
}

func newStore(t *testing.T) *crdb.Store {
	t.Helper()
	ctx := context.Background()
	store, err := crdb.Connect(ctx, startCockroach(t))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStore_MigrateIsRepeatable(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestStore_EventsAndEntries(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	event := domain.Event{ID: uuid.New(), TotalTickets: 2, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateEvent(ctx, event))
	assert.ErrorIs(t, store.CreateEvent(ctx, event), domain.ErrInvalidInput)

	var seq int64
	err := store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := store.LockEvent(ctx, event.ID); err != nil {
			return err
		}
		var err error
		seq, err = store.NextEntrySeq(ctx, event.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	entry := domain.NewEntry(event.ID, "alice", now)
	entry.Seq = seq
	require.NoError(t, entry.Offer(now, time.Minute))
	require.NoError(t, store.CreateEntry(ctx, entry))

	dup := domain.NewEntry(event.ID, "alice", now)
	dup.Seq = 2
	assert.ErrorIs(t, store.CreateEntry(ctx, dup), domain.ErrDuplicateEntry)

	n, err := store.CountActiveOffers(ctx, event.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OfferExpiresAt)
	assert.True(t, got.OfferExpiresAt.Equal(now.Add(time.Minute)))

	require.NoError(t, got.Purchase(now))
	require.NoError(t, store.UpdateEntry(ctx, got, domain.EntryOffered))
	assert.ErrorIs(t, store.UpdateEntry(ctx, got, domain.EntryOffered), domain.ErrInvalidTransition)

	payment := domain.PaymentConfirmation{Reference: "pay_1", Amount: decimal.RequireFromString("120.50")}
	ticket := domain.NewTicket(got, payment, now)
	require.NoError(t, store.CreateTicket(ctx, ticket))
	assert.ErrorIs(t, store.CreateTicket(ctx, domain.NewTicket(got, payment, now)), domain.ErrOfferExpiredOrConsumed)

	stored, err := store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, payment.Amount.Equal(stored.Amount))

	valid, err := store.ListEventTickets(ctx, event.ID, domain.TicketValid, domain.TicketUsed)
	require.NoError(t, err)
	assert.Len(t, valid, 1)
}

func TestStore_ClaimDueJobs(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC()

	job := scheduler.Job{ID: uuid.New(), Kind: scheduler.KindOfferExpiry, EntryID: uuid.New(), EventID: uuid.New(), RunAt: now.Add(-time.Second), CreatedAt: now}
	require.NoError(t, store.InsertJob(ctx, job))

	claimed, err := store.ClaimDueJobs(ctx, now, time.Minute, 1000)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, j := range claimed {
		ids = append(ids, j.ID)
	}
	assert.Contains(t, ids, job.ID)

	again, err := store.ClaimDueJobs(ctx, now, time.Minute, 1000)
	require.NoError(t, err)
	for _, j := range again {
		assert.NotEqual(t, job.ID, j.ID)
	}
	require.NoError(t, store.CompleteJob(ctx, job.ID))
}

// Concurrent joins for the last seats must never grant more offers than
// capacity.
func TestStore_ConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	clk := clock.NewSystem()
	sched := scheduler.New(store, clk)
	svc := waitlist.NewService(store, sched, clk)

	event, err := svc.CreateEvent(ctx, uuid.Nil, 3)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 12; i++ {
		user := fmt.Sprintf("user-%d", i)
		g.Go(func() error {
			for {
				_, err := svc.Join(ctx, event.ID, user)
				if errors.Is(err, domain.ErrSerializationFailure) {
					continue
				}
				return err
			}
		})
	}
	require.NoError(t, g.Wait())

	avail, err := svc.Availability(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, avail.ActiveOffers)
	assert.Zero(t, avail.Remaining())
}

// Package scheduler runs durable deferred jobs. Jobs are rows written in the
// caller's transaction; a job is deleted only after its handler succeeds, so
// delivery is at-least-once and survives restarts. Handlers must be
// idempotent.
package scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
)

const KindOfferExpiry = "offer.expire"

type Job struct {
	ID        uuid.UUID
	Kind      string
	EntryID   uuid.UUID
	EventID   uuid.UUID
	RunAt     time.Time
	Attempts  int
	LastError string
	CreatedAt time.Time
}

type Store interface {
	// InsertJob joins the transaction carried by ctx, if any.
	InsertJob(ctx context.Context, job Job) error
	// ClaimDueJobs leases up to limit jobs with RunAt <= now that are not
	// currently leased, and bumps their attempt counter.
	ClaimDueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, reason string) error
}

type Handler func(ctx context.Context, job Job) error

type Scheduler struct {
	store    Store
	clock    clock.Clock
	logger   observability.Logger
	handlers map[string]Handler
	lease    time.Duration
	batch    int
}

type Option func(*Scheduler)

// WithLease sets how long a claimed job is hidden before it is redelivered.
func WithLease(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lease = d
		}
	}
}

func WithBatch(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func New(store Store, clk clock.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		clock:    clk,
		logger:   observability.NewNopLogger(),
		handlers: make(map[string]Handler),
		lease:    30 * time.Second,
		batch:    50,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers the handler for a job kind. Not safe to call while Run is
// active.
func (s *Scheduler) Handle(kind string, h Handler) {
	s.handlers[kind] = h
}

// HandleExpiry registers fn as the offer expiry handler.
func (s *Scheduler) HandleExpiry(fn func(ctx context.Context, entryID, eventID uuid.UUID) error) {
	s.Handle(KindOfferExpiry, func(ctx context.Context, job Job) error {
		return fn(ctx, job.EntryID, job.EventID)
	})
}

func (s *Scheduler) Schedule(ctx context.Context, kind string, entryID, eventID uuid.UUID, delay time.Duration) error {
	now := s.clock.Now()
	job := Job{
		ID:        uuid.New(),
		Kind:      kind,
		EntryID:   entryID,
		EventID:   eventID,
		RunAt:     now.Add(delay),
		CreatedAt: now,
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		return errors.Wrapf(err, "schedule %s for entry %s", kind, entryID)
	}
	return nil
}

// ScheduleExpiry guarantees the expiry handler runs at or after now+delay.
func (s *Scheduler) ScheduleExpiry(ctx context.Context, entryID, eventID uuid.UUID, delay time.Duration) error {
	return s.Schedule(ctx, KindOfferExpiry, entryID, eventID, delay)
}

func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("failed to run due jobs")
			}
		}
	}
}

// RunDue claims and dispatches one batch of due jobs and returns how many
// completed. A handler error leaves the job in place for redelivery after the
// lease.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	jobs, err := s.store.ClaimDueJobs(ctx, now, s.lease, s.batch)
	if err != nil {
		return 0, errors.Wrap(err, "claim due jobs")
	}

	done := 0
	for _, job := range jobs {
		observability.SchedulerLag.Set(now.Sub(job.RunAt).Seconds())
		log := s.logger.WithField("job_id", job.ID).WithField("kind", job.Kind).WithField("entry_id", job.EntryID)

		h, ok := s.handlers[job.Kind]
		if !ok {
			observability.SchedulerJobs.WithLabelValues(job.Kind, "unhandled").Inc()
			log.Warn("no handler registered for job kind")
			if err := s.store.FailJob(ctx, job.ID, "no handler registered"); err != nil {
				return done, err
			}
			continue
		}

		if err := h(ctx, job); err != nil {
			observability.SchedulerJobs.WithLabelValues(job.Kind, "failed").Inc()
			log.WithField("attempts", job.Attempts).WithError(err).Warn("job failed, will be redelivered")
			if ferr := s.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
				return done, ferr
			}
			continue
		}

		if err := s.store.CompleteJob(ctx, job.ID); err != nil {
			return done, err
		}
		observability.SchedulerJobs.WithLabelValues(job.Kind, "ok").Inc()
		done++
	}
	return done, nil
}

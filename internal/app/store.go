// Package app holds the wiring shared by the binaries under cmd.
package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-waitlist/internal/adapters/crdb"
	"github.com/robertarktes/ticket-waitlist/internal/adapters/sqlite"
	"github.com/robertarktes/ticket-waitlist/internal/config"
	"github.com/robertarktes/ticket-waitlist/internal/outbox"
	"github.com/robertarktes/ticket-waitlist/internal/scheduler"
	"github.com/robertarktes/ticket-waitlist/internal/waitlist"
)

// Store is everything a binary may need from the database.
type Store interface {
	waitlist.Store
	scheduler.Store
	outbox.Store
	Ping(ctx context.Context) error
}

var (
	_ Store = (*crdb.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)

// OpenStore opens the configured backend. The returned func releases it.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverCRDB:
		s, err := crdb.Connect(ctx, cfg.CRDBDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, errors.Newf("unknown store driver %q", cfg.StoreDriver)
}

// NewScheduler builds the durable scheduler with the configured lease and
// batch size.
func NewScheduler(store scheduler.Store, cfg *config.Config, deps Deps) *scheduler.Scheduler {
	return scheduler.New(store, deps.Clock,
		scheduler.WithLease(cfg.SchedulerLease),
		scheduler.WithBatch(cfg.SchedulerBatch),
		scheduler.WithLogger(deps.Logger))
}

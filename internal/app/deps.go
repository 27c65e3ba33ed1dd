package app

import (
	"context"

	"github.com/cockroachdb/errors"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/ticket-waitlist/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/ticket-waitlist/internal/adapters/redis"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/config"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/waitlist"
	"go.mongodb.org/mongo-driver/mongo"
)

type Deps struct {
	Clock  clock.Clock
	Logger observability.Logger
}

// NewService builds the engine. When MONGO_URI is set decisions are also
// written to the audit trail; the returned func disconnects it.
func NewService(ctx context.Context, cfg *config.Config, store waitlist.Store, sched waitlist.OfferScheduler, deps Deps) (*waitlist.Service, *mongo.Client, func(), error) {
	opts := []waitlist.Option{
		waitlist.WithOfferWindow(cfg.OfferWindow),
		waitlist.WithLogger(deps.Logger),
	}
	cleanup := func() {}

	var client *mongo.Client
	if cfg.MongoURI != "" {
		var err error
		client, err = mongoadapter.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, nil, err
		}
		audit := mongoadapter.NewAuditLogger(client.Database(cfg.MongoDB), deps.Clock, deps.Logger)
		if err := audit.EnsureIndexes(ctx); err != nil {
			deps.Logger.WithError(err).Warn("audit indexes not created")
		}
		opts = append(opts, waitlist.WithAuditor(audit))
		cleanup = func() { _ = client.Disconnect(context.Background()) }
	}
	return waitlist.NewService(store, sched, deps.Clock, opts...), client, cleanup, nil
}

// NewRedis connects to REDIS_ADDR, or returns nil when it is unset.
func NewRedis(ctx context.Context, cfg *config.Config) (*redisadapter.Cache, *redisadapter.Idempotency, error) {
	if cfg.RedisAddr == "" {
		return nil, nil, nil
	}
	client := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(client)
	if err := cache.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "ping redis")
	}
	return cache, redisadapter.NewIdempotency(client), nil
}

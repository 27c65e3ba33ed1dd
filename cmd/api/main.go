package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robertarktes/ticket-waitlist/internal/app"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/config"
	httphandler "github.com/robertarktes/ticket-waitlist/internal/http"
	"github.com/robertarktes/ticket-waitlist/internal/idempotency"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/rateLimit"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg, "waitlist-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)
	deps := app.Deps{Clock: clock.NewSystem(), Logger: logger}

	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	sched := app.NewScheduler(store, cfg, deps)
	svc, mongoClient, closeMongo, err := app.NewService(ctx, cfg, store, sched, deps)
	if err != nil {
		log.Fatalf("failed to build service: %v", err)
	}
	defer closeMongo()
	sched.HandleExpiry(svc.ExpireOffer)

	handlers := httphandler.NewHandlers(svc, logger).AddReadyCheck("store", store.Ping)
	if mongoClient != nil {
		handlers.AddReadyCheck("mongo", func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) })
	}

	cache, redisIdemp, err := app.NewRedis(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	var (
		rl    *rateLimit.RateLimiter
		idemp *idempotency.Idempotency
	)
	if cache != nil {
		defer cache.Client().Close()
		rl = rateLimit.NewRateLimiter(cache, logger)
		idemp = idempotency.NewIdempotency(redisIdemp, cfg.IdempotencyTTL)
		handlers.WithJoinLimit(rl, cfg.RateLimitJoin).AddReadyCheck("redis", cache.Ping)
	}

	r := httphandler.SetupRouter(handlers, logger, rl, cfg.RateLimitIP, idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.EmbeddedWorker {
		g.Go(func() error {
			logger.Info("embedded expiry scheduler started")
			sched.Run(gctx, cfg.SchedulerInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("api stopped with error")
		os.Exit(1)
	}
	logger.Info("Server exiting")
}

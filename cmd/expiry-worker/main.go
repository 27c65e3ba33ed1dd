package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-waitlist/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-waitlist/internal/app"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/config"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/refunds"
	"golang.org/x/sync/errgroup"
)

// The expiry worker fires offer expiry jobs and applies refund
// confirmations from the payment provider.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "waitlist-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)
	deps := app.Deps{Clock: clock.NewSystem(), Logger: logger}

	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	sched := app.NewScheduler(store, cfg, deps)
	svc, _, closeMongo, err := app.NewService(ctx, cfg, store, sched, deps)
	if err != nil {
		log.Fatalf("failed to build service: %v", err)
	}
	defer closeMongo()
	sched.HandleExpiry(svc.ExpireOffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("expiry scheduler started")
		sched.Run(gctx, cfg.SchedulerInterval)
		return nil
	})

	if cfg.RabbitURL != "" {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()
		consumer, err := rabbit.NewConsumer(conn, cfg.RefundQueue, 16)
		if err != nil {
			log.Fatalf("failed to create consumer: %v", err)
		}
		defer consumer.Close()

		deliveries, err := consumer.Consume(gctx)
		if err != nil {
			log.Fatalf("failed to consume refunds: %v", err)
		}
		handler := refunds.NewHandler(svc, logger.WithField("queue", cfg.RefundQueue))
		g.Go(func() error {
			logger.WithField("queue", cfg.RefundQueue).Info("refund consumer started")
			handler.Run(gctx, deliveries)
			return nil
		})
	} else {
		logger.Warn("RABBIT_URL not set, refund consumer disabled")
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("expiry worker stopped with error")
	}
	logger.Info("Shutdown expiry worker")
}

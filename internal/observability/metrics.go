package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered on the default registry by promauto.
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waitlist_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	JoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_joins_total",
			Help: "Waiting list joins by outcome",
		},
		[]string{"outcome"},
	)

	OffersGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_offers_granted_total",
			Help: "Offers granted, by source (join or queue)",
		},
		[]string{"source"},
	)

	OffersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waitlist_offers_expired_total",
			Help: "Offers moved from offered to expired",
		},
	)

	TicketsPurchased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waitlist_tickets_purchased_total",
			Help: "Tickets issued by purchase",
		},
	)

	TicketsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_tickets_released_total",
			Help: "Tickets returned to capacity, by final status",
		},
		[]string{"status"},
	)

	SchedulerJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_scheduler_jobs_total",
			Help: "Scheduled jobs dispatched, by kind and result",
		},
		[]string{"kind", "result"},
	)

	SchedulerLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waitlist_scheduler_lag_seconds",
			Help: "Delay between a job's due time and its dispatch",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waitlist_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waitlist_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waitlist_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

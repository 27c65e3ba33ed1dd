package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	DriverCRDB   = "crdb"
	DriverSQLite = "sqlite"
)

type Config struct {
	StoreDriver  string `env:"STORE_DRIVER" envDefault:"crdb"`
	CRDBDSN      string `env:"CRDB_DSN"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"waitlist.db"`
	MongoURI     string `env:"MONGO_URI"`
	MongoDB      string `env:"MONGO_DB" envDefault:"waitlist"`
	RedisAddr    string `env:"REDIS_ADDR"`
	RabbitURL    string `env:"RABBIT_URL"`
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	OfferWindow       time.Duration `env:"OFFER_WINDOW" envDefault:"30m"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1s"`
	SchedulerLease    time.Duration `env:"SCHEDULER_LEASE" envDefault:"30s"`
	SchedulerBatch    int           `env:"SCHEDULER_BATCH" envDefault:"50"`
	OutboxInterval    time.Duration `env:"OUTBOX_INTERVAL" envDefault:"5s"`
	OutboxBatch       int           `env:"OUTBOX_BATCH" envDefault:"100"`
	IdempotencyTTL    time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"1h"`
	RateLimitJoin     int           `env:"RATE_LIMIT_JOIN" envDefault:"10"`
	RateLimitIP       int           `env:"RATE_LIMIT_IP" envDefault:"100"`
	RefundQueue       string        `env:"REFUND_QUEUE" envDefault:"waitlist.refunds"`
	// EmbeddedWorker runs the expiry scheduler inside the API process.
	EmbeddedWorker bool `env:"EMBEDDED_WORKER" envDefault:"false"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverCRDB:
		if c.CRDBDSN == "" {
			return errors.New("CRDB_DSN is required for the crdb store")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return errors.Newf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.OfferWindow <= 0 {
		return errors.New("OFFER_WINDOW must be positive")
	}
	if c.SchedulerLease <= 0 || c.SchedulerBatch <= 0 {
		return errors.New("scheduler lease and batch must be positive")
	}
	return nil
}

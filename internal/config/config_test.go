package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "waitlist.db", cfg.SQLitePath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.OfferWindow)
	assert.Equal(t, time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 50, cfg.SchedulerBatch)
	assert.Equal(t, "waitlist.refunds", cfg.RefundQueue)
	assert.False(t, cfg.EmbeddedWorker)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "crdb")
	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/waitlist?sslmode=disable")
	t.Setenv("OFFER_WINDOW", "90s")
	t.Setenv("RATE_LIMIT_JOIN", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.OfferWindow)
	assert.Equal(t, 3, cfg.RateLimitJoin)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"crdb without dsn", map[string]string{"STORE_DRIVER": "crdb", "CRDB_DSN": ""}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "oracle"}},
		{"zero offer window", map[string]string{"STORE_DRIVER": "sqlite", "OFFER_WINDOW": "0s"}},
		{"bad duration", map[string]string{"STORE_DRIVER": "sqlite", "OFFER_WINDOW": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

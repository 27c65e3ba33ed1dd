package rateLimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/rateLimit"
	"github.com/stretchr/testify/assert"
)

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func TestAllow(t *testing.T) {
	ctx := context.Background()
	counter := &fakeCounter{counts: map[string]int64{}}
	rl := rateLimit.NewRateLimiter(counter, observability.NewNopLogger())

	assert.True(t, rl.Allow(ctx, "user:alice", 2, time.Minute))
	assert.True(t, rl.Allow(ctx, "user:alice", 2, time.Minute))
	assert.False(t, rl.Allow(ctx, "user:alice", 2, time.Minute))
	assert.True(t, rl.Allow(ctx, "user:bob", 2, time.Minute))
	assert.Equal(t, int64(3), counter.counts["rl:user:alice"])
}

func TestAllow_FailsOpen(t *testing.T) {
	counter := &fakeCounter{err: errors.New("redis down")}
	rl := rateLimit.NewRateLimiter(counter, observability.NewNopLogger())
	assert.True(t, rl.Allow(context.Background(), "ip:1.2.3.4", 1, time.Minute))
}

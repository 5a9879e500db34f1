package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaim/excore/pkg/config"
)

func TestEngineRateLimiterIsolatesEnginesByName(t *testing.T) {
	cfg := map[string]config.SERPEngineConfig{
		"google": {Concurrency: 1, MinIntervalSeconds: 10},
		"bing":   {Concurrency: 1, MinIntervalSeconds: 0},
	}
	l := NewEngineRateLimiter(cfg)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "google", time.Second))

	err := l.Acquire(ctx, "google", 50*time.Millisecond)
	assert.Error(t, err, "google's single concurrency slot is still held, so a second acquire must time out")

	assert.NoError(t, l.Acquire(ctx, "bing", 50*time.Millisecond), "bing must not be throttled by google's backoff")
}

func TestEngineRateLimiterConcurrencyCap(t *testing.T) {
	cfg := map[string]config.SERPEngineConfig{
		"duckduckgo": {Concurrency: 1, MinIntervalSeconds: 0},
	}
	l := NewEngineRateLimiter(cfg)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "duckduckgo", time.Second))
	err := l.Acquire(ctx, "duckduckgo", 50*time.Millisecond)
	assert.Error(t, err, "second concurrent acquire should block on the concurrency=1 semaphore")

	l.Release("duckduckgo")
	assert.NoError(t, l.Acquire(ctx, "duckduckgo", time.Second))
}

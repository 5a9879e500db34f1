package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaim/excore/pkg/config"
)

func newTestLimiter() *AcademicAPIRateLimiter {
	providers := map[string]config.AcademicProviderConfig{
		"arxiv": {MaxParallel: 2, MinIntervalSeconds: 0},
	}
	cfg := config.AcademicBackoffConfig{RecoveryStableSeconds: 1, DecreaseStep: 1}
	return NewAcademicAPIRateLimiter(providers, cfg)
}

func TestAcquireRespectsConcurrencySlot(t *testing.T) {
	l := newTestLimiter()
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "arxiv", time.Second))
	require.NoError(t, l.Acquire(ctx, "arxiv", time.Second))

	err := l.Acquire(ctx, "arxiv", 50*time.Millisecond)
	assert.Error(t, err, "third acquire should block past the 2-slot limit and time out")

	l.Release("arxiv")
	assert.NoError(t, l.Acquire(ctx, "arxiv", time.Second))
}

func TestReportTooManyRequestsStepDecreasesAndFloorsAtOne(t *testing.T) {
	l := newTestLimiter()
	l.ReportTooManyRequests("arxiv")
	l.ReportTooManyRequests("arxiv")

	s := l.state("arxiv")
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 1, s.backoff.EffectiveLimit, "two decreases of step 1 from a limit of 2 floor at 1")
	assert.True(t, s.backoff.BackoffActive)
	assert.Equal(t, 2, s.backoff.ConsecutiveFailures, "counter keeps incrementing even once floored")
}

func TestReportSuccessResetsConsecutiveFailuresOnly(t *testing.T) {
	l := newTestLimiter()
	l.ReportTooManyRequests("arxiv")
	l.ReportSuccess("arxiv")

	s := l.state("arxiv")
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 0, s.backoff.ConsecutiveFailures)
	assert.Equal(t, 1, s.backoff.EffectiveLimit, "success alone does not restore capacity")
	assert.True(t, s.backoff.BackoffActive, "backoff stays active until the stable-time recovery check runs")
}

func TestMaybeRecoverGrowsLimitAfterStablePeriodAndClearsBackoff(t *testing.T) {
	l := newTestLimiter()
	l.ReportTooManyRequests("arxiv") // limit 2 -> 1

	s := l.state("arxiv")
	s.mu.Lock()
	s.backoff.LastFailure = time.Now().Add(-2 * time.Second)
	s.backoff.LastRecoveryAttempt = time.Time{}
	s.mu.Unlock()

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "arxiv", time.Second)) // triggers maybeRecover at acquire time
	l.Release("arxiv")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 2, s.backoff.EffectiveLimit)
	assert.False(t, s.backoff.BackoffActive, "recovering back to configured limit clears backoff_active")
}

func TestAcquireRespectsMinInterval(t *testing.T) {
	providers := map[string]config.AcademicProviderConfig{
		"semanticscholar": {MaxParallel: 5, MinIntervalSeconds: 0.2},
	}
	cfg := config.AcademicBackoffConfig{RecoveryStableSeconds: 1, DecreaseStep: 1}
	l := NewAcademicAPIRateLimiter(providers, cfg)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "semanticscholar", time.Second))
	l.Release("semanticscholar")

	err := l.Acquire(ctx, "semanticscholar", 50*time.Millisecond)
	assert.Error(t, err, "second request inside min_interval_seconds should time out waiting")
}

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openclaim/excore/pkg/config"
)

// pollInterval is how often acquire re-checks slot/interval availability
// while blocked, grounded on the teacher's pkg/queue/worker.go poll-loop
// style (pollInterval with jitter) but simplified: academic-API waits are
// short and don't need jitter to avoid thundering-herd on a single pool.
const pollInterval = 100 * time.Millisecond

// providerState is the live slot-accounting for one academic provider.
type providerState struct {
	mu      sync.Mutex
	backoff *BackoffState
	active  int
	lastReq time.Time
}

// AcademicAPIRateLimiter is the self-recovering limiter spec.md §4.6
// describes for academic-API providers: a concurrency slot plus a
// minimum request interval, both shrinking on 429 and lazily growing
// back on sustained success.
type AcademicAPIRateLimiter struct {
	cfg  config.AcademicBackoffConfig
	mu   sync.Mutex
	byProvider map[string]*providerState
	providers  map[string]config.AcademicProviderConfig
}

// NewAcademicAPIRateLimiter builds a limiter over the configured
// providers, one independent BackoffState each.
func NewAcademicAPIRateLimiter(providers map[string]config.AcademicProviderConfig, cfg config.AcademicBackoffConfig) *AcademicAPIRateLimiter {
	return &AcademicAPIRateLimiter{
		cfg:        cfg,
		byProvider: make(map[string]*providerState),
		providers:  providers,
	}
}

func (l *AcademicAPIRateLimiter) state(provider string) *providerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.byProvider[provider]; ok {
		return s
	}
	limit := l.providers[provider].MaxParallel
	if limit < 1 {
		limit = 1
	}
	s := &providerState{backoff: newBackoffState(limit)}
	l.byProvider[provider] = s
	return s
}

// Acquire blocks until a concurrency slot is free and the provider's
// minimum interval has elapsed since the last request, or ctx/timeout
// expires. A lazy recovery check runs at the start of every call
// (spec.md §4.6 "_maybe_recover, called at acquire time").
func (l *AcademicAPIRateLimiter) Acquire(ctx context.Context, provider string, timeout time.Duration) error {
	s := l.state(provider)
	minInterval := time.Duration(l.providers[provider].MinIntervalSeconds * float64(time.Second))

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		now := time.Now()
		l.maybeRecover(s, now)

		intervalOK := now.Sub(s.lastReq) >= minInterval
		slotOK := s.active < s.backoff.EffectiveLimit
		if intervalOK && slotOK {
			s.active++
			s.lastReq = now
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		if timeout > 0 && time.Now().After(deadline) {
			return fmt.Errorf("ratelimit: acquire timed out for provider %q", provider)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release gives back the concurrency slot acquired by Acquire.
func (l *AcademicAPIRateLimiter) Release(provider string) {
	s := l.state(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active > 0 {
		s.active--
	}
}

// ReportTooManyRequests records a 429: step-decreases the effective
// limit (floor 1) and marks backoff active, even if already at the
// floor (the failure counter must keep incrementing — spec.md §4.6).
func (l *AcademicAPIRateLimiter) ReportTooManyRequests(provider string) {
	s := l.state(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoff.stepDecrease(l.cfg.DecreaseStep, time.Now())
}

// ReportSuccess resets the consecutive-failure counter only; it does not
// by itself grow the effective limit back (recovery is lazy and
// time-gated, see maybeRecover).
func (l *AcademicAPIRateLimiter) ReportSuccess(provider string) {
	s := l.state(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoff.ConsecutiveFailures = 0
}

// maybeRecover grows the effective limit by one once recovery_stable_seconds
// has elapsed since both the last failure and the last recovery attempt,
// clearing backoff_active once the configured limit is reached again
// (spec.md §4.6). Caller must hold s.mu.
func (l *AcademicAPIRateLimiter) maybeRecover(s *providerState, now time.Time) {
	if !s.backoff.BackoffActive {
		return
	}
	stable := time.Duration(l.cfg.RecoveryStableSeconds) * time.Second
	if now.Sub(s.backoff.LastFailure) < stable {
		return
	}
	if now.Sub(s.backoff.LastRecoveryAttempt) < stable {
		return
	}

	s.backoff.LastRecoveryAttempt = now
	s.backoff.EffectiveLimit++
	if s.backoff.EffectiveLimit >= s.backoff.ConfiguredLimit {
		s.backoff.EffectiveLimit = s.backoff.ConfiguredLimit
		s.backoff.BackoffActive = false
	}
}

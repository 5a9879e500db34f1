package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openclaim/excore/pkg/config"
)

// engineState tracks one SERP engine's concurrency semaphore and last
// request time, isolated from every other engine by name.
type engineState struct {
	mu      sync.Mutex
	sem     chan struct{}
	last    time.Time
	minGap  time.Duration
}

// EngineRateLimiter enforces per-SERP-engine min_interval and
// concurrency caps (spec.md §4.6, "isolated by engine name" — a
// CAPTCHA or slowdown on one engine must not throttle the others).
type EngineRateLimiter struct {
	mu      sync.Mutex
	engines map[string]*engineState
	cfg     map[string]config.SERPEngineConfig
}

// NewEngineRateLimiter builds a limiter over the configured engines.
func NewEngineRateLimiter(cfg map[string]config.SERPEngineConfig) *EngineRateLimiter {
	return &EngineRateLimiter{
		engines: make(map[string]*engineState),
		cfg:     cfg,
	}
}

func (l *EngineRateLimiter) state(engine string) *engineState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.engines[engine]; ok {
		return s
	}
	ec := l.cfg[engine]
	concurrency := ec.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	s := &engineState{
		sem:    make(chan struct{}, concurrency),
		minGap: time.Duration(ec.MinIntervalSeconds * float64(time.Second)),
	}
	l.engines[engine] = s
	return s
}

// Acquire blocks until the named engine has a free concurrency slot and
// its minimum interval has elapsed since the last request.
func (l *EngineRateLimiter) Acquire(ctx context.Context, engine string, timeout time.Duration) error {
	s := l.state(engine)
	deadline := time.Now().Add(timeout)

	for {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		default:
			if timeout > 0 && time.Now().After(deadline) {
				return fmt.Errorf("browser: engine %q rate limit acquire timed out", engine)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		s.mu.Lock()
		wait := s.minGap - time.Since(s.last)
		s.mu.Unlock()
		if wait <= 0 {
			s.mu.Lock()
			s.last = time.Now()
			s.mu.Unlock()
			return nil
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			<-s.sem
			return ctx.Err()
		}
		s.mu.Lock()
		s.last = time.Now()
		s.mu.Unlock()
		return nil
	}
}

// Release frees the concurrency slot acquired for the named engine.
func (l *EngineRateLimiter) Release(engine string) {
	s := l.state(engine)
	select {
	case <-s.sem:
	default:
	}
}

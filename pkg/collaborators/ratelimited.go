package collaborators

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openclaim/excore/pkg/browser"
	"github.com/openclaim/excore/pkg/models"
	"github.com/openclaim/excore/pkg/ratelimit"
)

// acquireTimeout bounds how long a rate-limited call waits for a slot
// before giving up (spec.md §4.6 "timeout expiry raises").
const acquireTimeout = 30 * time.Second

// RateLimitedAcademic wraps an Academic collaborator with
// AcademicAPIRateLimiter's per-provider slot/interval gating (spec.md
// §4.6). Every requested provider must grant a slot before the
// underlying call runs; a 429-shaped error reported back decreases
// that provider's effective concurrency.
type RateLimitedAcademic struct {
	Inner   Academic
	Limiter *ratelimit.AcademicAPIRateLimiter
}

// NewRateLimitedAcademic wraps inner with limiter.
func NewRateLimitedAcademic(inner Academic, limiter *ratelimit.AcademicAPIRateLimiter) *RateLimitedAcademic {
	return &RateLimitedAcademic{Inner: inner, Limiter: limiter}
}

func (r *RateLimitedAcademic) Search(ctx context.Context, query string, opts AcademicSearchOptions) (AcademicSearchResult, error) {
	providers := opts.Providers
	if len(providers) == 0 {
		providers = []string{"default"}
	}

	acquired := make([]string, 0, len(providers))
	for _, p := range providers {
		if err := r.Limiter.Acquire(ctx, p, acquireTimeout); err != nil {
			for _, a := range acquired {
				r.Limiter.Release(a)
			}
			return AcademicSearchResult{}, fmt.Errorf("collaborators: academic rate limit: %w", err)
		}
		acquired = append(acquired, p)
	}
	defer func() {
		for _, p := range acquired {
			r.Limiter.Release(p)
		}
	}()

	result, err := r.Inner.Search(ctx, query, opts)
	reportOutcome(r.Limiter, providers, err)
	return result, err
}

func (r *RateLimitedAcademic) Citations(ctx context.Context, identifier string, depth int, direction string) ([]models.CanonicalPaperEntry, error) {
	return r.Inner.Citations(ctx, identifier, depth, direction)
}

func reportOutcome(limiter *ratelimit.AcademicAPIRateLimiter, providers []string, err error) {
	isTooManyRequests := err != nil && strings.Contains(err.Error(), "429")
	for _, p := range providers {
		if isTooManyRequests {
			limiter.ReportTooManyRequests(p)
		} else if err == nil {
			limiter.ReportSuccess(p)
		}
	}
}

// RateLimitedSERP wraps a SERP collaborator with EngineRateLimiter's
// per-engine min-interval/concurrency gating (spec.md §4.6 "isolated by
// engine name" — a slowdown on one engine never throttles the others).
type RateLimitedSERP struct {
	Inner   SERP
	Limiter *browser.EngineRateLimiter
}

// NewRateLimitedSERP wraps inner with limiter.
func NewRateLimitedSERP(inner SERP, limiter *browser.EngineRateLimiter) *RateLimitedSERP {
	return &RateLimitedSERP{Inner: inner, Limiter: limiter}
}

func (r *RateLimitedSERP) Search(ctx context.Context, query string, limit int, engines []string, taskID string, serpMaxPages int, workerID string) ([]models.SerpResult, error) {
	used := engines
	if len(used) == 0 {
		used = []string{"default"}
	}

	acquired := make([]string, 0, len(used))
	for _, engine := range used {
		if err := r.Limiter.Acquire(ctx, engine, acquireTimeout); err != nil {
			for _, a := range acquired {
				r.Limiter.Release(a)
			}
			return nil, fmt.Errorf("collaborators: serp rate limit: %w", err)
		}
		acquired = append(acquired, engine)
	}
	defer func() {
		for _, engine := range acquired {
			r.Limiter.Release(engine)
		}
	}()

	return r.Inner.Search(ctx, query, limit, engines, taskID, serpMaxPages, workerID)
}

// PooledFetch wraps a Fetch collaborator with a per-worker TabPool
// (spec.md §4.6 "Worker isolation"). Acquiring a tab bounds how many
// concurrent fetches a single worker may have in flight; CAPTCHA/403
// signals surfaced by the inner fetch step-decrease that worker's
// effective tab ceiling.
type PooledFetch struct {
	Inner    Fetch
	Registry *browser.Registry
}

// NewPooledFetch wraps inner with registry.
func NewPooledFetch(inner Fetch, registry *browser.Registry) *PooledFetch {
	return &PooledFetch{Inner: inner, Registry: registry}
}

func (f *PooledFetch) FetchURL(ctx context.Context, url, browserCtx, taskID string) (FetchResult, error) {
	workerID := workerIDFromContext(browserCtx)
	pool, err := f.Registry.TabPoolFor(workerID)
	if err != nil {
		return FetchResult{}, fmt.Errorf("collaborators: resolving tab pool: %w", err)
	}

	page, err := pool.Acquire(ctx, acquireTimeout)
	if err != nil {
		return FetchResult{}, fmt.Errorf("collaborators: acquiring tab: %w", err)
	}
	defer pool.Release(page)

	result, err := f.Inner.FetchURL(ctx, url, browserCtx, taskID)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "captcha"):
			pool.ReportCaptcha()
		case strings.Contains(err.Error(), "403"):
			pool.ReportForbidden()
		}
	}
	return result, err
}

// workerIDFromContext recovers the int worker id TabPoolFor expects from
// the string context handle ExecuteSearch threads through (spec.md §4.6
// "base_port + worker_id" keying); non-numeric or empty contexts all
// share worker 0's pool.
func workerIDFromContext(browserCtx string) int {
	if browserCtx == "" {
		return 0
	}
	n, err := strconv.Atoi(browserCtx)
	if err != nil {
		return 0
	}
	return n
}

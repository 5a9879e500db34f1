package collaborators

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/models"
	"github.com/openclaim/excore/pkg/ratelimit"
)

type fakeAcademic struct {
	calls int
	err   error
}

func (f *fakeAcademic) Search(ctx context.Context, query string, opts AcademicSearchOptions) (AcademicSearchResult, error) {
	f.calls++
	return AcademicSearchResult{OK: f.err == nil}, f.err
}

func (f *fakeAcademic) Citations(ctx context.Context, identifier string, depth int, direction string) ([]models.CanonicalPaperEntry, error) {
	return nil, nil
}

func TestRateLimitedAcademicAcquiresAndReleasesPerProvider(t *testing.T) {
	limiter := ratelimit.NewAcademicAPIRateLimiter(
		map[string]config.AcademicProviderConfig{"arxiv": {MaxParallel: 1}},
		config.AcademicBackoffConfig{RecoveryStableSeconds: 1, DecreaseStep: 1},
	)
	inner := &fakeAcademic{}
	r := NewRateLimitedAcademic(inner, limiter)

	_, err := r.Search(context.Background(), "q", AcademicSearchOptions{Providers: []string{"arxiv"}})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	// slot must have been released after Search returns
	require.NoError(t, limiter.Acquire(context.Background(), "arxiv", 0))
	limiter.Release("arxiv")
}

func TestRateLimitedAcademicReportsTooManyRequests(t *testing.T) {
	limiter := ratelimit.NewAcademicAPIRateLimiter(
		map[string]config.AcademicProviderConfig{"arxiv": {MaxParallel: 3}},
		config.AcademicBackoffConfig{RecoveryStableSeconds: 60, DecreaseStep: 1},
	)
	inner := &fakeAcademic{err: fmt.Errorf("collaborators: academic service returned 429")}
	r := NewRateLimitedAcademic(inner, limiter)

	_, err := r.Search(context.Background(), "q", AcademicSearchOptions{Providers: []string{"arxiv"}})
	assert.Error(t, err)
}

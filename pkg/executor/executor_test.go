package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaim/excore/pkg/collaborators"
	"github.com/openclaim/excore/pkg/config"
)

func newTestExecutor() *Executor {
	cfg := config.SearchConfig{
		AcademicKeywords: []string{"study", "research"},
		DocumentKeywords: []string{"report", "guideline"},
	}
	return New(collaborators.Collaborators{}, nil, cfg, config.WebCitationDetectionConfig{})
}

func TestExpandQueryAddsAcademicAndFiletypeVariants(t *testing.T) {
	e := newTestExecutor()
	variants := e.ExpandQuery("climate research report")

	assert.Equal(t, "climate research report", variants[0])
	assert.Len(t, variants, 3, "should append both the academic site: and filetype:pdf variants")
	assert.Contains(t, variants[1], "site:arxiv.org")
	assert.Contains(t, variants[2], "filetype:pdf")
}

func TestExpandQuerySkipsVariantsWhenOperatorsAlreadyPresent(t *testing.T) {
	e := newTestExecutor()
	variants := e.ExpandQuery("climate research site:example.com filetype:pdf")
	assert.Len(t, variants, 1, "existing site:/filetype: operators suppress further expansion")
}

func TestIsPrimarySourceMatchesFixedSuffixSet(t *testing.T) {
	assert.True(t, IsPrimarySource("www.who.int"))
	assert.True(t, IsPrimarySource("arxiv.org"))
	assert.True(t, IsPrimarySource("stanford.edu"))
	assert.False(t, IsPrimarySource("medium.com"))
}

func TestMarkSeenReportsNoveltyOncePerHash(t *testing.T) {
	e := newTestExecutor()
	assert.True(t, e.markSeen("search-1", "abc123"))
	assert.False(t, e.markSeen("search-1", "abc123"), "same hash seen twice in one search is not novel")
	assert.True(t, e.markSeen("search-2", "abc123"), "seen-set is per search id")
}

func TestShouldRunWebCitationDetectionGatePrecedence(t *testing.T) {
	base := config.WebCitationDetectionConfig{Enabled: true, RunOnPrimarySourcesOnly: true, RequireUsefulText: true}

	assert.False(t, ShouldRunWebCitationDetection(config.WebCitationDetectionConfig{Enabled: false}, 0, true, true), "disabled always wins")

	budgeted := base
	budgeted.BudgetPagesPerTask = 5
	assert.False(t, ShouldRunWebCitationDetection(budgeted, 5, true, true), "budget exhausted")
	assert.True(t, ShouldRunWebCitationDetection(budgeted, 4, true, true))

	assert.False(t, ShouldRunWebCitationDetection(base, 0, false, true), "primary-only violation")
	assert.False(t, ShouldRunWebCitationDetection(base, 0, true, false), "usefulness violation")
	assert.True(t, ShouldRunWebCitationDetection(base, 0, true, true))
}

func TestCitationDetectorMaxCandidatesDefaultsWhenUnbudgeted(t *testing.T) {
	assert.Equal(t, 10000, CitationDetectorMaxCandidates(config.WebCitationDetectionConfig{BudgetPagesPerTask: 0}))
	assert.Equal(t, 42, CitationDetectorMaxCandidates(config.WebCitationDetectionConfig{BudgetPagesPerTask: 42}))
}

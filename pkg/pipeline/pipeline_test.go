package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaim/excore/pkg/models"
)

func TestIsAcademicQueryMatchesKeywordsDOIAndAcademicSite(t *testing.T) {
	keywords := []string{"systematic review", "meta-analysis"}

	assert.True(t, isAcademicQuery("systematic review of vitamin D trials", keywords))
	assert.True(t, isAcademicQuery("see 10.1038/s41586-020-1234-5", keywords))
	assert.True(t, isAcademicQuery("site:arxiv.org transformer attention", keywords))
	assert.False(t, isAcademicQuery("best pizza in chicago", keywords))
}

func TestExtractIdentifiersResolvesArxivAndPMID(t *testing.T) {
	_, arxiv, _ := extractIdentifiers("https://arxiv.org/abs/2001.00001")
	assert.Equal(t, "2001.00001", arxiv)

	_, _, pmid := extractIdentifiers("https://pubmed.ncbi.nlm.nih.gov/12345678/")
	assert.Equal(t, "12345678", pmid)

	doi, _, _ := extractIdentifiers("https://doi.org/10.1000/xyz123")
	assert.Equal(t, "10.1000/xyz123", doi)
}

func TestDomainOfURLStripsSchemeAndPath(t *testing.T) {
	assert.Equal(t, "example.org", domainOfURL("https://example.org/a/b?c=1"))
	assert.Equal(t, "example.org", domainOfURL("http://EXAMPLE.org"))
}

func TestEffectiveBudgetPrefersTighterOfRequestedAndDynamic(t *testing.T) {
	assert.Equal(t, 3, effectiveBudget(3, 10))
	assert.Equal(t, 10, effectiveBudget(0, 10))
	assert.Equal(t, 10, effectiveBudget(50, 10))
}

func TestSerpMaxPagesFallsBackThroughOptions(t *testing.T) {
	assert.Equal(t, 4, serpMaxPages(Options{SERPMaxPages: 4, MaxPages: 9}))
	assert.Equal(t, 9, serpMaxPages(Options{MaxPages: 9}))
	assert.Equal(t, 10, serpMaxPages(Options{}))
}

func TestActionStatusFromSearchMapsPersistedLifecycleOntoResponseEnum(t *testing.T) {
	assert.Equal(t, models.ActionSatisfied, actionStatusFromSearch(models.SearchSatisfied))
	assert.Equal(t, models.ActionPartial, actionStatusFromSearch(models.SearchPartial))
	assert.Equal(t, models.ActionExhausted, actionStatusFromSearch(models.SearchExhausted))
	assert.Equal(t, models.ActionExhausted, actionStatusFromSearch(models.SearchSkipped))
	assert.Equal(t, models.ActionRunning, actionStatusFromSearch(models.SearchRunning))
	assert.Equal(t, models.ActionRunning, actionStatusFromSearch(models.SearchPending))
}

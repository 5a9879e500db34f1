package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaim/excore/pkg/models"
)

func TestCanonicalPaperIndexDedupLawHolds(t *testing.T) {
	idx := NewCanonicalPaperIndex()
	idx.AddFromAcademic(models.CanonicalPaperEntry{Paper: &models.PaperMetadata{DOI: "10.1000/xyz", Abstract: "a"}})
	idx.AddFromSERP(models.SerpResult{URL: "https://example.org/paper"}, "", "")
	idx.AddFromSERP(models.SerpResult{URL: "https://arxiv.org/abs/1234.5678", Title: "dup"}, "10.1000/xyz", "")

	total, apiOnly, serpOnly, both := idx.Counts()
	assert.Equal(t, total, apiOnly+serpOnly+both, "dedup law: total must equal the sum of the three buckets")
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, both, "the SERP hit sharing the DOI should merge into the academic entry")
	assert.Equal(t, 1, serpOnly)
	assert.Equal(t, 0, apiOnly)
}

func TestCanonicalPaperIndexFallsBackFromDOIToArxivToURL(t *testing.T) {
	idx := NewCanonicalPaperIndex()
	idx.AddFromSERP(models.SerpResult{URL: "https://arxiv.org/abs/2001.00001"}, "", "2001.00001")
	idx.AddFromSERP(models.SerpResult{URL: "https://arxiv.org/abs/2001.00001"}, "", "2001.00001")
	idx.AddFromSERP(models.SerpResult{URL: "https://example.org/no-ids"}, "", "")

	total, _, _, _ := idx.Counts()
	assert.Equal(t, 2, total, "repeated arxiv id must collapse to one entry; bare URL keeps its own")
}

func TestCanonicalPaperIndexNormalizesIdentifierCase(t *testing.T) {
	idx := NewCanonicalPaperIndex()
	idx.AddFromAcademic(models.CanonicalPaperEntry{Paper: &models.PaperMetadata{DOI: "10.1000/XYZ  ", Abstract: "a"}})
	idx.AddFromSERP(models.SerpResult{URL: "https://example.org/x"}, "10.1000/xyz", "")

	total, _, _, both := idx.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, both)
}

func TestAddFromAcademicMarksNeedsFetchOnlyWithoutAbstract(t *testing.T) {
	idx := NewCanonicalPaperIndex()
	idx.AddFromAcademic(models.CanonicalPaperEntry{Paper: &models.PaperMetadata{DOI: "10.1/a", Abstract: "has one"}})
	idx.AddFromAcademic(models.CanonicalPaperEntry{Paper: &models.PaperMetadata{DOI: "10.1/b"}})

	entries := idx.Entries()
	assert.Len(t, entries, 2)
	for _, e := range entries {
		if e.Paper.DOI == "10.1/a" {
			assert.False(t, e.NeedsFetch)
		} else {
			assert.True(t, e.NeedsFetch)
		}
	}
}

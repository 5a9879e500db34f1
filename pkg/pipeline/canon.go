package pipeline

import (
	"strings"

	"github.com/openclaim/excore/pkg/models"
)

// CanonicalPaperIndex deduplicates academic results across SERP and
// academic-API sources within one pipeline execution (spec.md §4.3,
// §5 "lives within one pipeline execution and is not shared... no lock
// needed"). Keyed by resolved DOI, falling back to arxiv id, then raw URL.
type CanonicalPaperIndex struct {
	byIdentifier map[string]*models.CanonicalPaperEntry
	order        []string
}

// NewCanonicalPaperIndex builds an empty index.
func NewCanonicalPaperIndex() *CanonicalPaperIndex {
	return &CanonicalPaperIndex{byIdentifier: make(map[string]*models.CanonicalPaperEntry)}
}

// normalizeIdentifier implements the dedup-law normalization: case-insensitive,
// punctuation-normalized (spec.md §8 property 3).
func normalizeIdentifier(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.Trim(id, ".,;:/ ")
	return id
}

// identifierFor resolves an entry's canonical key: DOI, else arxiv id,
// else raw URL.
func identifierFor(doi, arxivID, rawURL string) string {
	switch {
	case doi != "":
		return "doi:" + normalizeIdentifier(doi)
	case arxivID != "":
		return "arxiv:" + normalizeIdentifier(arxivID)
	default:
		return "url:" + normalizeIdentifier(rawURL)
	}
}

// AddFromAcademic registers an academic-provider result, seeding an
// API-only entry (spec.md §4.3: "register every academic result... keyed
// by resolved DOI").
func (idx *CanonicalPaperIndex) AddFromAcademic(entry models.CanonicalPaperEntry) {
	doi, arxiv := "", ""
	if entry.Paper != nil {
		doi, arxiv = entry.Paper.DOI, entry.Paper.ArxivID
	}
	identifier := identifierFor(doi, arxiv, entry.Identifier)
	entry.Identifier = identifier
	entry.SeenIn = models.SeenAPIOnly
	entry.NeedsFetch = !entry.HasAbstract()
	idx.upsert(identifier, &entry)
}

// AddFromSERP registers a SERP hit, resolving PMID/arxiv identifiers to
// DOI via resolveDOI when possible (spec.md §4.3: "this is what makes
// cross-source dedup actually work"). Merges into an existing academic
// entry when the identifiers coincide, otherwise inserts a SERP-only
// entry needing fetch.
func (idx *CanonicalPaperIndex) AddFromSERP(result models.SerpResult, doi, arxivID string) {
	identifier := identifierFor(doi, arxivID, result.URL)
	if existing, ok := idx.byIdentifier[identifier]; ok {
		existing.SERP = &result
		if existing.SeenIn == models.SeenAPIOnly {
			existing.SeenIn = models.SeenBoth
		}
		return
	}
	entry := &models.CanonicalPaperEntry{
		Identifier: identifier,
		SERP:       &result,
		SeenIn:     models.SeenSERPOnly,
		NeedsFetch: true,
	}
	idx.upsert(identifier, entry)
}

func (idx *CanonicalPaperIndex) upsert(identifier string, entry *models.CanonicalPaperEntry) {
	if _, ok := idx.byIdentifier[identifier]; !ok {
		idx.order = append(idx.order, identifier)
	}
	idx.byIdentifier[identifier] = entry
}

// Entries returns every entry in insertion order (stable iteration for
// top-N citation-graph expansion and fallback-fetch selection).
func (idx *CanonicalPaperIndex) Entries() []*models.CanonicalPaperEntry {
	out := make([]*models.CanonicalPaperEntry, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.byIdentifier[id])
	}
	return out
}

// Counts reports total/api_only/serp_only/both, satisfying the dedup-law
// invariant `total = api_only + serp_only + both` (spec.md §8 property 3).
func (idx *CanonicalPaperIndex) Counts() (total, apiOnly, serpOnly, both int) {
	for _, e := range idx.byIdentifier {
		total++
		switch e.SeenIn {
		case models.SeenAPIOnly:
			apiOnly++
		case models.SeenSERPOnly:
			serpOnly++
		case models.SeenBoth:
			both++
		}
	}
	return
}

// Package collaborators declares the external service boundaries the
// exploration core calls out to (spec.md §6 "Collaborator interfaces").
// None of these are implemented by the core itself in any depth — SERP
// scraping, academic indexing, fetch/extract, NLI, and LLM claim
// extraction are all out of scope (spec.md Non-goals) — but the core
// still needs a stable Go-side contract to program against, and a
// minimal HTTP-backed default for each so the module wires end to end.
package collaborators

import (
	"context"
	"time"

	"github.com/openclaim/excore/pkg/models"
)

// SERP is the browser search-engine-results collaborator.
type SERP interface {
	Search(ctx context.Context, query string, limit int, engines []string, taskID string, serpMaxPages int, workerID string) ([]models.SerpResult, error)
}

// AcademicSearchOptions parameterizes an academic-provider query.
type AcademicSearchOptions struct {
	Providers []string
	MaxPages  int
}

// AcademicSearchResult is the academic provider's response, including a
// handle onto the full canonical entry list it resolved internally.
type AcademicSearchResult struct {
	OK        bool
	Results   []models.CanonicalPaperEntry
	LastIndex AcademicResultIndex
}

// AcademicResultIndex exposes every entry an academic search resolved,
// independent of what was returned in Results (spec.md §6: `get_all_entries`).
type AcademicResultIndex interface {
	GetAllEntries() []models.CanonicalPaperEntry
}

// Academic is the scholarly-API search collaborator (e.g. Semantic
// Scholar, OpenAlex, Crossref — provider-agnostic at this layer).
type Academic interface {
	Search(ctx context.Context, query string, opts AcademicSearchOptions) (AcademicSearchResult, error)
	Citations(ctx context.Context, identifier string, depth int, direction string) ([]models.CanonicalPaperEntry, error)
}

// FetchResult is what a single-URL fetch reports back.
type FetchResult struct {
	OK         bool
	HTMLPath   string
	FinalURL   string
	PageID     string
	AuthQueued bool
	Reason     string
}

// Fetch retrieves one URL's content to local storage, returning a path
// the Extract collaborator can read back.
type Fetch interface {
	FetchURL(ctx context.Context, url string, browserCtx string, taskID string) (FetchResult, error)
}

// ExtractResult is the plain-text extraction of a fetched document.
type ExtractResult struct {
	Text  string
	Title string
}

// Extract turns a fetched document into plain text.
type Extract interface {
	Extract(ctx context.Context, inputPath string, contentType string) (ExtractResult, error)
}

// NLIPair is one premise/hypothesis pair submitted for inference.
type NLIPair struct {
	PairID     string
	Premise    string
	Hypothesis string
}

// NLIResult is one pair's inference outcome. Stance is the raw,
// un-sanitized label the collaborator returned; callers sanitize via
// models.SanitizeNLILabel before persisting.
type NLIResult struct {
	PairID     string
	Stance     string
	Confidence float64
}

// NLI checks claims/passages for entailment, contradiction, or neutrality.
type NLI interface {
	Check(ctx context.Context, pairs []NLIPair) ([]NLIResult, error)
}

// EvidenceGraph is the append-only graph collaborator. Concurrency
// inside it is its own problem (spec.md §5).
type EvidenceGraph interface {
	AddNode(ctx context.Context, nodeType models.NodeType, id string) error
	AddClaimEvidence(ctx context.Context, claimID, fragmentID, taskID string, relation models.EdgeRelation, nliLabel models.NLILabel, nliConfidence, confidence float64) error
	AddCitation(ctx context.Context, fromPageID, toPageID string) error
	AddAcademicPageWithCitations(ctx context.Context, sourcePageID string, citedPageIDs []string) error
	Summary(ctx context.Context, taskID string) (GraphSummary, error)
}

// GraphSummary feeds stop_task's evidence_graph_summary field (spec.md §6).
type GraphSummary struct {
	Nodes              int
	Edges              int
	PrimarySourceRatio float64
}

// LLMClaimExtractorInput bundles a primary page's passages for extraction.
type LLMClaimExtractorInput struct {
	Passages     []string
	TaskID       string
	Context      string
	UseSlowModel bool
}

// ExtractedClaim is one claim the LLM collaborator proposed.
type ExtractedClaim struct {
	Text       string
	Confidence float64
}

// LLMClaimExtractorResult is the extractor's response.
type LLMClaimExtractorResult struct {
	OK     bool
	Claims []ExtractedClaim
}

// LLMClaimExtractor turns primary-source passages into candidate claims.
// Called at most once per qualifying primary page (spec.md §4.4).
type LLMClaimExtractor interface {
	Extract(ctx context.Context, in LLMClaimExtractorInput) (LLMClaimExtractorResult, error)
}

// OAURLResolver resolves an open-access URL for a DOI-identified paper.
type OAURLResolver interface {
	ResolveOAURL(ctx context.Context, doi string) (url string, ok bool)
}

// IDResolver resolves a PMID or arxiv id to a DOI, enabling cross-source
// dedup (spec.md §4.3 complementary search merge procedure).
type IDResolver interface {
	ResolveDOI(ctx context.Context, pmid, arxivID string) (doi string, ok bool)
}

// NotificationChannel is an optional sink for operator-visible warnings
// (backoff floor hit, idle timeout, orphan recovery).
type NotificationChannel interface {
	Notify(ctx context.Context, level, message string)
}

// Collaborators bundles every external dependency the pipeline,
// executor, and refutation executor call out to. A zero-value field is
// valid wherever the corresponding feature path is unreachable (e.g. no
// OAURLResolver configured just skips open-access resolution).
type Collaborators struct {
	SERP              SERP
	Academic          Academic
	Fetch             Fetch
	Extract           Extract
	NLI               NLI
	Graph             EvidenceGraph
	LLMClaimExtractor LLMClaimExtractor
	OAURLResolver     OAURLResolver
	IDResolver        IDResolver
	Notifications     NotificationChannel
}

// httpTimeout is the default per-call timeout used by the bundled
// HTTP-backed default implementations below.
const httpTimeout = 30 * time.Second

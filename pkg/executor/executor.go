// Package executor implements SearchExecutor (spec.md §4.4): mechanical,
// stateless-per-call query expansion, SERP execution, and per-URL
// fetch/extract/persist. It never designs queries or hypothesizes new
// ones — every expansion rule is a fixed, named mechanical transform.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaim/excore/pkg/collaborators"
	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/database"
	"github.com/openclaim/excore/pkg/models"
)

// usefulTextMinLen is the `is_useful = len(text) > 200` threshold
// (spec.md §4.4).
const usefulTextMinLen = 200

// maxClaimExtractionChars truncates primary-page text before handing it
// to the LLM claim extractor (spec.md §4.4).
const maxClaimExtractionChars = 4000

// contentHashPrefixBytes bounds how much extracted text feeds the
// content hash: "first 1 KB" (spec.md §4.4).
const contentHashPrefixBytes = 1024

// Executor runs one query's mechanical search-and-harvest cycle against
// a single Search/ExplorationState pair.
type Executor struct {
	collab  collaborators.Collaborators
	content *database.ContentStore
	graph   *database.EdgeStore
	cfg     config.SearchConfig
	detectionCfg config.WebCitationDetectionConfig

	mu   sync.Mutex
	seen map[string]map[string]bool // per-search-id content-hash seen-set
}

// New constructs an Executor wired to its content store and collaborators.
func New(collab collaborators.Collaborators, content *database.ContentStore, cfg config.SearchConfig, detectionCfg config.WebCitationDetectionConfig) *Executor {
	return &Executor{
		collab:       collab,
		content:      content,
		cfg:          cfg,
		detectionCfg: detectionCfg,
		seen:         make(map[string]map[string]bool),
	}
}

// ExpandQuery returns [original] plus up to two mechanical variants
// (spec.md §4.4 `_expand_query`). Never invents new query text.
func (e *Executor) ExpandQuery(text string) []string {
	queries := []string{text}
	lower := strings.ToLower(text)
	hasSiteOp := strings.Contains(lower, "site:")
	hasFiletypeOp := strings.Contains(lower, "filetype:")

	if !hasSiteOp && containsAny(lower, e.cfg.AcademicKeywords) {
		queries = append(queries, text+" site:arxiv.org OR site:jstage.jst.go.jp")
	}
	if !hasFiletypeOp && containsAny(lower, e.cfg.DocumentKeywords) {
		queries = append(queries, text+" filetype:pdf")
	}
	return queries
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// ExecuteSearch runs one SERP collaborator call for the given expanded
// query (spec.md §4.4 `_execute_search`).
func (e *Executor) ExecuteSearch(ctx context.Context, query string, engines []string, taskID string, serpMaxPages int, workerID string) ([]models.SerpResult, error) {
	if e.collab.SERP == nil {
		return nil, fmt.Errorf("executor: no SERP collaborator configured")
	}
	return e.collab.SERP.Search(ctx, query, serpMaxPages, engines, taskID, serpMaxPages, workerID)
}

// primarySourceSuffixes is the fixed domain-suffix set spec.md §4.4 and
// pkg/config/defaults.go define: government, academic, standards, repositories.
func primarySourceSuffixes() []string {
	return config.PrimarySourceDomainSuffixes()
}

// IsPrimarySource matches a domain against the fixed primary-source suffix set.
func IsPrimarySource(domain string) bool {
	for _, suffix := range primarySourceSuffixes() {
		if strings.HasSuffix(domain, suffix) {
			return true
		}
	}
	return false
}

// FetchOutcome is what FetchAndExtract reports back to the pipeline, for
// driving ExplorationState bookkeeping and optional claim extraction.
type FetchOutcome struct {
	PageID       string
	FragmentID   string
	Domain       string
	IsPrimary    bool
	IsUseful     bool
	IsNovel      bool
	Text         string
	AuthQueued   bool
	Skipped      bool // no page was harvested (fetch or extract failed, or the page was auth-queued); caller should skip
}

// FetchAndExtract fetches and extracts one URL, persists its page and
// fragment rows, and reports the novelty/usefulness signals
// ExplorationState.RecordPageFetch/RecordFragment need (spec.md §4.4
// `_fetch_and_extract`).
func (e *Executor) FetchAndExtract(ctx context.Context, searchID, taskID string, item models.SerpResult) (FetchOutcome, error) {
	domain := domainOf(item.URL)
	isPrimary := IsPrimarySource(domain)

	if e.collab.Fetch == nil {
		return FetchOutcome{Skipped: true}, nil
	}
	fetchRes, err := e.collab.Fetch.FetchURL(ctx, item.URL, searchID, taskID)
	if err != nil || !fetchRes.OK {
		if fetchRes.AuthQueued {
			return FetchOutcome{Domain: domain, IsPrimary: isPrimary, AuthQueued: true, Skipped: true}, nil
		}
		// Transient external failure: log-and-skip per spec.md §7, not an error.
		return FetchOutcome{Skipped: true}, nil
	}

	if e.collab.Extract == nil {
		return FetchOutcome{Skipped: true}, nil
	}
	extracted, err := e.collab.Extract.Extract(ctx, fetchRes.HTMLPath, "")
	if err != nil {
		return FetchOutcome{Skipped: true}, nil
	}

	pageID, err := e.content.UpsertPage(ctx, uuid.NewString(), models.Page{
		URL:         item.URL,
		Domain:      domain,
		Type:        models.PageHTML,
		FetchMethod: models.FetchMethodBrowser,
		Title:       coalesce(extracted.Title, item.Title),
		FetchedAt:   time.Now(),
	})
	if err != nil {
		return FetchOutcome{}, fmt.Errorf("executor: persisting page: %w", err)
	}

	hash := contentHash(extracted.Text)
	isUseful := len(extracted.Text) > usefulTextMinLen
	isNovel := e.markSeen(searchID, hash)

	fragmentID := uuid.NewString()
	if err := e.content.InsertFragment(ctx, models.Fragment{
		ID:          fragmentID,
		PageID:      pageID,
		Type:        "body",
		Text:        extracted.Text,
		Heading:     extracted.Title,
		CreatedAt:   time.Now(),
		ContentHash: hash,
	}); err != nil {
		return FetchOutcome{}, fmt.Errorf("executor: persisting fragment: %w", err)
	}

	return FetchOutcome{
		PageID:     pageID,
		FragmentID: fragmentID,
		Domain:     domain,
		IsPrimary:  isPrimary,
		IsUseful:   isUseful,
		IsNovel:    isNovel,
		Text:       extracted.Text,
	}, nil
}

// markSeen records a content hash in the per-search seen-set, returning
// whether it was novel (spec.md §4.4 "hash not in per-executor-seen-set").
func (e *Executor) markSeen(searchID, hash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.seen[searchID]
	if !ok {
		set = make(map[string]bool)
		e.seen[searchID] = set
	}
	if set[hash] {
		return false
	}
	set[hash] = true
	return true
}

func contentHash(text string) string {
	prefix := text
	if len(prefix) > contentHashPrefixBytes {
		prefix = prefix[:contentHashPrefixBytes]
	}
	sum := sha256.Sum256([]byte(prefix))
	return hex.EncodeToString(sum[:])[:16]
}

func domainOf(rawURL string) string {
	u := strings.TrimPrefix(rawURL, "https://")
	u = strings.TrimPrefix(u, "http://")
	if idx := strings.IndexAny(u, "/?#"); idx >= 0 {
		u = u[:idx]
	}
	return strings.ToLower(u)
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// PersistClaim writes a claim and its evidence edge, invoking NLI with a
// premise of the source fragment's text (falling back to the claim text)
// and the claim text as hypothesis. NLI exceptions never skip edge
// persistence (spec.md §4.4, §7 "Edge-persistence path").
func (e *Executor) PersistClaim(ctx context.Context, taskID, fragmentID, sourceURL, claimText string, confidence float64) error {
	claimID := uuid.NewString()
	if err := e.content.InsertClaim(ctx, models.Claim{
		ID:         claimID,
		TaskID:     taskID,
		Text:       claimText,
		Confidence: confidence,
		SourceURL:  sourceURL,
		CreatedAt:  time.Now(),
	}); err != nil {
		return fmt.Errorf("executor: persisting claim: %w", err)
	}

	premise, _ := e.content.FragmentText(ctx, fragmentID)
	if premise == "" {
		premise = claimText
	}

	nliLabel := models.NLINeutral
	nliConfidence := 0.0
	if e.collab.NLI != nil {
		results, err := e.collab.NLI.Check(ctx, []collaborators.NLIPair{
			{PairID: claimID, Premise: premise, Hypothesis: claimText},
		})
		if err == nil && len(results) > 0 {
			nliLabel = models.SanitizeNLILabel(results[0].Stance)
			nliConfidence = results[0].Confidence
		}
	}

	relation := models.RelationNeutral
	switch nliLabel {
	case models.NLISupports:
		relation = models.RelationSupports
	case models.NLIRefutes:
		relation = models.RelationRefutes
	}

	if e.collab.Graph == nil {
		return nil
	}
	if err := e.collab.Graph.AddClaimEvidence(ctx, claimID, fragmentID, taskID, relation, nliLabel, nliConfidence, nliConfidence); err != nil {
		return fmt.Errorf("executor: persisting claim evidence edge: %w", err)
	}
	return nil
}

// ExtractClaims invokes the LLM claim extractor at most once per
// qualifying primary page, truncating input to maxClaimExtractionChars
// (spec.md §4.4).
func (e *Executor) ExtractClaims(ctx context.Context, taskID, text string) ([]collaborators.ExtractedClaim, error) {
	if e.collab.LLMClaimExtractor == nil {
		return nil, nil
	}
	if len(text) > maxClaimExtractionChars {
		text = text[:maxClaimExtractionChars]
	}
	res, err := e.collab.LLMClaimExtractor.Extract(ctx, collaborators.LLMClaimExtractorInput{
		Passages: []string{text},
		TaskID:   taskID,
	})
	if err != nil || !res.OK {
		return nil, err
	}
	return res.Claims, nil
}

// ShouldRunWebCitationDetection implements the gate precedence spec.md
// §4.4 names exactly: disabled -> false; budget exhausted -> false;
// primary-only violation -> false; usefulness violation -> false; else true.
func ShouldRunWebCitationDetection(cfg config.WebCitationDetectionConfig, pagesProcessedForTask int, isPrimary, isUseful bool) bool {
	if !cfg.Enabled {
		return false
	}
	if cfg.BudgetPagesPerTask > 0 && pagesProcessedForTask >= cfg.BudgetPagesPerTask {
		return false
	}
	if cfg.RunOnPrimarySourcesOnly && !isPrimary {
		return false
	}
	if cfg.RequireUsefulText && !isUseful {
		return false
	}
	return true
}

// CitationDetectorMaxCandidates resolves the `max_candidates` construction
// parameter: 10,000 when the budget config is unlimited (0), else the
// configured budget (spec.md §4.4).
func CitationDetectorMaxCandidates(cfg config.WebCitationDetectionConfig) int {
	if cfg.BudgetPagesPerTask == 0 {
		return 10000
	}
	return cfg.BudgetPagesPerTask
}

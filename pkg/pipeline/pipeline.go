// Package pipeline implements SearchPipeline (spec.md §4.3): the unified
// search core that fuses browser SERPs and academic APIs into one
// timeout-bounded pass per query.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openclaim/excore/pkg/collaborators"
	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/database"
	"github.com/openclaim/excore/pkg/executor"
	"github.com/openclaim/excore/pkg/models"
	"github.com/openclaim/excore/pkg/refutation"
	"github.com/openclaim/excore/pkg/state"
)

// doiPattern matches a bare DOI anywhere in a query (spec.md §4.3).
var doiPattern = regexp.MustCompile(`10\.\d{4,}/`)

// Options mirrors the `search` action's options bag (spec.md §6).
type Options struct {
	SERPEngines  []string
	AcademicAPIs []string
	MaxPages     int
	SeekPrimary  bool
	Refute       bool
	SERPMaxPages int

	// WorkerID identifies the target-queue worker running this search,
	// for per-worker browser tab pool isolation (spec.md §4.5, §4.6).
	// Falls back to the search id when unset (direct, non-queued calls).
	WorkerID string
}

func (o Options) workerID(fallback string) string {
	if o.WorkerID != "" {
		return o.WorkerID
	}
	return fallback
}

// Result is the SearchPipelineResult the `search` action reports
// core-relevant fields from (spec.md §6).
type Result struct {
	OK                bool
	SearchID          string
	Query             string
	Status            models.ActionStatus
	PagesFetched      int
	UsefulFragments   int
	HarvestRate       float64
	SatisfactionScore float64
	NoveltyScore      float64
	RefutationsFound  int
	IsPartial         bool
	IsTimeout         bool
	Errors            []string
}

// Pipeline is the unified search core: one execute() call per query.
type Pipeline struct {
	exec       *executor.Executor
	content    *database.ContentStore
	collab     collaborators.Collaborators
	cfg        config.SearchConfig
	limits     config.TaskLimitsConfig
	refutation *refutation.Executor
}

// New constructs a Pipeline. refuter runs the refutation-mode branch
// (spec.md §4.7 RefutationExecutor) rather than duplicating its reverse-
// query/NLI logic inline.
func New(exec *executor.Executor, content *database.ContentStore, collab collaborators.Collaborators, cfg config.SearchConfig, limits config.TaskLimitsConfig, refuter *refutation.Executor) *Pipeline {
	return &Pipeline{exec: exec, content: content, collab: collab, cfg: cfg, limits: limits, refutation: refuter}
}

// Execute runs execute(query, options) (spec.md §4.3 "Execution contract").
// Never raises: every failure mode becomes a Result field.
func (p *Pipeline) Execute(ctx context.Context, st *state.State, taskID, searchID, query string, opts Options) Result {
	st.RegisterSearch(searchID, query, models.PriorityMedium, opts.MaxPages)
	_ = st.StartSearch(searchID)
	st.RecordActivity()

	timeout := time.Duration(p.limits.PipelineTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	type outcome struct {
		result Result
	}
	done := make(chan outcome, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		done <- outcome{result: p.executeImpl(runCtx, st, taskID, searchID, query, opts)}
	}()

	select {
	case o := <-done:
		return o.result
	case <-time.After(timeout):
		cancel()
		result := Result{
			OK:        true,
			SearchID:  searchID,
			Query:     query,
			Status:    models.ActionTimeout,
			IsPartial: true,
			IsTimeout: true,
			Errors:    []string{"Pipeline timeout"},
		}
		if search, ok := st.Search(searchID); ok {
			result.PagesFetched = search.PagesFetched
			result.UsefulFragments = search.UsefulFragments
			result.HarvestRate = search.HarvestRate
			result.SatisfactionScore = search.SatisfactionScore
			result.NoveltyScore = search.NoveltyScore
		}
		return result
	}
}

func (p *Pipeline) executeImpl(ctx context.Context, st *state.State, taskID, searchID, query string, opts Options) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{OK: false, SearchID: searchID, Query: query, Status: models.ActionFailed,
				Errors: []string{fmt.Sprintf("unhandled exception: %v", r)}}
		}
	}()

	if opts.Refute {
		return p.executeRefutationMode(ctx, st, taskID, searchID, query)
	}

	if isAcademicQuery(query, p.cfg.AcademicKeywords) {
		return p.executeComplementary(ctx, st, taskID, searchID, query, opts)
	}
	return p.executeBrowserOnly(ctx, st, taskID, searchID, query, opts)
}

// isAcademicQuery classifies a query as academic iff it contains
// academic keywords, a site: operator pointing at an academic host, or
// matches the DOI regex (spec.md §4.3).
func isAcademicQuery(query string, academicKeywords []string) bool {
	lower := strings.ToLower(query)
	if doiPattern.MatchString(query) {
		return true
	}
	for _, kw := range academicKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	academicHosts := []string{"arxiv.org", "jstage.jst.go.jp", "pubmed.ncbi.nlm.nih.gov", "ncbi.nlm.nih.gov"}
	for _, host := range academicHosts {
		if strings.Contains(lower, "site:"+host) {
			return true
		}
	}
	return false
}

// executeBrowserOnly delegates to SearchExecutor for every expanded
// query variant, deduplicating by URL (spec.md §4.3 "Browser-only search").
func (p *Pipeline) executeBrowserOnly(ctx context.Context, st *state.State, taskID, searchID, query string, opts Options) Result {
	budget := effectiveBudget(opts.MaxPages, st.GetDynamicBudget(searchID))
	pagesThisRun, seenURLs := 0, make(map[string]bool)
	var errs []string

	for _, expanded := range p.exec.ExpandQuery(query) {
		if pagesThisRun >= budget {
			break
		}
		results, err := p.exec.ExecuteSearch(ctx, expanded, opts.SERPEngines, taskID, serpMaxPages(opts), opts.workerID(searchID))
		if err != nil {
			errs = append(errs, err.Error())
			continue // external-service failure: degrade, not fail (spec.md §4.3/§7)
		}
		for _, item := range results {
			if pagesThisRun >= budget || seenURLs[item.URL] {
				continue
			}
			seenURLs[item.URL] = true
			p.harvestOne(ctx, st, taskID, searchID, item)
			pagesThisRun++
		}
	}

	return p.buildResult(st, searchID, query, errs)
}

// IngestURL fetches and extracts exactly one URL, skipping SERP search
// entirely — the `url`-kind target queue job (spec.md §4.5).
func (p *Pipeline) IngestURL(ctx context.Context, st *state.State, taskID, searchID, url string) Result {
	st.RegisterSearch(searchID, url, models.PriorityMedium, 1)
	_ = st.StartSearch(searchID)
	p.harvestOne(ctx, st, taskID, searchID, models.SerpResult{URL: url})
	return p.buildResult(st, searchID, url, nil)
}

// IngestDOI resolves and persists a single DOI through the academic
// provider path — the `doi`-kind target queue job (spec.md §4.5). A DOI
// always classifies as an academic query, so this reuses the
// complementary-search merge procedure with the DOI as the query text.
func (p *Pipeline) IngestDOI(ctx context.Context, st *state.State, taskID, searchID, doi string) Result {
	st.RegisterSearch(searchID, doi, models.PriorityMedium, 1)
	_ = st.StartSearch(searchID)
	return p.executeComplementary(ctx, st, taskID, searchID, doi, Options{MaxPages: 1})
}

// executeComplementary runs browser SERP and the academic provider in
// parallel and merges them through a CanonicalPaperIndex (spec.md §4.3
// "Complementary search").
func (p *Pipeline) executeComplementary(ctx context.Context, st *state.State, taskID, searchID, query string, opts Options) Result {
	index := NewCanonicalPaperIndex()
	var serpResults []models.SerpResult
	var academicResult collaborators.AcademicSearchResult
	var errs []string

	var serpErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		serpResults, serpErr = p.exec.ExecuteSearch(gctx, query, opts.SERPEngines, taskID, serpMaxPages(opts), opts.workerID(searchID))
		return nil // per spec.md §4.3: failures of either source produce warnings, not errors
	})
	g.Go(func() error {
		if p.collab.Academic == nil {
			return nil
		}
		var err error
		academicResult, err = p.collab.Academic.Search(gctx, query, collaborators.AcademicSearchOptions{Providers: opts.AcademicAPIs, MaxPages: serpMaxPages(opts)})
		if err != nil {
			errs = append(errs, "academic search: "+err.Error())
		}
		return nil
	})
	_ = g.Wait()
	if serpErr != nil {
		errs = append(errs, "serp search: "+serpErr.Error())
	}

	for _, entry := range academicResult.Results {
		index.AddFromAcademic(entry)
	}
	for _, sr := range serpResults {
		doi, arxivID, pmid := extractIdentifiers(sr.URL)
		if doi == "" && p.collab.IDResolver != nil && (pmid != "" || arxivID != "") {
			if resolved, ok := p.collab.IDResolver.ResolveDOI(ctx, pmid, arxivID); ok {
				doi = resolved
			}
		}
		index.AddFromSERP(sr, doi, arxivID)
	}

	budget := effectiveBudget(opts.MaxPages, st.GetDynamicBudget(searchID))
	pagesThisRun := 0
	persistedPages := make(map[string]string) // identifier -> pageID, for citation wiring

	topN := p.cfg.CitationGraphTopNPapers
	if topN <= 0 {
		topN = 5
	}
	persistedWithAbstract := 0

	for _, entry := range index.Entries() {
		if pagesThisRun >= budget {
			break
		}
		if !entry.HasAbstract() {
			continue
		}
		p.resolveOpenAccess(ctx, entry)
		pageID, err := p.persistAbstractOnly(ctx, entry)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		persistedPages[entry.Identifier] = pageID
		_ = st.RecordPageFetch(searchID, domainFor(entry), true, true)
		pagesThisRun++
		persistedWithAbstract++

		if persistedWithAbstract <= topN {
			p.expandCitations(ctx, st, searchID, entry, pageID, &pagesThisRun, budget, persistedPages)
		}
	}

	// Fallback browser-only branch for entries still needing fetch
	// (spec.md §4.3: "page counts are added to, not assigned over").
	for _, entry := range index.Entries() {
		if pagesThisRun >= budget {
			break
		}
		if !entry.NeedsFetch || entry.SERP == nil {
			continue
		}
		p.harvestOne(ctx, st, taskID, searchID, *entry.SERP)
		pagesThisRun++
	}

	return p.buildResult(st, searchID, query, errs)
}

// resolveOpenAccess attempts OA-URL resolution for a DOI-identified
// paper without one (spec.md §4.3).
func (p *Pipeline) resolveOpenAccess(ctx context.Context, entry *models.CanonicalPaperEntry) {
	if p.collab.OAURLResolver == nil || entry.Paper == nil || entry.Paper.DOI == "" || entry.Paper.OAURL != "" {
		return
	}
	if url, ok := p.collab.OAURLResolver.ResolveOAURL(ctx, entry.Paper.DOI); ok {
		entry.Paper.OAURL = url
		entry.Paper.OpenAccess = true
	}
}

// persistAbstractOnly persists an academic paper's abstract directly as
// a fragment, skipping web fetch entirely (spec.md §4.3 "abstract-only
// optimization").
func (p *Pipeline) persistAbstractOnly(ctx context.Context, entry *models.CanonicalPaperEntry) (string, error) {
	url := entry.Paper.OAURL
	if url == "" && entry.SERP != nil {
		url = entry.SERP.URL
	}
	if url == "" {
		url = "doi:" + entry.Paper.DOI
	}

	pageID, err := p.content.UpsertPage(ctx, uuid.NewString(), models.Page{
		URL:           url,
		Domain:        domainFor(entry),
		Type:          models.PageAcademicPaper,
		FetchMethod:   models.FetchMethodAcademicAPI,
		Title:         entry.Paper.Title,
		PaperMetadata: entry.Paper,
		FetchedAt:     time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("pipeline: persisting academic page: %w", err)
	}

	if err := p.content.InsertFragment(ctx, models.Fragment{
		ID:        uuid.NewString(),
		PageID:    pageID,
		Type:      "abstract",
		Text:      entry.Paper.Abstract,
		CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("pipeline: persisting abstract fragment: %w", err)
	}

	if p.collab.Graph != nil {
		_ = p.collab.Graph.AddNode(ctx, models.NodePage, pageID)
	}
	return pageID, nil
}

// expandCitations runs citation-graph expansion for one top-N paper:
// fetch citations at configured depth/direction, apply the (described
// qualitatively in spec.md §4.3) three-stage relevance filter, persist
// retained neighbors the same way, and wire CITES edges.
func (p *Pipeline) expandCitations(ctx context.Context, st *state.State, searchID string, source *models.CanonicalPaperEntry, sourcePageID string, pagesThisRun *int, budget int, persisted map[string]string) {
	if p.collab.Academic == nil || source.Paper == nil {
		return
	}
	identifier := source.Paper.DOI
	if identifier == "" {
		identifier = source.Paper.ArxivID
	}
	if identifier == "" {
		return
	}

	citations, err := p.collab.Academic.Citations(ctx, identifier, p.cfg.CitationGraphDepth, p.cfg.CitationGraphDirection)
	if err != nil {
		return // external-service failure: degrade silently, not a pipeline error
	}

	citedPageIDs := make([]string, 0, len(citations))
	for _, cited := range citations {
		if *pagesThisRun >= budget || !cited.HasAbstract() {
			continue
		}
		pageID, perr := p.persistAbstractOnly(ctx, &cited)
		if perr != nil {
			continue
		}
		persisted[cited.Identifier] = pageID
		citedPageIDs = append(citedPageIDs, pageID)
		_ = st.RecordPageFetch(searchID, domainFor(&cited), true, true)
		*pagesThisRun++
	}

	if len(citedPageIDs) > 0 && p.collab.Graph != nil {
		_ = p.collab.Graph.AddAcademicPageWithCitations(ctx, sourcePageID, citedPageIDs)
	}
}

// harvestOne runs fetch+extract+claim-extraction+state bookkeeping for
// one SERP item, shared by browser-only and fallback-fetch branches.
func (p *Pipeline) harvestOne(ctx context.Context, st *state.State, taskID, searchID string, item models.SerpResult) {
	outcome, err := p.exec.FetchAndExtract(ctx, searchID, taskID, item)
	if err != nil || outcome.Skipped {
		if outcome.AuthQueued {
			st.RecordAuthQueued(item.URL, outcome.Domain, false)
		}
		return
	}

	_ = st.RecordPageFetch(searchID, outcome.Domain, outcome.IsPrimary, true)
	_ = st.RecordFragment(searchID, contentHashPlaceholder(outcome.FragmentID), outcome.IsUseful, outcome.IsNovel)

	if !outcome.IsPrimary {
		return // claim extraction gated on primary sources only (spec.md §4.4)
	}
	claims, err := p.exec.ExtractClaims(ctx, taskID, outcome.Text)
	if err != nil || len(claims) == 0 {
		return
	}
	// At most one extraction call per page; every returned claim from
	// that single call is still persisted.
	for _, c := range claims {
		if err := p.exec.PersistClaim(ctx, taskID, outcome.FragmentID, item.URL, c.Text, c.Confidence); err == nil {
			verified := true
			st.RecordClaim(searchID, &verified, nil)
		}
	}
}

// contentHashPlaceholder supplies the key ExplorationState appends to a
// search's recent-N window. FetchOutcome does not carry the executor's
// content hash, so the fragment id, unique per fetch, stands in for it;
// novelty itself comes from the executor's seen-set via IsNovel.
func contentHashPlaceholder(fragmentID string) string { return fragmentID }

// executeRefutationMode implements spec.md §4.3's refutation branch:
// skips everything else and hands the query text, treated as the claim
// under test, to RefutationExecutor's mechanical reverse-query search
// (spec.md §4.7 `execute_for_search`).
func (p *Pipeline) executeRefutationMode(ctx context.Context, st *state.State, taskID, searchID, query string) Result {
	var errs []string

	_, hits, err := p.refutation.ExecuteForSearch(ctx, st, searchID)
	if err != nil {
		errs = append(errs, err.Error())
	}

	budget := st.GetDynamicBudget(searchID)
	status := models.ActionExhausted
	switch {
	case hits > 0:
		status = models.ActionSatisfied
	case budget > 0:
		status = models.ActionPartial
	}

	result := p.buildResult(st, searchID, query, errs)
	result.Status = status
	result.RefutationsFound = hits
	return result
}

func (p *Pipeline) buildResult(st *state.State, searchID, query string, errs []string) Result {
	search, _ := st.Search(searchID)
	return Result{
		OK:                true,
		SearchID:          searchID,
		Query:             query,
		Status:            actionStatusFromSearch(search.Status),
		PagesFetched:      search.PagesFetched,
		UsefulFragments:   search.UsefulFragments,
		HarvestRate:       search.HarvestRate,
		SatisfactionScore: search.SatisfactionScore,
		NoveltyScore:      search.NoveltyScore,
		Errors:            errs,
	}
}

// actionStatusFromSearch maps a Search row's persisted lifecycle status
// onto the `search` action's own status enum (spec.md §6). `pending` and
// `skipped` never reach the action surface directly; they fold onto the
// nearest equivalent (`running`, `exhausted`) rather than leaking an
// internal-only value into the agent-facing response.
func actionStatusFromSearch(s models.SearchStatus) models.ActionStatus {
	switch s {
	case models.SearchSatisfied:
		return models.ActionSatisfied
	case models.SearchPartial:
		return models.ActionPartial
	case models.SearchExhausted, models.SearchSkipped:
		return models.ActionExhausted
	default:
		return models.ActionRunning
	}
}

func effectiveBudget(requested, dynamic int) int {
	if requested > 0 && requested < dynamic {
		return requested
	}
	return dynamic
}

func serpMaxPages(opts Options) int {
	if opts.SERPMaxPages > 0 {
		return opts.SERPMaxPages
	}
	if opts.MaxPages > 0 {
		return opts.MaxPages
	}
	return 10
}

// domainFor resolves a display domain for an academic entry, preferring
// the paper's OA URL/DOI host over its SERP hit.
func domainFor(entry *models.CanonicalPaperEntry) string {
	if entry.Paper != nil && entry.Paper.DOI != "" {
		return "doi.org"
	}
	if entry.SERP != nil {
		return domainOfURL(entry.SERP.URL)
	}
	return ""
}

func domainOfURL(rawURL string) string {
	u := strings.TrimPrefix(rawURL, "https://")
	u = strings.TrimPrefix(u, "http://")
	if idx := strings.IndexAny(u, "/?#"); idx >= 0 {
		u = u[:idx]
	}
	return strings.ToLower(u)
}

// extractIdentifiers pulls DOI/arxiv/PMID hints out of a URL
// mechanically — no network calls, just pattern matching (spec.md §4.3
// merge procedure: "extracting identifiers").
func extractIdentifiers(rawURL string) (doi, arxivID, pmid string) {
	lower := strings.ToLower(rawURL)
	if m := doiPattern.FindString(rawURL); m != "" {
		doi = strings.TrimSuffix(m, "/")
		if idx := strings.Index(lower, m); idx >= 0 {
			doi = rawURL[idx:]
		}
	}
	if strings.Contains(lower, "arxiv.org/abs/") {
		parts := strings.Split(lower, "arxiv.org/abs/")
		if len(parts) == 2 {
			arxivID = strings.Trim(parts[1], "/")
		}
	}
	if strings.Contains(lower, "pubmed.ncbi.nlm.nih.gov/") {
		parts := strings.Split(lower, "pubmed.ncbi.nlm.nih.gov/")
		if len(parts) == 2 {
			pmid = strings.Trim(parts[1], "/")
		}
	}
	return doi, arxivID, pmid
}

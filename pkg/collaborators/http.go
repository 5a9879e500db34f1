package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openclaim/excore/pkg/models"
)

// HTTPNLI calls a JSON NLI service over HTTP — a stand-in for whatever
// inference backend is deployed; the core only needs the pair-in,
// stance-out contract (spec.md §6).
type HTTPNLI struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPNLI constructs an HTTPNLI with the package default timeout.
func NewHTTPNLI(baseURL string) *HTTPNLI {
	return &HTTPNLI{BaseURL: baseURL, Client: &http.Client{Timeout: httpTimeout}}
}

type nliRequest struct {
	Pairs []NLIPair `json:"pairs"`
}

type nliResponse struct {
	Results []NLIResult `json:"results"`
}

// Check posts the pair batch and decodes the stance/confidence results.
func (c *HTTPNLI) Check(ctx context.Context, pairs []NLIPair) ([]NLIResult, error) {
	body, err := json.Marshal(nliRequest{Pairs: pairs})
	if err != nil {
		return nil, fmt.Errorf("collaborators: encoding NLI request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/nli/check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("collaborators: building NLI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collaborators: calling NLI service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collaborators: NLI service returned %d", resp.StatusCode)
	}

	var out nliResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("collaborators: decoding NLI response: %w", err)
	}
	return out.Results, nil
}

// HTTPSERP calls a JSON SERP aggregation service over HTTP.
type HTTPSERP struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSERP constructs an HTTPSERP with the package default timeout.
func NewHTTPSERP(baseURL string) *HTTPSERP {
	return &HTTPSERP{BaseURL: baseURL, Client: &http.Client{Timeout: httpTimeout}}
}

type serpRequest struct {
	Query        string   `json:"query"`
	Limit        int      `json:"limit"`
	Engines      []string `json:"engines,omitempty"`
	TaskID       string   `json:"task_id"`
	SerpMaxPages int      `json:"serp_max_pages"`
	WorkerID     string   `json:"worker_id"`
}

type serpResponse struct {
	Results []models.SerpResult `json:"results"`
}

// Search posts the query to the SERP service and returns ranked results.
func (c *HTTPSERP) Search(ctx context.Context, query string, limit int, engines []string, taskID string, serpMaxPages int, workerID string) ([]models.SerpResult, error) {
	body, err := json.Marshal(serpRequest{
		Query: query, Limit: limit, Engines: engines,
		TaskID: taskID, SerpMaxPages: serpMaxPages, WorkerID: workerID,
	})
	if err != nil {
		return nil, fmt.Errorf("collaborators: encoding SERP request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/serp/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("collaborators: building SERP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collaborators: calling SERP service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collaborators: SERP service returned %d", resp.StatusCode)
	}

	var out serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("collaborators: decoding SERP response: %w", err)
	}
	return out.Results, nil
}

// HTTPAcademic calls a JSON academic-search aggregation service.
type HTTPAcademic struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPAcademic constructs an HTTPAcademic with the package default timeout.
func NewHTTPAcademic(baseURL string) *HTTPAcademic {
	return &HTTPAcademic{BaseURL: baseURL, Client: &http.Client{Timeout: httpTimeout}}
}

type academicSearchRequest struct {
	Query     string   `json:"query"`
	Providers []string `json:"providers,omitempty"`
	MaxPages  int      `json:"max_pages"`
}

type academicSearchResponse struct {
	OK      bool                         `json:"ok"`
	Results []models.CanonicalPaperEntry `json:"results"`
}

// academicEntryList is the concrete AcademicResultIndex backing an
// HTTPAcademic response — every entry the provider resolved, independent
// of what filtered into Results (spec.md §6 `get_all_entries`).
type academicEntryList []models.CanonicalPaperEntry

func (l academicEntryList) GetAllEntries() []models.CanonicalPaperEntry { return l }

// Search posts the query to the academic service and returns results
// plus a handle onto the full resolved entry list.
func (c *HTTPAcademic) Search(ctx context.Context, query string, opts AcademicSearchOptions) (AcademicSearchResult, error) {
	body, err := json.Marshal(academicSearchRequest{Query: query, Providers: opts.Providers, MaxPages: opts.MaxPages})
	if err != nil {
		return AcademicSearchResult{}, fmt.Errorf("collaborators: encoding academic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/academic/search", bytes.NewReader(body))
	if err != nil {
		return AcademicSearchResult{}, fmt.Errorf("collaborators: building academic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return AcademicSearchResult{}, fmt.Errorf("collaborators: calling academic service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AcademicSearchResult{}, fmt.Errorf("collaborators: academic service returned %d", resp.StatusCode)
	}

	var out academicSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AcademicSearchResult{}, fmt.Errorf("collaborators: decoding academic response: %w", err)
	}
	return AcademicSearchResult{OK: out.OK, Results: out.Results, LastIndex: academicEntryList(out.Results)}, nil
}

type citationsResponse struct {
	Results []models.CanonicalPaperEntry `json:"results"`
}

// Citations fetches a paper's citation graph neighborhood to the given
// depth/direction (spec.md §4.3 citation expansion).
func (c *HTTPAcademic) Citations(ctx context.Context, identifier string, depth int, direction string) ([]models.CanonicalPaperEntry, error) {
	url := fmt.Sprintf("%s/academic/citations?id=%s&depth=%d&direction=%s", c.BaseURL, identifier, depth, direction)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("collaborators: building citations request: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collaborators: calling citations service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collaborators: citations service returned %d", resp.StatusCode)
	}

	var out citationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("collaborators: decoding citations response: %w", err)
	}
	return out.Results, nil
}

// HTTPFetch calls a JSON fetch service that retrieves a URL server-side
// (e.g. behind the browser tab pool) and reports back a local path.
type HTTPFetch struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetch constructs an HTTPFetch with the package default timeout.
func NewHTTPFetch(baseURL string) *HTTPFetch {
	return &HTTPFetch{BaseURL: baseURL, Client: &http.Client{Timeout: httpTimeout}}
}

type fetchRequest struct {
	URL        string `json:"url"`
	BrowserCtx string `json:"browser_ctx"`
	TaskID     string `json:"task_id"`
}

// FetchURL posts the URL to the fetch service and returns its report.
func (c *HTTPFetch) FetchURL(ctx context.Context, url string, browserCtx string, taskID string) (FetchResult, error) {
	body, err := json.Marshal(fetchRequest{URL: url, BrowserCtx: browserCtx, TaskID: taskID})
	if err != nil {
		return FetchResult{}, fmt.Errorf("collaborators: encoding fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/fetch", bytes.NewReader(body))
	if err != nil {
		return FetchResult{}, fmt.Errorf("collaborators: building fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("collaborators: calling fetch service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, fmt.Errorf("collaborators: fetch service returned %d", resp.StatusCode)
	}

	var out FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FetchResult{}, fmt.Errorf("collaborators: decoding fetch response: %w", err)
	}
	return out, nil
}

// HTTPExtract calls a JSON text-extraction service.
type HTTPExtract struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPExtract constructs an HTTPExtract with the package default timeout.
func NewHTTPExtract(baseURL string) *HTTPExtract {
	return &HTTPExtract{BaseURL: baseURL, Client: &http.Client{Timeout: httpTimeout}}
}

type extractRequest struct {
	InputPath   string `json:"input_path"`
	ContentType string `json:"content_type"`
}

// Extract posts the fetched document path and returns its plain text.
func (c *HTTPExtract) Extract(ctx context.Context, inputPath string, contentType string) (ExtractResult, error) {
	body, err := json.Marshal(extractRequest{InputPath: inputPath, ContentType: contentType})
	if err != nil {
		return ExtractResult{}, fmt.Errorf("collaborators: encoding extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return ExtractResult{}, fmt.Errorf("collaborators: building extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("collaborators: calling extract service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ExtractResult{}, fmt.Errorf("collaborators: extract service returned %d", resp.StatusCode)
	}

	var out ExtractResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ExtractResult{}, fmt.Errorf("collaborators: decoding extract response: %w", err)
	}
	return out, nil
}

// HTTPLLMClaimExtractor calls a JSON LLM claim-extraction service.
type HTTPLLMClaimExtractor struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPLLMClaimExtractor constructs one with the package default timeout.
func NewHTTPLLMClaimExtractor(baseURL string) *HTTPLLMClaimExtractor {
	return &HTTPLLMClaimExtractor{BaseURL: baseURL, Client: &http.Client{Timeout: httpTimeout}}
}

// Extract posts primary-source passages and returns candidate claims.
func (c *HTTPLLMClaimExtractor) Extract(ctx context.Context, in LLMClaimExtractorInput) (LLMClaimExtractorResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return LLMClaimExtractorResult{}, fmt.Errorf("collaborators: encoding claim-extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/claims/extract", bytes.NewReader(body))
	if err != nil {
		return LLMClaimExtractorResult{}, fmt.Errorf("collaborators: building claim-extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return LLMClaimExtractorResult{}, fmt.Errorf("collaborators: calling claim-extraction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LLMClaimExtractorResult{}, fmt.Errorf("collaborators: claim-extraction service returned %d", resp.StatusCode)
	}

	var out LLMClaimExtractorResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LLMClaimExtractorResult{}, fmt.Errorf("collaborators: decoding claim-extraction response: %w", err)
	}
	return out, nil
}

// HTTPOAURLResolver resolves open-access URLs via a JSON lookup service
// (e.g. an Unpaywall-style API).
type HTTPOAURLResolver struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPOAURLResolver constructs one with the package default timeout.
func NewHTTPOAURLResolver(baseURL string) *HTTPOAURLResolver {
	return &HTTPOAURLResolver{BaseURL: baseURL, Client: &http.Client{Timeout: httpTimeout}}
}

// ResolveOAURL looks up an open-access URL for doi. ok=false on any
// failure or a miss — this collaborator is strictly best-effort.
func (c *HTTPOAURLResolver) ResolveOAURL(ctx context.Context, doi string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/oa-url?doi="+doi, nil)
	if err != nil {
		return "", false
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var out struct {
		URL string `json:"url"`
		OK  bool   `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false
	}
	return out.URL, out.OK
}

// HTTPIDResolver resolves a PMID or arxiv id to a DOI via a JSON lookup
// service, enabling cross-source dedup in the complementary merge.
type HTTPIDResolver struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPIDResolver constructs one with the package default timeout.
func NewHTTPIDResolver(baseURL string) *HTTPIDResolver {
	return &HTTPIDResolver{BaseURL: baseURL, Client: &http.Client{Timeout: httpTimeout}}
}

// ResolveDOI looks up the DOI for a PMID or arxiv id. ok=false on any
// failure or a miss.
func (c *HTTPIDResolver) ResolveDOI(ctx context.Context, pmid, arxivID string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/resolve-doi?pmid=%s&arxiv_id=%s", c.BaseURL, pmid, arxivID), nil)
	if err != nil {
		return "", false
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var out struct {
		DOI string `json:"doi"`
		OK  bool   `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false
	}
	return out.DOI, out.OK
}

// NoopNotificationChannel discards notifications; used when no operator
// channel (Slack, email, ...) is configured.
type NoopNotificationChannel struct{}

// Notify is a no-op.
func (NoopNotificationChannel) Notify(context.Context, string, string) {}

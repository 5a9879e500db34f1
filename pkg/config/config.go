// Package config loads and validates the typed configuration tree the
// exploration core runs against: worker concurrency, backoff tunables,
// task budgets, search behavior, and per-provider/per-engine settings
// (spec.md §6 "Configuration surface").
package config

// Config is the umbrella configuration object returned by Load.
type Config struct {
	Concurrency ConcurrencyConfig
	TaskLimits  TaskLimitsConfig
	Search      SearchConfig
	Academic    map[string]AcademicProviderConfig
	Engines     map[string]SERPEngineConfig
	Chrome      ChromeConfig
	Database    DatabaseConfig
	HTTP        HTTPConfig
	Collaborators CollaboratorsConfig
}

// ConcurrencyConfig groups the worker-pool, browser-tab, and backoff
// knobs (spec.md §6).
type ConcurrencyConfig struct {
	SearchQueue SearchQueueConfig
	BrowserSERP BrowserSERPConfig
	Backoff     BackoffConfig
}

// SearchQueueConfig controls the target-queue worker pool (spec.md §4.5).
type SearchQueueConfig struct {
	NumWorkers int `yaml:"num_workers"`

	// OrphanScanIntervalSeconds / OrphanThresholdSeconds bound the periodic
	// reclaim of jobs left `running` by a crashed worker (SPEC_FULL.md §12
	// "Orphan/stuck-target recovery"). Zero disables the scan.
	OrphanScanIntervalSeconds int `yaml:"orphan_scan_interval_seconds"`
	OrphanThresholdSeconds    int `yaml:"orphan_threshold_seconds"`
}

// BrowserSERPConfig bounds per-worker browser tab concurrency (spec.md §4.6).
type BrowserSERPConfig struct {
	MaxTabs int `yaml:"max_tabs"`
}

// BackoffConfig groups the two independent backoff vocabularies
// (spec.md §4.6).
type BackoffConfig struct {
	AcademicAPI AcademicBackoffConfig `yaml:"academic_api"`
	BrowserSERP BrowserBackoffConfig  `yaml:"browser_serp"`
}

// AcademicBackoffConfig tunes AcademicAPIRateLimiter's recovery.
type AcademicBackoffConfig struct {
	RecoveryStableSeconds int `yaml:"recovery_stable_seconds"`
	DecreaseStep          int `yaml:"decrease_step"`
}

// BrowserBackoffConfig tunes TabPool's step-decrease (no auto-recovery).
type BrowserBackoffConfig struct {
	DecreaseStep int `yaml:"decrease_step"`
}

// TaskLimitsConfig bounds a task's page/time/idle budgets (spec.md §6).
type TaskLimitsConfig struct {
	BudgetPagesPerTask      int `yaml:"budget_pages_per_task"`
	PipelineTimeoutSeconds  int `yaml:"pipeline_timeout_seconds"`
	CursorIdleTimeoutSeconds int `yaml:"cursor_idle_timeout_seconds"`
	MaxTimeMinutesGPU       int `yaml:"max_time_minutes_gpu"`
}

// SearchConfig groups query-classification and citation-expansion behavior.
type SearchConfig struct {
	WebCitationDetection  WebCitationDetectionConfig `yaml:"web_citation_detection"`
	CitationGraphTopNPapers int                      `yaml:"citation_graph_top_n_papers"`
	CitationGraphDepth      int                      `yaml:"citation_graph_depth"`
	CitationGraphDirection  string                   `yaml:"citation_graph_direction"`
	AcademicKeywords        []string                 `yaml:"academic_keywords"`
	DocumentKeywords        []string                 `yaml:"document_keywords"`
}

// WebCitationDetectionConfig gates SearchExecutor's citation detector
// (spec.md §4.4 `_should_run_web_citation_detection`).
type WebCitationDetectionConfig struct {
	Enabled               bool `yaml:"enabled"`
	BudgetPagesPerTask    int  `yaml:"budget_pages_per_task"`
	RunOnPrimarySourcesOnly bool `yaml:"run_on_primary_sources_only"`
	RequireUsefulText     bool `yaml:"require_useful_text"`
}

// AcademicProviderConfig is the per-provider academic-API surface
// (spec.md §6).
type AcademicProviderConfig struct {
	BaseURL            string `yaml:"base_url"`
	MinIntervalSeconds float64 `yaml:"min_interval_seconds"`
	MaxParallel        int    `yaml:"max_parallel"`
	Profile            string `yaml:"profile"`
}

// SERPEngineConfig is the per-SERP-engine rate-limit surface.
type SERPEngineConfig struct {
	MinIntervalSeconds float64 `yaml:"min_interval"`
	Concurrency        int     `yaml:"concurrency"`
}

// ChromeConfig isolates per-worker browser ports and profiles
// (spec.md §4.6 "Worker isolation").
type ChromeConfig struct {
	BasePort     int    `yaml:"base_port"`
	ProfilePrefix string `yaml:"profile_prefix"`
}

// DatabaseConfig is the Postgres connection surface, resolved from
// environment variables (grounded on the teacher's pkg/database/config.go).
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
}

// HTTPConfig is the agent-facing API's transport surface.
type HTTPConfig struct {
	Port string
}

// CollaboratorsConfig carries base URLs for the HTTP-backed default
// collaborator implementations (pkg/collaborators/http.go). Any field
// left empty means that collaborator is wired nil — the corresponding
// feature path (open-access resolution, citation expansion, ...)
// degrades gracefully rather than erroring (spec.md §7).
type CollaboratorsConfig struct {
	SERPBaseURL              string `yaml:"serp_base_url"`
	AcademicBaseURL          string `yaml:"academic_base_url"`
	FetchBaseURL             string `yaml:"fetch_base_url"`
	ExtractBaseURL           string `yaml:"extract_base_url"`
	NLIBaseURL               string `yaml:"nli_base_url"`
	LLMClaimExtractorBaseURL string `yaml:"llm_claim_extractor_base_url"`
	OAURLResolverBaseURL     string `yaml:"oa_url_resolver_base_url"`
	IDResolverBaseURL        string `yaml:"id_resolver_base_url"`
}

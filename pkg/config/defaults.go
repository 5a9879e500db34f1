package config

// Default returns the built-in configuration defaults named throughout
// spec.md §6. YAML and environment overrides are merged on top of this
// in Load.
func Default() *Config {
	return &Config{
		Concurrency: ConcurrencyConfig{
			SearchQueue: SearchQueueConfig{
				NumWorkers:                2,
				OrphanScanIntervalSeconds: 60,
				OrphanThresholdSeconds:    180,
			},
			BrowserSERP: BrowserSERPConfig{MaxTabs: 1},
			Backoff: BackoffConfig{
				AcademicAPI: AcademicBackoffConfig{
					RecoveryStableSeconds: 60,
					DecreaseStep:          1,
				},
				BrowserSERP: BrowserBackoffConfig{
					DecreaseStep: 1,
				},
			},
		},
		TaskLimits: TaskLimitsConfig{
			BudgetPagesPerTask:       120,
			PipelineTimeoutSeconds:   300,
			CursorIdleTimeoutSeconds: 60,
			MaxTimeMinutesGPU:        60,
		},
		Search: SearchConfig{
			WebCitationDetection: WebCitationDetectionConfig{
				Enabled:                 false,
				BudgetPagesPerTask:      0,
				RunOnPrimarySourcesOnly: true,
				RequireUsefulText:       true,
			},
			CitationGraphTopNPapers: 5,
			CitationGraphDepth:      1,
			CitationGraphDirection:  "both",
			AcademicKeywords:        []string{"study", "paper", "research", "journal", "doi", "preprint"},
			DocumentKeywords:        []string{"report", "guideline", "whitepaper", "specification"},
		},
		Academic: map[string]AcademicProviderConfig{},
		Engines:  map[string]SERPEngineConfig{},
		Chrome: ChromeConfig{
			BasePort:      9222,
			ProfilePrefix: "excore-worker-",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "excore",
			Database: "excore",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 1,
		},
		HTTP: HTTPConfig{Port: "8080"},
	}
}

// primarySourceDomainSuffixes is the fixed set used by SearchExecutor's
// primary-source domain-suffix match (spec.md §4.4).
var primarySourceDomainSuffixes = []string{
	".gov", ".edu", "iso.org", "ietf.org", "w3.org", "who.int",
	"arxiv.org", "pubmed.gov", "doi.org", "ncbi.nlm.nih.gov",
}

// PrimarySourceDomainSuffixes returns the fixed primary-source suffix set.
func PrimarySourceDomainSuffixes() []string {
	out := make([]string, len(primarySourceDomainSuffixes))
	copy(out, primarySourceDomainSuffixes)
	return out
}

// refutationSuffixes is the exhaustive mechanical suffix list RefutationExecutor
// appends to generate reverse queries (spec.md §4.3, §4.7).
var refutationSuffixes = []string{"limitations", "critique", "criticism", "counterevidence", "批判"}

// RefutationSuffixes returns the fixed five-suffix list.
func RefutationSuffixes() []string {
	out := make([]string, len(refutationSuffixes))
	copy(out, refutationSuffixes)
	return out
}

package config

import "fmt"

// Validate checks the constraints spec.md §6 names explicitly on the
// configuration surface (minimums on worker/tab counts, positive
// backoff steps, and so on).
func Validate(cfg *Config) error {
	if cfg.Concurrency.SearchQueue.NumWorkers < 1 {
		return fmt.Errorf("concurrency.search_queue.num_workers must be >= 1, got %d", cfg.Concurrency.SearchQueue.NumWorkers)
	}
	if cfg.Concurrency.BrowserSERP.MaxTabs < 1 {
		return fmt.Errorf("concurrency.browser_serp.max_tabs must be >= 1, got %d", cfg.Concurrency.BrowserSERP.MaxTabs)
	}
	if cfg.Concurrency.Backoff.AcademicAPI.RecoveryStableSeconds < 1 {
		return fmt.Errorf("concurrency.backoff.academic_api.recovery_stable_seconds must be >= 1, got %d", cfg.Concurrency.Backoff.AcademicAPI.RecoveryStableSeconds)
	}
	if cfg.Concurrency.Backoff.AcademicAPI.DecreaseStep < 1 {
		return fmt.Errorf("concurrency.backoff.academic_api.decrease_step must be >= 1, got %d", cfg.Concurrency.Backoff.AcademicAPI.DecreaseStep)
	}
	if cfg.Concurrency.Backoff.BrowserSERP.DecreaseStep < 1 {
		return fmt.Errorf("concurrency.backoff.browser_serp.decrease_step must be >= 1, got %d", cfg.Concurrency.Backoff.BrowserSERP.DecreaseStep)
	}
	if cfg.TaskLimits.BudgetPagesPerTask < 1 {
		return fmt.Errorf("task_limits.budget_pages_per_task must be >= 1, got %d", cfg.TaskLimits.BudgetPagesPerTask)
	}
	if cfg.TaskLimits.PipelineTimeoutSeconds < 1 {
		return fmt.Errorf("task_limits.pipeline_timeout_seconds must be >= 1, got %d", cfg.TaskLimits.PipelineTimeoutSeconds)
	}
	if cfg.Search.CitationGraphTopNPapers < 0 {
		return fmt.Errorf("search.citation_graph_top_n_papers must be >= 0, got %d", cfg.Search.CitationGraphTopNPapers)
	}
	switch cfg.Search.CitationGraphDirection {
	case "both", "citing", "cited_by":
	default:
		return fmt.Errorf("search.citation_graph_direction must be one of both|citing|cited_by, got %q", cfg.Search.CitationGraphDirection)
	}
	for name, p := range cfg.Academic {
		if p.MinIntervalSeconds < 0 {
			return fmt.Errorf("academic.%s.min_interval_seconds must be >= 0, got %v", name, p.MinIntervalSeconds)
		}
		if p.MaxParallel < 1 {
			return fmt.Errorf("academic.%s.max_parallel must be >= 1, got %d", name, p.MaxParallel)
		}
	}
	for name, e := range cfg.Engines {
		if e.Concurrency < 1 {
			return fmt.Errorf("engines.%s.concurrency must be >= 1, got %d", name, e.Concurrency)
		}
	}
	if cfg.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	return nil
}

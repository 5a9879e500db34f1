package state

// Status is the exact shape of get_status's projection (spec.md §4.1).
// External agents and tests bind to these fields directly, so the
// top-level shape is stable; anything that doesn't fit a named field
// goes in Extensions (spec.md §9 design note).
type Status struct {
	TaskID     string       `json:"task_id"`
	TaskStatus string       `json:"task_status"`
	Searches   []SearchView `json:"searches"`
	Metrics    Metrics      `json:"metrics"`
	Budget     BudgetView   `json:"budget"`
	UCBScores  *UCBView     `json:"ucb_scores"`
	AuthQueue  *AuthQueueView `json:"authentication_queue"`
	Warnings   []string     `json:"warnings"`
	IdleSeconds float64     `json:"idle_seconds"`

	Extensions map[string]any `json:"extensions,omitempty"`
}

// SearchView is one entry of Status.Searches.
type SearchView struct {
	ID                string  `json:"id"`
	Query             string  `json:"query"`
	Priority          string  `json:"priority"`
	Status            string  `json:"status"`
	PagesFetched      int     `json:"pages_fetched"`
	UsefulFragments   int     `json:"useful_fragments"`
	HarvestRate       float64 `json:"harvest_rate"`
	NoveltyScore      float64 `json:"novelty_score"`
	SatisfactionScore float64 `json:"satisfaction_score"`
	IndependentSources int    `json:"independent_sources"`
	HasPrimarySource  bool    `json:"has_primary_source"`
	RefutationStatus  string  `json:"refutation_status"`
}

// Metrics aggregates the task's search/page/fragment/claim tallies.
type Metrics struct {
	SatisfiedCount int     `json:"satisfied_count"`
	PartialCount   int     `json:"partial_count"`
	PendingCount   int     `json:"pending_count"`
	ExhaustedCount int     `json:"exhausted_count"`
	TotalPages     int     `json:"total_pages"`
	TotalFragments int     `json:"total_fragments"`
	TotalClaims    int     `json:"total_claims"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// BudgetView is the page/time budget projection.
type BudgetView struct {
	PagesUsed        int     `json:"pages_used"`
	PagesLimit       int     `json:"pages_limit"`
	TimeUsedSeconds  float64 `json:"time_used_seconds"`
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
}

// RemainingPages is a convenience derived field used by callers that need
// a budget_remaining{pages,percent} shape (spec.md §6 `search` action).
func (b BudgetView) RemainingPages() int {
	r := b.PagesLimit - b.PagesUsed
	if r < 0 {
		return 0
	}
	return r
}

// RemainingPercent returns the fraction (0..1) of page budget remaining.
func (b BudgetView) RemainingPercent() float64 {
	if b.PagesLimit <= 0 {
		return 0
	}
	pct := float64(b.RemainingPages()) / float64(b.PagesLimit)
	if pct < 0 {
		return 0
	}
	return pct
}

// UCBView carries raw bandit data only — never a recommendation string,
// so the external agent remains the strategic decider (spec.md §4.1).
type UCBView struct {
	Enabled    bool               `json:"enabled"`
	ArmScores  map[string]float64 `json:"arm_scores"`
	ArmBudgets map[string]int     `json:"arm_budgets"`
}

// AuthQueueView reports pages blocked behind authentication.
type AuthQueueView struct {
	PendingCount      int      `json:"pending_count"`
	HighPriorityCount int      `json:"high_priority_count"`
	Domains           []string `json:"domains"`
}

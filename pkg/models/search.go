package models

import "time"

// SearchPriority biases both dispatch order (queue) and UCB scoring (bandit).
type SearchPriority string

const (
	PriorityHigh   SearchPriority = "high"
	PriorityMedium SearchPriority = "medium"
	PriorityLow    SearchPriority = "low"
)

// SearchStatus is the lifecycle state of a single search attempt.
type SearchStatus string

const (
	SearchPending   SearchStatus = "pending"
	SearchRunning   SearchStatus = "running"
	SearchSatisfied SearchStatus = "satisfied"
	SearchPartial   SearchStatus = "partial"
	SearchExhausted SearchStatus = "exhausted"
	SearchSkipped   SearchStatus = "skipped"
)

// ActionStatus is the `search` action's own response status (spec.md §6:
// `status∈{satisfied,partial,exhausted,running,failed,timeout}`),
// reported once per call rather than persisted. It is a distinct type
// from SearchStatus because the action surface adds `failed`/`timeout`
// outcomes that a Search row itself never stores.
type ActionStatus string

const (
	ActionSatisfied ActionStatus = "satisfied"
	ActionPartial   ActionStatus = "partial"
	ActionExhausted ActionStatus = "exhausted"
	ActionRunning   ActionStatus = "running"
	ActionFailed    ActionStatus = "failed"
	ActionTimeout   ActionStatus = "timeout"
)

// RefutationStatus tracks the outcome of RefutationExecutor.execute_for_search.
type RefutationStatus string

const (
	RefutationPending  RefutationStatus = "pending"
	RefutationFound    RefutationStatus = "found"
	RefutationNotFound RefutationStatus = "not_found"
)

// recentWindowSize bounds the recent-fragment-hash window used for novelty
// scoring (spec.md §3: "bounded recent-fragment-hash window (size 20)").
const recentWindowSize = 20

// Search is a single query attempt within a task.
type Search struct {
	ID       string
	TaskID   string
	Text     string
	Priority SearchPriority
	Status   SearchStatus

	PagesFetched    int
	SourceDomains   map[string]bool // independent-source set
	HasPrimarySource bool

	UsefulFragments int
	HarvestRate     float64

	// recentHashes is the bounded recent-N window of fragment content
	// hashes; noveltyHits is the parallel rolling window of per-fragment
	// novelty flags that NoveltyScore is derived from.
	recentHashes []string
	noveltyHits  []bool
	NoveltyScore float64

	SatisfactionScore float64
	RefutationStatus  RefutationStatus

	// PageBudget is the optional per-search page budget; 0 means "use the
	// dynamic/static default" (see ExplorationState.get_dynamic_budget).
	PageBudget int

	StartedAt *time.Time

	// novelty-stop-condition cycle tracking (spec.md §4.1 check_novelty_stop_condition)
	lowNoveltyCycles int
}

// NewSearch constructs a `pending` search. Never called directly by
// callers outside ExplorationState.register_search.
func NewSearch(id, taskID, text string, priority SearchPriority, pageBudget int) *Search {
	return &Search{
		ID:               id,
		TaskID:           taskID,
		Text:             text,
		Priority:         priority,
		Status:           SearchPending,
		SourceDomains:    make(map[string]bool),
		RefutationStatus: RefutationPending,
		PageBudget:       pageBudget,
	}
}

// IndependentSourceCount is the number of distinct domains a page has been
// fetched from for this search.
func (s *Search) IndependentSourceCount() int {
	return len(s.SourceDomains)
}

// RecomputeSatisfaction applies the satisfaction-score rule from the
// GLOSSARY: min(1, 0.7*min(1, indep/3) + 0.3*[has_primary]). It also
// moves a running search to satisfied once the score reaches 0.8; any
// other status is left unchanged.
func (s *Search) RecomputeSatisfaction() {
	indepTerm := float64(s.IndependentSourceCount()) / 3.0
	if indepTerm > 1 {
		indepTerm = 1
	}
	primaryTerm := 0.0
	if s.HasPrimarySource {
		primaryTerm = 1
	}
	score := 0.7*indepTerm + 0.3*primaryTerm
	if score > 1 {
		score = 1
	}
	s.SatisfactionScore = score

	if s.IsSatisfied() && s.Status == SearchRunning {
		s.Status = SearchSatisfied
	}
}

// IsSatisfied implements `satisfied <=> satisfaction_score >= 0.8`.
func (s *Search) IsSatisfied() bool {
	return s.SatisfactionScore >= 0.8
}

// RecordFragment appends a content hash to the bounded recent-N window,
// recomputes novelty (fraction of novel fragments in the window), and the
// harvest rate (useful/pages). Returns the updated novelty score so the
// caller (ExplorationState) can drive check_novelty_stop_condition.
func (s *Search) RecordFragment(hash string, isUseful, isNovel bool) float64 {
	s.recentHashes = append(s.recentHashes, hash)
	if len(s.recentHashes) > recentWindowSize {
		s.recentHashes = s.recentHashes[len(s.recentHashes)-recentWindowSize:]
	}

	if isUseful {
		s.UsefulFragments++
	}

	// Set-membership novelty (is hash new) is the executor's per-search
	// seen-set responsibility (spec.md §4.4); here we only track the
	// novelty *rate* over the recent-N window from the flags it reports.
	s.noveltyHits = appendBounded(s.noveltyHits, isNovel, recentWindowSize)
	novel := 0
	for _, v := range s.noveltyHits {
		if v {
			novel++
		}
	}
	s.NoveltyScore = float64(novel) / float64(len(s.noveltyHits))

	if s.PagesFetched > 0 {
		s.HarvestRate = float64(s.UsefulFragments) / float64(s.PagesFetched)
	}

	return s.NoveltyScore
}

func appendBounded(window []bool, v bool, max int) []bool {
	window = append(window, v)
	if len(window) > max {
		window = window[len(window)-max:]
	}
	return window
}

// noveltyStopMinPages and noveltyStopThreshold implement the
// check_novelty_stop_condition rule in spec.md §4.1: true once >=20 pages
// have been fetched and the novelty score has been <0.1 across two
// consecutive observation cycles (one cycle = one CheckNoveltyStop call).
const (
	noveltyStopMinPages   = 20
	noveltyStopThreshold  = 0.1
	noveltyStopCycleCount = 2
)

// CheckNoveltyStop advances the low-novelty cycle counter and reports
// whether the stop condition has now been met. A novelty score at or
// above the threshold resets the cycle counter (a "novelty spike").
func (s *Search) CheckNoveltyStop() bool {
	if s.PagesFetched < noveltyStopMinPages {
		return false
	}
	if s.NoveltyScore < noveltyStopThreshold {
		s.lowNoveltyCycles++
	} else {
		s.lowNoveltyCycles = 0
	}
	return s.lowNoveltyCycles >= noveltyStopCycleCount
}

// Package state implements ExplorationState: the authoritative per-task
// state container, status projection, and cross-component event bus
// (spec.md §4.1).
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/openclaim/excore/pkg/bandit"
	"github.com/openclaim/excore/pkg/models"
)

// defaultStaticSearchBudget is the fallback per-search page budget used
// when the UCB allocator is disabled and no per-search budget was given
// at registration (spec.md §4.1 get_dynamic_budget).
const defaultStaticSearchBudget = 15

// authPendingWarning / authPendingCritical / authHighPriorityCritical are
// the thresholds for the authentication_queue-driven warnings (spec.md §4.1).
const (
	authPendingWarning       = 3
	authPendingCritical      = 5
	authHighPriorityCritical = 2
	budgetWarningThreshold   = 0.2
)

// Config carries a task's budgets and allocator wiring.
type Config struct {
	PagesLimit             int
	TimeLimit              time.Duration
	IdleTimeout            time.Duration
	StaticSearchBudget     int // 0 => defaultStaticSearchBudget
	Allocator              *bandit.Allocator // nil => UCB disabled
}

func (c Config) staticSearchBudget() int {
	if c.StaticSearchBudget > 0 {
		return c.StaticSearchBudget
	}
	return defaultStaticSearchBudget
}

// Store persists the minimal task-status field and reconstructs tallies
// by counting rows on load (spec.md §4.1 "Persistence"). Implemented by
// pkg/database against Postgres; a process-local no-op implementation is
// used where persistence is out of scope (e.g. in tests).
type Store interface {
	SaveTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	LoadCounts(ctx context.Context, taskID string) (LoadedCounts, error)
}

// LoadedCounts is what load_state reconstructs via the
// queries->serp_items->pages->fragments aggregate join, plus a claim
// count (spec.md §4.1).
type LoadedCounts struct {
	TotalPages     int
	TotalFragments int
	TotalClaims    int
}

type authEntry struct {
	domain       string
	highPriority bool
}

// State is the per-task ExplorationState instance.
type State struct {
	cfg   Config
	store Store

	mu       sync.Mutex
	task     *models.Task
	searches map[string]*models.Search
	order    []string // registration order, for stable status projection

	totalClaims    int
	verifiedClaims int
	refutedClaims  int

	startTime    time.Time
	lastActivity time.Time

	authQueue map[string]authEntry // keyed by a caller-chosen auth-request id

	bc *broadcaster
}

// New constructs an ExplorationState for a fresh task.
func New(task *models.Task, cfg Config, store Store) *State {
	now := time.Now()
	return &State{
		cfg:          cfg,
		store:        store,
		task:         task,
		searches:     make(map[string]*models.Search),
		startTime:    now,
		lastActivity: now,
		authQueue:    make(map[string]authEntry),
		bc:           newBroadcaster(),
	}
}

// TaskID returns the owning task's id.
func (s *State) TaskID() string {
	return s.task.ID
}

// RegisterSearch creates a `pending` search; idempotent on duplicate id
// (spec.md §4.1, §8 property 9: the UCB allocator's per-arm priority is
// immutable after creation).
func (s *State) RegisterSearch(searchID, text string, priority models.SearchPriority, pageBudget int) *models.Search {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.searches[searchID]; ok {
		return existing
	}

	search := models.NewSearch(searchID, s.task.ID, text, priority, pageBudget)
	s.searches[searchID] = search
	s.order = append(s.order, searchID)

	if s.cfg.Allocator != nil {
		s.cfg.Allocator.RegisterSearch(searchID, priority, pageBudget)
	}

	s.notifyLocked()
	return search
}

// StartSearch transitions pending -> running, records the start
// timestamp, and promotes the task to `exploring` (spec.md §4.1).
func (s *State) StartSearch(searchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	search, ok := s.searches[searchID]
	if !ok {
		return fmt.Errorf("state: unknown search %q", searchID)
	}
	if search.Status == models.SearchPending {
		now := time.Now()
		search.Status = models.SearchRunning
		search.StartedAt = &now
	}
	if s.task.Status == models.TaskCreated {
		s.task.Status = models.TaskExploring
	}
	s.notifyLocked()
	return nil
}

// RecordPageFetch increments page counters, tracks independent sources
// and primary-source hits, and recomputes the search's satisfaction
// status (spec.md §4.1).
func (s *State) RecordPageFetch(searchID, domain string, isPrimarySource, isIndependent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	search, ok := s.searches[searchID]
	if !ok {
		return fmt.Errorf("state: unknown search %q", searchID)
	}

	search.PagesFetched++
	if isIndependent && domain != "" {
		search.SourceDomains[domain] = true
	}
	if isPrimarySource {
		search.HasPrimarySource = true
	}
	search.RecomputeSatisfaction()

	s.recordActivityLocked()
	s.notifyLocked()
	return nil
}

// RecordFragment appends to the recent-N window, updates novelty and
// harvest rate, and forwards is_useful to the UCB allocator as the arm's
// reward signal (spec.md §4.1).
func (s *State) RecordFragment(searchID, fragmentHash string, isUseful, isNovel bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	search, ok := s.searches[searchID]
	if !ok {
		return fmt.Errorf("state: unknown search %q", searchID)
	}

	search.RecordFragment(fragmentHash, isUseful, isNovel)

	if s.cfg.Allocator != nil {
		s.cfg.Allocator.RecordObservation(searchID, isUseful)
	}

	s.recordActivityLocked()
	s.notifyLocked()
	return nil
}

// RecordClaim is a pure counter update; persistence of claim rows is the
// executor's responsibility (spec.md §4.1).
func (s *State) RecordClaim(searchID string, isVerified, isRefuted *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalClaims++
	if isVerified != nil && *isVerified {
		s.verifiedClaims++
	}
	if isRefuted != nil && *isRefuted {
		s.refutedClaims++
	}
	s.notifyLocked()
}

// CheckBudget returns false when pages_used >= limit or elapsed >= time
// limit, and a warning when less than 20% of page budget remains
// (spec.md §4.1).
func (s *State) CheckBudget() (withinBudget bool, warning string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pagesUsed := s.totalPagesLocked()
	elapsed := time.Since(s.startTime)

	if pagesUsed >= s.cfg.PagesLimit {
		return false, ""
	}
	if s.cfg.TimeLimit > 0 && elapsed >= s.cfg.TimeLimit {
		return false, ""
	}

	view := s.budgetViewLocked(pagesUsed, elapsed)
	if view.RemainingPercent() < budgetWarningThreshold {
		warning = fmt.Sprintf("budget warning: %d%% of page budget remaining", int(view.RemainingPercent()*100))
	}
	return true, warning
}

// CheckNoveltyStopCondition is true once at least 20 pages have been
// fetched and novelty has stayed below 0.1 for two consecutive
// observation cycles (spec.md §4.1, delegated to models.Search).
func (s *State) CheckNoveltyStopCondition(searchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	search, ok := s.searches[searchID]
	if !ok {
		return false
	}
	return search.CheckNoveltyStop()
}

// GetDynamicBudget delegates to the UCB allocator's remaining allocation
// when enabled, else the static per-search budget (spec.md §4.1).
func (s *State) GetDynamicBudget(searchID string) int {
	s.mu.Lock()
	search, ok := s.searches[searchID]
	s.mu.Unlock()

	if s.cfg.Allocator != nil {
		if arm, ok := s.cfg.Allocator.Arm(searchID); ok {
			return arm.RemainingBudget()
		}
	}
	if ok && search.PageBudget > 0 {
		return search.PageBudget
	}
	return s.cfg.staticSearchBudget()
}

// RecordActivity updates the monotonic idle-tracking timestamp.
func (s *State) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordActivityLocked()
}

func (s *State) recordActivityLocked() {
	s.lastActivity = time.Now()
}

// GetIdleSeconds reads elapsed time since the last recorded activity.
func (s *State) GetIdleSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity).Seconds()
}

// RecordAuthQueued registers a page blocked behind authentication, for
// the authentication_queue status projection. id should be stable per
// blocked page (e.g. the page URL) so re-observation doesn't double count.
func (s *State) RecordAuthQueued(id, domain string, highPriority bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authQueue[id] = authEntry{domain: domain, highPriority: highPriority}
	s.notifyLocked()
}

// ClearAuthQueued removes a previously queued auth entry (e.g. once the
// operator resolves the credential prompt).
func (s *State) ClearAuthQueued(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.authQueue, id)
	s.notifyLocked()
}

// GetStatus returns the full projection (spec.md §4.1). If wait > 0, the
// caller blocks on the internal change-event until a status-changing
// operation fires a notification or the timeout elapses (long polling).
func (s *State) GetStatus(ctx context.Context, wait time.Duration) Status {
	if wait > 0 {
		waitCh := s.bc.Wait()
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-waitCh:
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildStatusLocked()
}

func (s *State) buildStatusLocked() Status {
	pagesUsed := s.totalPagesLocked()
	elapsed := time.Since(s.startTime)
	budget := s.budgetViewLocked(pagesUsed, elapsed)

	searches := make([]SearchView, 0, len(s.order))
	var satisfied, partial, pending, exhausted int
	totalFragments := 0
	for _, id := range s.order {
		sv := s.searches[id]
		searches = append(searches, SearchView{
			ID:                 sv.ID,
			Query:              sv.Text,
			Priority:           string(sv.Priority),
			Status:             string(sv.Status),
			PagesFetched:       sv.PagesFetched,
			UsefulFragments:    sv.UsefulFragments,
			HarvestRate:        sv.HarvestRate,
			NoveltyScore:       sv.NoveltyScore,
			SatisfactionScore:  sv.SatisfactionScore,
			IndependentSources: sv.IndependentSourceCount(),
			HasPrimarySource:   sv.HasPrimarySource,
			RefutationStatus:   string(sv.RefutationStatus),
		})
		totalFragments += sv.UsefulFragments
		switch sv.Status {
		case models.SearchSatisfied:
			satisfied++
		case models.SearchPartial:
			partial++
		case models.SearchPending:
			pending++
		case models.SearchExhausted:
			exhausted++
		}
	}

	metrics := Metrics{
		SatisfiedCount: satisfied,
		PartialCount:   partial,
		PendingCount:   pending,
		ExhaustedCount: exhausted,
		TotalPages:     pagesUsed,
		TotalFragments: totalFragments,
		TotalClaims:    s.totalClaims,
		ElapsedSeconds: elapsed.Seconds(),
	}

	var ucbView *UCBView
	if s.cfg.Allocator != nil {
		ucbView = &UCBView{
			Enabled:    true,
			ArmScores:  s.cfg.Allocator.Scores(),
			ArmBudgets: s.cfg.Allocator.Budgets(),
		}
	}

	authView := s.authQueueViewLocked()

	return Status{
		TaskID:      s.task.ID,
		TaskStatus:  string(s.task.Status),
		Searches:    searches,
		Metrics:     metrics,
		Budget:      budget,
		UCBScores:   ucbView,
		AuthQueue:   authView,
		Warnings:    s.buildWarningsLocked(authView, budget, exhausted),
		IdleSeconds: time.Since(s.lastActivity).Seconds(),
	}
}

func (s *State) authQueueViewLocked() *AuthQueueView {
	if len(s.authQueue) == 0 {
		return nil
	}
	domainSet := make(map[string]bool)
	highPriority := 0
	for _, e := range s.authQueue {
		domainSet[e.domain] = true
		if e.highPriority {
			highPriority++
		}
	}
	domains := make([]string, 0, len(domainSet))
	for d := range domainSet {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return &AuthQueueView{
		PendingCount:      len(s.authQueue),
		HighPriorityCount: highPriority,
		Domains:           domains,
	}
}

// buildWarningsLocked orders warnings by criticality per spec.md §4.1:
// [critical] on pending-auth>=5 or high-priority>=2; [warning] on
// pending-auth>=3; budget-remaining string when <20%; exhausted-search
// count; idle-time message when idle >= the configured idle timeout.
func (s *State) buildWarningsLocked(auth *AuthQueueView, budget BudgetView, exhausted int) []string {
	var warnings []string

	if auth != nil {
		if auth.PendingCount >= authPendingCritical || auth.HighPriorityCount >= authHighPriorityCritical {
			warnings = append(warnings, fmt.Sprintf("[critical] %d pages blocked on authentication (%d high priority)", auth.PendingCount, auth.HighPriorityCount))
		} else if auth.PendingCount >= authPendingWarning {
			warnings = append(warnings, fmt.Sprintf("[warning] %d pages blocked on authentication", auth.PendingCount))
		}
	}

	if budget.RemainingPercent() < budgetWarningThreshold {
		warnings = append(warnings, fmt.Sprintf("budget warning: %d%% of page budget remaining", int(budget.RemainingPercent()*100)))
	}

	if exhausted > 0 {
		warnings = append(warnings, fmt.Sprintf("%d search(es) exhausted without satisfaction", exhausted))
	}

	idle := time.Since(s.lastActivity)
	if s.cfg.IdleTimeout > 0 && idle >= s.cfg.IdleTimeout {
		warnings = append(warnings, fmt.Sprintf("idle for %.0fs (timeout %.0fs)", idle.Seconds(), s.cfg.IdleTimeout.Seconds()))
	}

	return warnings
}

func (s *State) budgetViewLocked(pagesUsed int, elapsed time.Duration) BudgetView {
	return BudgetView{
		PagesUsed:        pagesUsed,
		PagesLimit:       s.cfg.PagesLimit,
		TimeUsedSeconds:  elapsed.Seconds(),
		TimeLimitSeconds: s.cfg.TimeLimit.Seconds(),
	}
}

func (s *State) totalPagesLocked() int {
	total := 0
	for _, sv := range s.searches {
		total += sv.PagesFetched
	}
	return total
}

// Summary is finalize's return value (spec.md §4.1).
type Summary struct {
	FinalStatus      models.TaskStatus
	SatisfiedCount   int
	PartialCount     int
	UnsatisfiedCount int
	FollowupHints    []string
	EvidenceGraphNodes int
	EvidenceGraphEdges int
}

// Finalize transitions the task to `paused` (or `cancelled` only when
// reason is exactly "user_cancelled" — spec.md §9 open question,
// preserved as-is) and returns counts plus followup hints.
func (s *State) Finalize(ctx context.Context, reason string) (Summary, error) {
	s.mu.Lock()

	finalStatus := models.TaskPaused
	if reason == "user_cancelled" {
		finalStatus = models.TaskCancelled
	}
	s.task.Status = finalStatus

	var satisfied, partial, unsatisfied int
	var hints []string
	for _, id := range s.order {
		sv := s.searches[id]
		switch sv.Status {
		case models.SearchSatisfied:
			satisfied++
		case models.SearchPartial:
			partial++
		default:
			unsatisfied++
			hints = append(hints, fmt.Sprintf("search %q (%s) did not reach satisfaction", sv.Text, sv.Status))
		}
	}

	summary := Summary{
		FinalStatus:      finalStatus,
		SatisfiedCount:   satisfied,
		PartialCount:     partial,
		UnsatisfiedCount: unsatisfied,
		FollowupHints:    hints,
	}
	s.notifyLocked()
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveTaskStatus(ctx, s.task.ID, finalStatus); err != nil {
			slog.Error("failed to persist final task status", "task_id", s.task.ID, "error", err)
			return summary, fmt.Errorf("state: saving final status: %w", err)
		}
	}
	return summary, nil
}

// LoadState restores the claim tally from a row count in the persistent
// store (spec.md §4.1 "Persistence"). The page and fragment counts that
// LoadCounts returns are not applied: page and fragment tallies are summed
// from the in-memory searches, which LoadState does not rebuild.
func (s *State) LoadState(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	counts, err := s.store.LoadCounts(ctx, s.task.ID)
	if err != nil {
		return fmt.Errorf("state: loading counts: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalClaims = counts.TotalClaims
	s.notifyLocked()
	return nil
}

// SaveState writes only the task-status field; fine-grained counters are
// always re-derived on load, preventing drift (spec.md §4.1).
func (s *State) SaveState(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	status := s.task.Status
	s.mu.Unlock()
	return s.store.SaveTaskStatus(ctx, s.task.ID, status)
}

func (s *State) notifyLocked() {
	s.bc.Notify()
}

// Task returns a copy of the owned task record.
func (s *State) Task() models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.task
}

// Search returns a copy of a search's current record.
func (s *State) Search(searchID string) (models.Search, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.searches[searchID]
	if !ok {
		return models.Search{}, false
	}
	return *sv, true
}

// SetRefutationStatus records RefutationExecutor.execute_for_search's
// outcome against the search (spec.md §4.7).
func (s *State) SetRefutationStatus(searchID string, status models.RefutationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.searches[searchID]
	if !ok {
		return fmt.Errorf("state: unknown search %q", searchID)
	}
	sv.RefutationStatus = status
	s.notifyLocked()
	return nil
}

// Package bandit implements the UCB1-based budget allocator that
// reallocates a bounded page budget across competing searches
// (spec.md §4.2).
package bandit

import (
	"math"
	"sync"

	"github.com/openclaim/excore/pkg/models"
)

// Config carries the allocator's tunables (spec.md §4.2, §6 configuration
// surface). Zero-value Config is invalid; use DefaultConfig.
type Config struct {
	TotalBudget int

	// ExplorationConstant is UCB1's C (default sqrt(2)).
	ExplorationConstant float64

	// MaxBudgetRatio bounds any single arm at floor(TotalBudget*ratio)
	// (spec.md §4.2 "Safety rule", default 0.4).
	MaxBudgetRatio float64

	// MinBudgetPerSearch is the floor every active arm's new allocation
	// respects during reallocate_budget.
	MinBudgetPerSearch int

	// ReallocationInterval is the pull count that triggers
	// should_reallocate (default 10).
	ReallocationInterval int
}

// DefaultConfig returns the spec's default allocator tunables.
func DefaultConfig(totalBudget int) Config {
	return Config{
		TotalBudget:          totalBudget,
		ExplorationConstant:  math.Sqrt2,
		MaxBudgetRatio:       0.4,
		MinBudgetPerSearch:   5,
		ReallocationInterval: 10,
	}
}

// Allocator is the UCB1 budget allocator. Safe for concurrent use.
type Allocator struct {
	mu   sync.Mutex
	cfg  Config
	arms map[string]*models.Arm

	totalPulls            int
	consumedGlobal        int
	pullsSinceLastRealloc int
}

// New constructs an Allocator with the given configuration.
func New(cfg Config) *Allocator {
	return &Allocator{
		cfg:  cfg,
		arms: make(map[string]*models.Arm),
	}
}

// effectiveMaxPerArm implements `floor(total_budget * max_budget_ratio)`.
func (a *Allocator) effectiveMaxPerArm() int {
	return int(math.Floor(float64(a.cfg.TotalBudget) * a.cfg.MaxBudgetRatio))
}

// RegisterSearch creates an arm with a frozen priority multiplier,
// clamping any caller-supplied initial budget to the per-arm cap.
// Idempotent: a second registration for the same id is a no-op and
// returns the existing arm (mirrors ExplorationState.register_search
// idempotency, spec.md §8 property 9).
func (a *Allocator) RegisterSearch(searchID string, priority models.SearchPriority, initialBudget int) *models.Arm {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.arms[searchID]; ok {
		return existing
	}

	cap := a.effectiveMaxPerArm()
	if initialBudget > cap {
		initialBudget = cap
	}
	if initialBudget < 0 {
		initialBudget = 0
	}

	arm := models.NewArm(searchID, priority, initialBudget)
	a.arms[searchID] = arm
	return arm
}

// RecordObservation updates an arm's pull/reward counters from a single
// page-fetch outcome (spec.md §4.2: `record_observation(id, is_useful)`).
// The arm's consumed budget is counted against its allocation and never
// exceeds it; the global consumed count takes every pull.
func (a *Allocator) RecordObservation(searchID string, isUseful bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	arm, ok := a.arms[searchID]
	if !ok {
		return
	}
	arm.Pulls++
	if isUseful {
		arm.CumulativeReward++
	}
	if arm.ConsumedBudget < arm.AllocatedBudget {
		arm.ConsumedBudget++
	}
	a.totalPulls++
	a.pullsSinceLastRealloc++
	a.consumedGlobal++
}

// CalculateUCBScore returns the UCB1 score for an arm: +Inf for
// zero-pull arms, otherwise (avg_reward + C*sqrt(ln(total_pulls)/pulls))
// * priority_multiplier (spec.md §4.2).
func (a *Allocator) CalculateUCBScore(searchID string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calculateUCBScoreLocked(searchID)
}

func (a *Allocator) calculateUCBScoreLocked(searchID string) float64 {
	arm, ok := a.arms[searchID]
	if !ok {
		return 0
	}
	if arm.Pulls == 0 {
		return math.Inf(1)
	}
	exploration := a.cfg.ExplorationConstant * math.Sqrt(math.Log(float64(a.totalPulls))/float64(arm.Pulls))
	return (arm.AverageReward() + exploration) * arm.Multiplier()
}

// ShouldReallocate implements spec.md §4.2 should_reallocate: true once
// pulls_since_last_realloc reaches the configured interval, or when any
// *played* arm's remaining budget has hit zero while still under its
// per-arm cap. Unplayed arms never trigger reallocation.
func (a *Allocator) ShouldReallocate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pullsSinceLastRealloc >= a.cfg.ReallocationInterval {
		return true
	}

	cap := a.effectiveMaxPerArm()
	for _, arm := range a.arms {
		if arm.Pulls == 0 {
			continue
		}
		if arm.RemainingBudget() == 0 && arm.ConsumedBudget < cap {
			return true
		}
	}
	return false
}

// Allocations is the result of a reallocation pass: searchID -> new
// allocated budget.
type Allocations map[string]int

// ReallocateBudget redistributes the remaining global budget across
// active arms (spec.md §4.2 reallocate_budget). Active arms are those
// with consumed_budget < max_per_arm. Unplayed active arms get
// min_budget_per_search first; the remainder is split among played
// active arms proportional to their finite UCB score, each new
// allocation bounded in [min_budget_per_search, max_per_arm-consumed].
// Ties/zero total scores fall back to an equal split.
func (a *Allocator) ReallocateBudget() Allocations {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := make(Allocations, len(a.arms))
	for id, arm := range a.arms {
		result[id] = arm.AllocatedBudget
	}

	remaining := a.cfg.TotalBudget - a.consumedGlobal
	if remaining <= 0 {
		return result
	}

	cap := a.effectiveMaxPerArm()

	type active struct {
		id  string
		arm *models.Arm
	}
	var unplayed, played []active
	for id, arm := range a.arms {
		if arm.ConsumedBudget >= cap {
			continue // not active
		}
		if arm.Pulls == 0 {
			unplayed = append(unplayed, active{id, arm})
		} else {
			played = append(played, active{id, arm})
		}
	}

	// Unplayed active arms first receive min_budget_per_search each,
	// subject to per-arm cap and global remaining.
	for _, u := range unplayed {
		if remaining <= 0 {
			break
		}
		armCap := cap - u.arm.ConsumedBudget
		grant := a.cfg.MinBudgetPerSearch
		if grant > armCap {
			grant = armCap
		}
		if grant > remaining {
			grant = remaining
		}
		if grant < 0 {
			grant = 0
		}
		u.arm.AllocatedBudget = u.arm.ConsumedBudget + grant
		remaining -= grant
		result[u.id] = u.arm.AllocatedBudget
	}

	if len(played) == 0 || remaining <= 0 {
		a.pullsSinceLastRealloc = 0
		return result
	}

	// Remaining budget distributed among played active arms proportional
	// to their UCB scores.
	scores := make(map[string]float64, len(played))
	totalScore := 0.0
	for _, p := range played {
		s := a.calculateUCBScoreLocked(p.id)
		if math.IsInf(s, 1) {
			s = 0 // played arms never score +Inf; defensive only
		}
		scores[p.id] = s
		totalScore += s
	}

	poolForPlayed := remaining
	if totalScore <= 0 {
		// Equal split fallback.
		share := poolForPlayed / len(played)
		for _, p := range played {
			a.grantBounded(p.arm, share, cap)
			result[p.id] = p.arm.AllocatedBudget
		}
	} else {
		for _, p := range played {
			share := int(math.Round(float64(poolForPlayed) * scores[p.id] / totalScore))
			a.grantBounded(p.arm, share, cap)
			result[p.id] = p.arm.AllocatedBudget
		}
	}

	a.pullsSinceLastRealloc = 0
	return result
}

// grantBounded applies a proposed grant to an arm's allocated budget,
// clamped to [min_budget_per_search, max_per_arm-consumed] (floored at
// the arm's current consumed budget so allocated never drops below
// consumed).
func (a *Allocator) grantBounded(arm *models.Arm, proposed int, cap int) {
	armCap := cap - arm.ConsumedBudget
	if proposed > armCap {
		proposed = armCap
	}
	if proposed < a.cfg.MinBudgetPerSearch {
		proposed = a.cfg.MinBudgetPerSearch
	}
	if proposed > armCap {
		proposed = armCap
	}
	if proposed < 0 {
		proposed = 0
	}
	arm.AllocatedBudget = arm.ConsumedBudget + proposed
}

// GetRecommendedSearch returns the id of the highest-UCB arm among those
// with remaining budget or zero pulls. Observability only — the caller
// never acts on this autonomously (spec.md §4.2).
func (a *Allocator) GetRecommendedSearch() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bestID := ""
	bestScore := math.Inf(-1)
	found := false
	for id, arm := range a.arms {
		if arm.Pulls != 0 && arm.RemainingBudget() == 0 {
			continue
		}
		score := a.calculateUCBScoreLocked(id)
		if score > bestScore {
			bestScore = score
			bestID = id
			found = true
		}
	}
	return bestID, found
}

// Arm returns a snapshot copy of an arm's state, for status projection.
func (a *Allocator) Arm(searchID string) (models.Arm, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	arm, ok := a.arms[searchID]
	if !ok {
		return models.Arm{}, false
	}
	return *arm, true
}

// Scores returns a snapshot of every arm's current UCB score, keyed by
// search id, for the read-only `ucb_scores.arm_scores` status field.
func (a *Allocator) Scores() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.arms))
	for id := range a.arms {
		out[id] = a.calculateUCBScoreLocked(id)
	}
	return out
}

// Budgets returns a snapshot of every arm's allocated budget, keyed by
// search id, for the read-only `ucb_scores.arm_budgets` status field.
func (a *Allocator) Budgets() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.arms))
	for id, arm := range a.arms {
		out[id] = arm.AllocatedBudget
	}
	return out
}

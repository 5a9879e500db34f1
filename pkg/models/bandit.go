package models

// PriorityMultiplier maps a SearchPriority to its immutable UCB weight
// (spec.md §4.2: high=1.5, medium=1.0, low=0.7).
func PriorityMultiplier(p SearchPriority) float64 {
	switch p {
	case PriorityHigh:
		return 1.5
	case PriorityLow:
		return 0.7
	default:
		return 1.0
	}
}

// Arm is the bandit record for one search (spec.md §3 "UCB Arm").
// Priority is immutable after creation (spec.md §8, testable property 9).
type Arm struct {
	SearchID   string
	Priority   SearchPriority
	multiplier float64

	Pulls          int
	CumulativeReward float64

	AllocatedBudget int
	ConsumedBudget  int

	LastHarvestRate float64
}

// NewArm constructs an arm with its priority multiplier frozen at creation.
func NewArm(searchID string, priority SearchPriority, initialBudget int) *Arm {
	return &Arm{
		SearchID:        searchID,
		Priority:        priority,
		multiplier:      PriorityMultiplier(priority),
		AllocatedBudget: initialBudget,
	}
}

// Multiplier returns the arm's frozen priority multiplier.
func (a *Arm) Multiplier() float64 {
	return a.multiplier
}

// AverageReward implements `pulls == 0 ? 0 : total_reward/pulls`.
func (a *Arm) AverageReward() float64 {
	if a.Pulls == 0 {
		return 0
	}
	return a.CumulativeReward / float64(a.Pulls)
}

// RemainingBudget is allocated minus consumed, floored at zero.
func (a *Arm) RemainingBudget() int {
	r := a.AllocatedBudget - a.ConsumedBudget
	if r < 0 {
		return 0
	}
	return r
}

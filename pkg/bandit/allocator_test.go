package bandit

import (
	"math"
	"testing"

	"github.com/openclaim/excore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSearchIdempotent(t *testing.T) {
	a := New(DefaultConfig(100))

	first := a.RegisterSearch("s1", models.PriorityHigh, 10)
	second := a.RegisterSearch("s1", models.PriorityLow, 99)

	assert.Equal(t, first.Priority, second.Priority, "second registration must not change priority")
	assert.Equal(t, models.PriorityHigh, second.Priority)
	assert.Equal(t, 10, second.AllocatedBudget, "second registration must not change budget")
}

func TestUnplayedArmHasInfiniteScore(t *testing.T) {
	a := New(DefaultConfig(100))
	a.RegisterSearch("s1", models.PriorityMedium, 0)

	score := a.CalculateUCBScore("s1")
	assert.True(t, math.IsInf(score, 1))
}

func TestPriorityRatioHoldsForEqualPullsAndRewards(t *testing.T) {
	a := New(DefaultConfig(100))
	a.RegisterSearch("hi", models.PriorityHigh, 10)
	a.RegisterSearch("lo", models.PriorityLow, 10)

	for i := 0; i < 5; i++ {
		a.RecordObservation("hi", i%2 == 0)
		a.RecordObservation("lo", i%2 == 0)
	}

	hiScore := a.CalculateUCBScore("hi")
	loScore := a.CalculateUCBScore("lo")
	require.Greater(t, loScore, 0.0)

	ratio := hiScore / loScore
	assert.InDelta(t, 1.5/0.7, ratio, 1e-9)
}

// TestReallocateBudgetProportionalSplit is spec.md §8 scenario S4.
func TestReallocateBudgetProportionalSplit(t *testing.T) {
	cfg := DefaultConfig(100)
	a := New(cfg)
	a.RegisterSearch("hi", models.PriorityMedium, 0)
	a.RegisterSearch("lo", models.PriorityMedium, 0)

	for i := 0; i < 10; i++ {
		a.RecordObservation("hi", i < 8) // 8 rewards
		a.RecordObservation("lo", i < 2) // 2 rewards
	}

	allocations := a.ReallocateBudget()

	assert.Greater(t, allocations["hi"], allocations["lo"])
	assert.GreaterOrEqual(t, allocations["hi"], cfg.MinBudgetPerSearch)
	assert.GreaterOrEqual(t, allocations["lo"], cfg.MinBudgetPerSearch)
	assert.LessOrEqual(t, allocations["hi"], 40)
	assert.LessOrEqual(t, allocations["lo"], 40)
}

func TestShouldReallocateIgnoresUnplayedArms(t *testing.T) {
	a := New(DefaultConfig(100))
	a.RegisterSearch("s1", models.PriorityMedium, 0)

	assert.False(t, a.ShouldReallocate(), "unplayed arm with zero remaining budget must not trigger reallocation")
}

func TestShouldReallocateOnIntervalOrExhaustedPlayedArm(t *testing.T) {
	cfg := DefaultConfig(100)
	cfg.ReallocationInterval = 1000 // disable interval trigger for this test
	a := New(cfg)
	a.RegisterSearch("s1", models.PriorityMedium, 1)

	a.RecordObservation("s1", true) // consumes the single allocated unit

	assert.True(t, a.ShouldReallocate(), "played arm with zero remaining budget under cap must trigger reallocation")
}

func TestConsumedNeverExceedsAllocatedNeverExceedsCap(t *testing.T) {
	cfg := DefaultConfig(100)
	a := New(cfg)
	arm := a.RegisterSearch("s1", models.PriorityHigh, 1000) // over cap, must clamp

	cap := int(math.Floor(100 * cfg.MaxBudgetRatio))
	assert.LessOrEqual(t, arm.AllocatedBudget, cap)
	assert.LessOrEqual(t, arm.ConsumedBudget, arm.AllocatedBudget)
}

func TestGetRecommendedSearchIsObservabilityOnly(t *testing.T) {
	a := New(DefaultConfig(100))
	a.RegisterSearch("s1", models.PriorityHigh, 10)
	a.RegisterSearch("s2", models.PriorityLow, 10)

	id, ok := a.GetRecommendedSearch()
	require.True(t, ok)
	assert.Contains(t, []string{"s1", "s2"}, id)
}

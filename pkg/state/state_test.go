package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openclaim/excore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask(id string) *models.Task {
	return &models.Task{ID: id, Hypothesis: "h", Status: models.TaskCreated, CreatedAt: time.Now()}
}

func newTestState(id string) *State {
	return New(newTestTask(id), Config{PagesLimit: 100, TimeLimit: time.Hour}, nil)
}

// TestSatisfactionScoreMonotonicNonDecreasingUnderMorePages is spec.md §8
// property 1: adding independent sources never decreases satisfaction.
func TestSatisfactionScoreMonotonicNonDecreasingUnderMorePages(t *testing.T) {
	s := newTestState("t1")
	s.RegisterSearch("s1", "query", models.PriorityMedium, 10)
	require.NoError(t, s.StartSearch("s1"))

	var last float64
	domains := []string{"a.com", "b.com", "c.com", "d.com"}
	for _, d := range domains {
		require.NoError(t, s.RecordPageFetch("s1", d, false, true))
		sv, ok := s.Search("s1")
		require.True(t, ok)
		assert.GreaterOrEqual(t, sv.SatisfactionScore, last)
		last = sv.SatisfactionScore
	}
}

func TestRegisterSearchIdempotentAtStateLevel(t *testing.T) {
	s := newTestState("t1")
	first := s.RegisterSearch("s1", "query", models.PriorityHigh, 10)
	second := s.RegisterSearch("s1", "other query", models.PriorityLow, 99)

	assert.Same(t, first, second)
	assert.Equal(t, "query", second.Text)
	assert.Equal(t, models.PriorityHigh, second.Priority)
}

func TestGetStatusWaitWakesOnNotify(t *testing.T) {
	s := newTestState("t1")
	s.RegisterSearch("s1", "query", models.PriorityMedium, 10)

	var wg sync.WaitGroup
	wg.Add(1)
	start := time.Now()
	var elapsed time.Duration
	go func() {
		defer wg.Done()
		status := s.GetStatus(context.Background(), 5*time.Second)
		elapsed = time.Since(start)
		assert.Equal(t, 1, status.Metrics.TotalPages)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.RecordPageFetch("s1", "a.com", false, true))

	wg.Wait()
	assert.Less(t, elapsed, 5*time.Second, "GetStatus should wake on notify, not block for the full wait timeout")
}

func TestGetStatusWaitTimesOutWithoutChange(t *testing.T) {
	s := newTestState("t1")
	start := time.Now()
	_ = s.GetStatus(context.Background(), 30*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestCheckBudgetFalseAtPagesLimit(t *testing.T) {
	s := New(newTestTask("t1"), Config{PagesLimit: 2, TimeLimit: time.Hour}, nil)
	s.RegisterSearch("s1", "query", models.PriorityMedium, 10)
	require.NoError(t, s.RecordPageFetch("s1", "a.com", false, true))
	ok, _ := s.CheckBudget()
	assert.True(t, ok)

	require.NoError(t, s.RecordPageFetch("s1", "b.com", false, true))
	ok, _ = s.CheckBudget()
	assert.False(t, ok)
}

func TestCheckBudgetWarningUnderTwentyPercentRemaining(t *testing.T) {
	s := New(newTestTask("t1"), Config{PagesLimit: 10, TimeLimit: time.Hour}, nil)
	s.RegisterSearch("s1", "query", models.PriorityMedium, 10)
	for i := 0; i < 9; i++ {
		require.NoError(t, s.RecordPageFetch("s1", "a.com", false, false))
	}
	ok, warning := s.CheckBudget()
	assert.True(t, ok)
	assert.NotEmpty(t, warning)
}

func TestFinalizeDefaultsToPausedUnlessUserCancelled(t *testing.T) {
	s := newTestState("t1")
	summary, err := s.Finalize(context.Background(), "budget_exhausted")
	require.NoError(t, err)
	assert.Equal(t, models.TaskPaused, summary.FinalStatus)

	s2 := newTestState("t2")
	summary2, err := s2.Finalize(context.Background(), "user_cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCancelled, summary2.FinalStatus)
}

func TestFinalizeReportsUnsatisfiedFollowupHints(t *testing.T) {
	s := newTestState("t1")
	s.RegisterSearch("s1", "unanswered question", models.PriorityMedium, 10)

	summary, err := s.Finalize(context.Background(), "timeout")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UnsatisfiedCount)
	require.Len(t, summary.FollowupHints, 1)
}

func TestCacheGetOrCreateConstructsOnceUnderConcurrentCallers(t *testing.T) {
	c := NewCache()
	var buildCount int
	var buildMu sync.Mutex

	build := func(ctx context.Context, taskID string) (*State, error) {
		buildMu.Lock()
		buildCount++
		buildMu.Unlock()
		time.Sleep(10 * time.Millisecond) // widen the race window
		return newTestState(taskID), nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]*State, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s, err := c.GetOrCreate(context.Background(), "shared-task", build)
			require.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	buildMu.Lock()
	defer buildMu.Unlock()
	assert.Equal(t, 1, buildCount, "concurrent first-lookups must construct exactly once")
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
}

func TestCacheDifferentTasksDoNotSerialize(t *testing.T) {
	c := NewCache()
	build := func(ctx context.Context, taskID string) (*State, error) {
		return newTestState(taskID), nil
	}

	s1, err := c.GetOrCreate(context.Background(), "t1", build)
	require.NoError(t, err)
	s2, err := c.GetOrCreate(context.Background(), "t2", build)
	require.NoError(t, err)

	assert.NotSame(t, s1, s2)
	assert.ElementsMatch(t, []string{"t1", "t2"}, c.Tasks())
}

func TestCacheEvictRemovesEntry(t *testing.T) {
	c := NewCache()
	build := func(ctx context.Context, taskID string) (*State, error) {
		return newTestState(taskID), nil
	}
	_, err := c.GetOrCreate(context.Background(), "t1", build)
	require.NoError(t, err)

	c.Evict("t1")
	_, ok := c.Peek("t1")
	assert.False(t, ok)
}

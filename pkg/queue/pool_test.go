package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcastEmptyWakesWaiter(t *testing.T) {
	p := &Pool{emptyCh: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		p.WaitForEmpty(time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	p.broadcastEmpty()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForEmpty did not wake on broadcast")
	}
}

func TestWaitForEmptyTimesOutWithoutBroadcast(t *testing.T) {
	p := &Pool{emptyCh: make(chan struct{})}
	start := time.Now()
	p.WaitForEmpty(20 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCancelJobsForTaskReturnsZeroWhenNoneRunning(t *testing.T) {
	p := &Pool{running: make(map[string]*runningJob)}
	assert.Equal(t, 0, p.CancelJobsForTask(context.Background(), "task-1"))
}

package state

import "sync"

// broadcaster is a repeatable one-shot wakeup signal: Wait returns a
// channel that closes the next time Notify is called. This is the
// change-event long polling in get_status blocks on (spec.md §4.1).
//
// Grounded on the teacher's notify-on-release pattern in
// pkg/mcp (event-driven acquire) generalized to a plain broadcast: no
// payload is carried, only "something changed, re-read state".
type broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

// Wait returns the current wait channel. The caller should re-read
// state after it fires (or after a timeout) since multiple changes may
// be coalesced into a single notification.
func (b *broadcaster) Wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

// Notify wakes every current waiter and arms a fresh channel for the
// next wait cycle.
func (b *broadcaster) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.ch)
	b.ch = make(chan struct{})
}

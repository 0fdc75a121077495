// Package flush coalesces store mutations into periodic durability flushes.
//
// Mutating code calls Tracker.MarkDirty after each successful write. A single
// Scheduler goroutine waits for the tracker to signal, lets further writes
// accumulate for one interval, then test-and-clears the flag and flushes the
// store. A failed flush sets the flag again so the next cycle retries.
package flush

import "sync"

// Tracker records whether the store has unflushed mutations.
type Tracker struct {
	mu    sync.Mutex
	dirty bool
	wake  chan struct{}
}

// NewTracker returns a clean tracker.
func NewTracker() *Tracker {
	return &Tracker{wake: make(chan struct{}, 1)}
}

// MarkDirty records a pending mutation and wakes the scheduler. Safe for
// concurrent use; repeated calls before a flush are coalesced.
func (t *Tracker) MarkDirty() {
	t.mu.Lock()
	t.dirty = true
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// TakeIfDirty atomically clears the flag and reports whether it was set.
func (t *Tracker) TakeIfDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return false
	}
	t.dirty = false
	return true
}

// IsDirty reports the current state without clearing it.
func (t *Tracker) IsDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// Wake returns the channel that receives a value after MarkDirty.
func (t *Tracker) Wake() <-chan struct{} {
	return t.wake
}

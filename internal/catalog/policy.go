package catalog

import (
	"context"

	"github.com/maruel/songdb/internal/flush"
	"github.com/maruel/songdb/internal/storage"
)

// Policy decides how a successful mutation becomes durable.
type Policy interface {
	// Commit is called after each successful store write.
	Commit(ctx context.Context) error
	// Name identifies the policy in logs and health output.
	Name() string
}

// Buffered defers durability to a flush.Scheduler by marking the tracker.
type Buffered struct {
	Tracker *flush.Tracker
}

// Commit implements Policy.
func (b Buffered) Commit(context.Context) error {
	b.Tracker.MarkDirty()
	return nil
}

// Name implements Policy.
func (Buffered) Name() string {
	return "buffered"
}

// Synchronous flushes the store before the mutation is acknowledged.
type Synchronous struct {
	Store storage.Store
}

// Commit implements Policy.
func (s Synchronous) Commit(ctx context.Context) error {
	return s.Store.Flush(ctx)
}

// Name implements Policy.
func (Synchronous) Name() string {
	return "sync"
}

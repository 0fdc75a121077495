// Package storage defines the record store contract shared by all persistence
// backends.
//
// A Store owns every song. Mutations may be buffered by the backend; Flush
// forces whatever is buffered to stable storage. Backends live in
// sub-packages and are selected at startup by name.
package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/maruel/songdb/internal/models"
)

// ErrNotFound is returned when the requested song id does not exist.
var ErrNotFound = errors.New("song not found")

// Store is the durable id to song mapping.
//
// Implementations must be safe for concurrent use. Insert must be atomic with
// respect to other inserts so that ids stay dense. Readers never observe a
// partially written song.
type Store interface {
	// Insert assigns the next id (current count + 1), persists the song under
	// it and returns the id. The ID of the argument is ignored.
	Insert(ctx context.Context, song *models.Song) (int64, error)
	// Get returns a copy of the song or ErrNotFound.
	Get(ctx context.Context, id int64) (*models.Song, error)
	// Put overwrites an existing song. Returns ErrNotFound if id is unknown.
	Put(ctx context.Context, id int64, song *models.Song) error
	// Scan iterates over all songs in storage order. Each call starts a new
	// iteration.
	Scan(ctx context.Context) iter.Seq2[*models.Song, error]
	// Count returns the number of stored songs.
	Count(ctx context.Context) (int, error)
	// Flush forces buffered writes to stable storage. It is idempotent and
	// cheap when nothing is pending.
	Flush(ctx context.Context) error
	// Close releases the backend.
	Close() error
}

// StorageError wraps an I/O failure of a backend.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in a StorageError, or nil when err is nil.
//
// ErrNotFound and context errors are returned as is so callers can match them
// directly.
func Wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Backend: backend, Op: op, Err: err}
}

// IsStorageError reports whether err is, or wraps, a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

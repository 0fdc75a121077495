// Package catalog implements the song operations on top of a storage.Store:
// creation, play counting and substring search.
//
// Search is a full scan evaluating every filter on every song, O(N*F) for N
// songs and F filters. Plays on the same song are serialized with a per-id
// lock so concurrent increments are never lost.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/storage"
)

// Service exposes the catalog operations.
type Service struct {
	store  storage.Store
	policy Policy
	locks  *keyLocks
}

// NewService returns a Service writing to store and committing with policy.
func NewService(store storage.Store, policy Policy) *Service {
	return &Service{
		store:  store,
		policy: policy,
		locks:  newKeyLocks(),
	}
}

// PolicyName returns the durability policy in use.
func (s *Service) PolicyName() string {
	return s.policy.Name()
}

// Create stores a new song. The ID and PlayCount of in are ignored: the store
// assigns the ID and the play count starts at zero.
func (s *Service) Create(ctx context.Context, in models.Song) (*models.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	song := &models.Song{
		Title:  in.Title,
		Artist: in.Artist,
		Genre:  in.Genre,
	}
	id, err := s.store.Insert(ctx, song)
	if err != nil {
		return nil, fmt.Errorf("create song: %w", err)
	}
	song.ID = id
	if err := s.policy.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit song %d: %w", id, err)
	}
	slog.DebugContext(ctx, "Created song", "id", id, "title", song.Title)
	return song, nil
}

// Get returns the song with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Song, error) {
	song, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get song %d: %w", id, err)
	}
	return song, nil
}

// Play increments the play count of a song by one and returns the updated
// song. It returns an error wrapping storage.ErrNotFound for unknown ids.
func (s *Service) Play(ctx context.Context, id int64) (*models.Song, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	// The lock may have been contended; do not start a write for a request
	// that already gave up.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	song, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("play song %d: %w", id, err)
	}
	song.PlayCount++
	if err := s.store.Put(ctx, id, song); err != nil {
		return nil, fmt.Errorf("play song %d: %w", id, err)
	}
	if err := s.policy.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit song %d: %w", id, err)
	}
	return song, nil
}

// Search returns the songs matching every recognized filter, in store order.
// The result is never nil.
func (s *Service) Search(ctx context.Context, f Filter) ([]*models.Song, error) {
	m := f.compile()
	out := []*models.Song{}
	for song, err := range s.store.Scan(ctx) {
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		if m.match(song) {
			out = append(out, song)
		}
	}
	return out, nil
}

// Count returns the number of songs.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

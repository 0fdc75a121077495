// Package jsonlstore implements storage.Store on a jsonldb.Table.
//
// All songs are held in memory; Flush writes the table file when it changed.
// Until then mutations exist only in memory.
package jsonlstore

import (
	"context"
	"errors"
	"iter"

	"github.com/maruel/songdb/internal/jsonldb"
	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/storage"
)

const backendName = "jsonl"

// Store is a JSONL backed storage.Store.
type Store struct {
	table *jsonldb.Table[*models.Song]
}

// Open loads the table file at path, creating its directory if needed.
func Open(path string) (*Store, error) {
	table, err := jsonldb.NewTable[*models.Song](path)
	if err != nil {
		return nil, storage.Wrap(backendName, "open", err)
	}
	return &Store{table: table}, nil
}

// Insert implements storage.Store.
func (s *Store) Insert(ctx context.Context, song *models.Song) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	row, err := s.table.AppendFunc(func(n int) (*models.Song, error) {
		row := song.Clone()
		row.ID = int64(n) + 1
		return row, nil
	})
	if err != nil {
		return 0, storage.Wrap(backendName, "insert", err)
	}
	return row.ID, nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, id int64) (*models.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	song, ok := s.table.Get(id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return song, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, id int64, song *models.Song) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.table.Modify(id, func(*models.Song) (*models.Song, error) {
		row := song.Clone()
		row.ID = id
		return row, nil
	})
	if errors.Is(err, jsonldb.ErrRowNotFound) {
		return storage.ErrNotFound
	}
	return storage.Wrap(backendName, "put", err)
}

// Scan implements storage.Store.
func (s *Store) Scan(ctx context.Context) iter.Seq2[*models.Song, error] {
	return func(yield func(*models.Song, error) bool) {
		for song := range s.table.All() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(song, nil) {
				return
			}
		}
	}
}

// Count implements storage.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.table.Len(), nil
}

// Flush implements storage.Store.
func (s *Store) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return storage.Wrap(backendName, "flush", s.table.Flush())
}

// Close flushes pending changes.
func (s *Store) Close() error {
	return storage.Wrap(backendName, "close", s.table.Flush())
}

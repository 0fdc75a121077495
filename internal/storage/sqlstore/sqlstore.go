// Package sqlstore implements storage.Store on a SQLite database through
// database/sql.
//
// The driver is github.com/mattn/go-sqlite3 when cgo is available and
// modernc.org/sqlite otherwise. The database runs in WAL mode with
// synchronous=NORMAL; Flush checkpoints the WAL into the main file.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/storage"
)

const backendName = "sqlite"

const schema = `CREATE TABLE IF NOT EXISTS songs(
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	genre TEXT NOT NULL,
	play_count INTEGER NOT NULL DEFAULT 0
);`

// Store is a SQLite backed storage.Store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, storage.Wrap(backendName, "open", err)
	}
	// A single connection serializes writers, which keeps the count based id
	// assignment race free, and makes the per connection pragmas stick.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, storage.Wrap(backendName, "create table", err)
	}
	return &Store{db: db}, nil
}

// Insert implements storage.Store.
func (s *Store) Insert(ctx context.Context, song *models.Song) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO songs (id, title, artist, genre, play_count) SELECT COUNT(*) + 1, ?, ?, ?, ? FROM songs",
		song.Title, song.Artist, song.Genre, song.PlayCount)
	if err != nil {
		return 0, storage.Wrap(backendName, "insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storage.Wrap(backendName, "insert", err)
	}
	return id, nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, id int64) (*models.Song, error) {
	var song models.Song
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, artist, genre, play_count FROM songs WHERE id = ?", id,
	).Scan(&song.ID, &song.Title, &song.Artist, &song.Genre, &song.PlayCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Wrap(backendName, "get", err)
	}
	return &song, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, id int64, song *models.Song) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE songs SET title = ?, artist = ?, genre = ?, play_count = ? WHERE id = ?",
		song.Title, song.Artist, song.Genre, song.PlayCount, id)
	if err != nil {
		return storage.Wrap(backendName, "put", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Wrap(backendName, "put", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Scan implements storage.Store.
//
// The iteration holds the only connection; yield must not call back into the
// store.
func (s *Store) Scan(ctx context.Context) iter.Seq2[*models.Song, error] {
	return func(yield func(*models.Song, error) bool) {
		rows, err := s.db.QueryContext(ctx, "SELECT id, title, artist, genre, play_count FROM songs ORDER BY id")
		if err != nil {
			yield(nil, storage.Wrap(backendName, "scan", err))
			return
		}
		defer func() {
			_ = rows.Close()
		}()
		for rows.Next() {
			var song models.Song
			if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.Genre, &song.PlayCount); err != nil {
				yield(nil, storage.Wrap(backendName, "scan", err))
				return
			}
			if !yield(&song, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, storage.Wrap(backendName, "scan", err))
		}
	}
}

// Count implements storage.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM songs").Scan(&n); err != nil {
		return 0, storage.Wrap(backendName, "count", err)
	}
	return n, nil
}

// Flush implements storage.Store by checkpointing the WAL.
func (s *Store) Flush(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	return storage.Wrap(backendName, "checkpoint", err)
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return storage.Wrap(backendName, "close", s.db.Close())
}

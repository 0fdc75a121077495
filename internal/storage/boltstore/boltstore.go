// Package boltstore implements storage.Store on top of an embedded bbolt file.
//
// Songs live in a single bucket keyed by the 8 byte big-endian id, so cursor
// order is id order. The database is opened with NoSync: commits land in the
// OS page cache and Flush forces them to disk with an fdatasync.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/storage"
	bolt "go.etcd.io/bbolt"
)

const backendName = "bolt"

var songsBucket = []byte("songs")

// Store is a bbolt backed storage.Store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: time.Second,
		NoSync:  true,
	})
	if err != nil {
		return nil, storage.Wrap(backendName, "open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(songsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, storage.Wrap(backendName, "create bucket", err)
	}
	return &Store{db: db}, nil
}

// Insert implements storage.Store.
func (s *Store) Insert(ctx context.Context, song *models.Song) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(songsBucket)
		id = int64(b.Stats().KeyN) + 1
		row := song.Clone()
		row.ID = id
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put(encodeKey(id), data)
	})
	if err != nil {
		return 0, storage.Wrap(backendName, "insert", err)
	}
	return id, nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, id int64) (*models.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var song *models.Song
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(songsBucket).Get(encodeKey(id))
		if data == nil {
			return storage.ErrNotFound
		}
		var err error
		song, err = decode(data)
		return err
	})
	if err != nil {
		return nil, storage.Wrap(backendName, "get", err)
	}
	return song, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, id int64, song *models.Song) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(songsBucket)
		key := encodeKey(id)
		if b.Get(key) == nil {
			return storage.ErrNotFound
		}
		row := song.Clone()
		row.ID = id
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	return storage.Wrap(backendName, "put", err)
}

// Scan implements storage.Store.
//
// The whole iteration runs inside one read transaction, so it sees a
// consistent snapshot. The yield callback must not write to the same store.
func (s *Store) Scan(ctx context.Context) iter.Seq2[*models.Song, error] {
	return func(yield func(*models.Song, error) bool) {
		stopped := false
		err := s.db.View(func(tx *bolt.Tx) error {
			c := tx.Bucket(songsBucket).Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				song, err := decode(v)
				if err != nil {
					return fmt.Errorf("key %d: %w", decodeKey(k), err)
				}
				if !yield(song, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, storage.Wrap(backendName, "scan", err))
		}
	}
}

// Count implements storage.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(songsBucket).Stats().KeyN
		return nil
	})
	return n, storage.Wrap(backendName, "count", err)
}

// Flush implements storage.Store.
func (s *Store) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return storage.Wrap(backendName, "sync", s.db.Sync())
}

// Close syncs and closes the database.
func (s *Store) Close() error {
	err := s.db.Sync()
	if err2 := s.db.Close(); err == nil {
		err = err2
	}
	return storage.Wrap(backendName, "close", err)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

func encodeKey(id int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id)) //nolint:gosec // G115: ids are positive
	return k[:]
}

func decodeKey(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k)) //nolint:gosec // G115: ids are positive
}

// decode unmarshals a value. bbolt values are only valid for the life of the
// transaction, which json.Unmarshal respects since it copies strings.
func decode(data []byte) (*models.Song, error) {
	var song models.Song
	if err := json.Unmarshal(data, &song); err != nil {
		return nil, fmt.Errorf("failed to unmarshal song: %w", err)
	}
	return &song, nil
}

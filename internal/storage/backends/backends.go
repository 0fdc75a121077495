// Package backends opens the storage.Store selected by name.
package backends

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruel/songdb/internal/config"
	"github.com/maruel/songdb/internal/storage"
	"github.com/maruel/songdb/internal/storage/boltstore"
	"github.com/maruel/songdb/internal/storage/jsonlstore"
	"github.com/maruel/songdb/internal/storage/sqlstore"
)

// FileName returns the file a backend keeps in the data directory.
func FileName(backend string) (string, error) {
	switch backend {
	case config.BackendBolt:
		return "songs.db", nil
	case config.BackendSQLite:
		return "songs.sqlite", nil
	case config.BackendJSONL:
		return "songs.jsonl", nil
	default:
		return "", fmt.Errorf("unknown backend %q", backend)
	}
}

// Open opens the backend in dataDir, creating the directory if needed.
func Open(ctx context.Context, backend, dataDir string) (storage.Store, error) {
	name, err := FileName(backend)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil { //nolint:gosec // G301: data dir must be readable by operators
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, name)
	switch backend {
	case config.BackendBolt:
		return openBolt(path)
	case config.BackendSQLite:
		return openSQLite(ctx, path)
	default:
		return openJSONL(path)
	}
}

// The helpers never return a typed nil pointer as a storage.Store.

func openBolt(path string) (storage.Store, error) {
	s, err := boltstore.Open(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openSQLite(ctx context.Context, path string) (storage.Store, error) {
	s, err := sqlstore.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openJSONL(path string) (storage.Store, error) {
	s, err := jsonlstore.Open(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

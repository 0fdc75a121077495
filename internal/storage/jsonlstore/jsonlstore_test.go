package jsonlstore

import (
	"path/filepath"
	"testing"

	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/storage"
	"github.com/maruel/songdb/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, dir string) storage.Store {
		s, err := Open(filepath.Join(dir, "songs.jsonl"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return s
	})
}

func TestUnflushedWritesAreNotOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.jsonl")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(t.Context(), &models.Song{Title: "pending"}); err != nil {
		t.Fatal(err)
	}
	other, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := other.Count(t.Context()); n != 0 {
		t.Errorf("write reached disk before Flush: count=%d", n)
	}
	if err := s.Flush(t.Context()); err != nil {
		t.Fatal(err)
	}
	reloaded, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := reloaded.Count(t.Context()); n != 1 {
		t.Errorf("expected 1 song after Flush, got %d", n)
	}
}

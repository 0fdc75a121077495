// Package storagetest provides a conformance suite for storage.Store
// implementations.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/storage"
)

// Factory opens a store rooted in dir. Opening the same dir twice must
// return the data flushed by the first store.
type Factory func(t *testing.T, dir string) storage.Store

// Run executes the conformance suite against stores created by open.
func Run(t *testing.T, open Factory) {
	t.Run("InsertAssignsDenseIDs", func(t *testing.T) { testInsert(t, open) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open) })
	t.Run("Put", func(t *testing.T) { testPut(t, open) })
	t.Run("ScanOrder", func(t *testing.T) { testScan(t, open) })
	t.Run("ConcurrentInserts", func(t *testing.T) { testConcurrentInserts(t, open) })
	t.Run("FlushPersists", func(t *testing.T) { testFlushPersists(t, open) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceled(t, open) })
}

func mustInsert(t *testing.T, s storage.Store, title string) int64 {
	t.Helper()
	id, err := s.Insert(t.Context(), &models.Song{Title: title, Artist: "artist", Genre: "genre"})
	if err != nil {
		t.Fatalf("Insert(%q) failed: %v", title, err)
	}
	return id
}

func closeStore(t *testing.T, s storage.Store) {
	t.Helper()
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func testInsert(t *testing.T, open Factory) {
	s := open(t, t.TempDir())
	defer closeStore(t, s)
	ctx := t.Context()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		id, err := s.Insert(ctx, &models.Song{ID: 99, Title: "t", Artist: "a", Genre: "g"})
		if err != nil {
			t.Fatal(err)
		}
		if id != int64(n)+1 || id != want {
			t.Errorf("Insert returned id %d, want %d (count before %d)", id, want, n)
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != id || got.Title != "t" || got.Artist != "a" || got.Genre != "g" || got.PlayCount != 0 {
			t.Errorf("Get(%d) = %+v", id, got)
		}
	}
}

func testGetMissing(t *testing.T, open Factory) {
	s := open(t, t.TempDir())
	defer closeStore(t, s)
	if _, err := s.Get(t.Context(), 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(42) error = %v, want ErrNotFound", err)
	}
	err := s.Put(t.Context(), 42, &models.Song{Title: "x"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Put(42) error = %v, want ErrNotFound", err)
	}
	if n, _ := s.Count(t.Context()); n != 0 {
		t.Errorf("failed Put created a row, count = %d", n)
	}
}

func testPut(t *testing.T, open Factory) {
	s := open(t, t.TempDir())
	defer closeStore(t, s)
	ctx := t.Context()
	id := mustInsert(t, s, "before")
	song, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	song.PlayCount = 5
	song.Title = "after"
	if err := s.Put(ctx, id, song); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.PlayCount != 5 || got.Title != "after" || got.ID != id {
		t.Errorf("Get after Put = %+v", got)
	}
	// The returned song is a copy.
	got.PlayCount = 100
	again, _ := s.Get(ctx, id)
	if again.PlayCount != 5 {
		t.Errorf("Get returned shared state: %+v", again)
	}
}

func testScan(t *testing.T, open Factory) {
	s := open(t, t.TempDir())
	defer closeStore(t, s)
	ctx := t.Context()

	var empty int
	for _, err := range s.Scan(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		empty++
	}
	if empty != 0 {
		t.Errorf("empty store yielded %d songs", empty)
	}

	titles := []string{"a", "b", "c", "d"}
	for _, title := range titles {
		mustInsert(t, s, title)
	}
	for range 2 {
		var got []string
		for song, err := range s.Scan(ctx) {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, song.Title)
		}
		if len(got) != len(titles) {
			t.Fatalf("Scan yielded %v", got)
		}
		for i := range titles {
			if got[i] != titles[i] {
				t.Errorf("Scan order %v, want %v", got, titles)
				break
			}
		}
	}

	// Early termination.
	n := 0
	for range s.Scan(ctx) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("break yielded %d", n)
	}
}

func testConcurrentInserts(t *testing.T, open Factory) {
	s := open(t, t.TempDir())
	defer closeStore(t, s)
	const n = 50
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			id, err := s.Insert(context.Background(), &models.Song{Title: "t"})
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = id
		})
	}
	wg.Wait()
	seen := make(map[int64]bool, n)
	for _, id := range ids {
		if id < 1 || id > n || seen[id] {
			t.Fatalf("ids are not a permutation of 1..%d: %v", n, ids)
		}
		seen[id] = true
	}
}

func testFlushPersists(t *testing.T, open Factory) {
	dir := t.TempDir()
	s := open(t, dir)
	ctx := t.Context()
	id := mustInsert(t, s, "durable")
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	// Idempotent and cheap when nothing is pending.
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	closeStore(t, s)

	s2 := open(t, dir)
	defer closeStore(t, s2)
	got, err := s2.Get(ctx, id)
	if err != nil {
		t.Fatalf("song lost after reopen: %v", err)
	}
	if got.Title != "durable" {
		t.Errorf("reopened song = %+v", got)
	}
}

func testCanceled(t *testing.T, open Factory) {
	s := open(t, t.TempDir())
	defer closeStore(t, s)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := s.Insert(ctx, &models.Song{Title: "x"}); err == nil {
		t.Error("Insert with canceled context succeeded")
	}
	if n, err := s.Count(t.Context()); err != nil || n != 0 {
		t.Errorf("canceled Insert left count=%d err=%v", n, err)
	}
}

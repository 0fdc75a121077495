package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/maruel/songdb/internal/flush"
	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/storage"
	"github.com/maruel/songdb/internal/storage/boltstore"
	"github.com/maruel/songdb/internal/storage/jsonlstore"
)

// faultyStore wraps a store and can fail writes and count flushes.
type faultyStore struct {
	storage.Store
	failWrites atomic.Bool
	flushes    atomic.Int32
}

var errDisk = errors.New("disk on fire")

func (f *faultyStore) Insert(ctx context.Context, s *models.Song) (int64, error) {
	if f.failWrites.Load() {
		return 0, storage.Wrap("faulty", "insert", errDisk)
	}
	return f.Store.Insert(ctx, s)
}

func (f *faultyStore) Put(ctx context.Context, id int64, s *models.Song) error {
	if f.failWrites.Load() {
		return storage.Wrap("faulty", "put", errDisk)
	}
	return f.Store.Put(ctx, id, s)
}

func (f *faultyStore) Flush(ctx context.Context) error {
	f.flushes.Add(1)
	return f.Store.Flush(ctx)
}

func newJSONLStore(t *testing.T) *faultyStore {
	s, err := jsonlstore.Open(filepath.Join(t.TempDir(), "songs.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return &faultyStore{Store: s}
}

func newBuffered(t *testing.T) (*Service, *flush.Tracker, *faultyStore) {
	store := newJSONLStore(t)
	tracker := flush.NewTracker()
	return NewService(store, Buffered{Tracker: tracker}), tracker, store
}

func TestCreate(t *testing.T) {
	svc, tracker, _ := newBuffered(t)
	ctx := t.Context()
	for want := int64(1); want <= 3; want++ {
		got, err := svc.Create(ctx, models.Song{ID: 77, PlayCount: 12, Title: "t", Artist: "a", Genre: "g"})
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != want || got.PlayCount != 0 {
			t.Errorf("Create = %+v, want id %d and play_count 0", got, want)
		}
		if !tracker.TakeIfDirty() {
			t.Error("Create did not mark the tracker dirty")
		}
	}
}

func TestPlay(t *testing.T) {
	svc, tracker, _ := newBuffered(t)
	ctx := t.Context()
	song, err := svc.Create(ctx, models.Song{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	tracker.TakeIfDirty()

	for want := int64(1); want <= 3; want++ {
		got, err := svc.Play(ctx, song.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.PlayCount != want {
			t.Errorf("Play returned play_count %d, want %d", got.PlayCount, want)
		}
		stored, err := svc.Get(ctx, song.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.PlayCount != want {
			t.Errorf("stored play_count %d, want %d", stored.PlayCount, want)
		}
		if !tracker.TakeIfDirty() {
			t.Error("Play did not mark the tracker dirty")
		}
	}

	if _, err := svc.Play(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Play(999) error = %v, want ErrNotFound", err)
	}
	if tracker.IsDirty() {
		t.Error("failed Play marked the tracker dirty")
	}
	if svc.locks.len() != 0 {
		t.Errorf("%d key locks leaked", svc.locks.len())
	}
}

func TestConcurrentPlays(t *testing.T) {
	stores := map[string]func(t *testing.T) storage.Store{
		"jsonl": func(t *testing.T) storage.Store { return newJSONLStore(t) },
		"bolt": func(t *testing.T) storage.Store {
			s, err := boltstore.Open(filepath.Join(t.TempDir(), "songs.db"))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			svc := NewService(open(t), Buffered{Tracker: flush.NewTracker()})
			ctx := t.Context()
			song, err := svc.Create(ctx, models.Song{Title: "hit"})
			if err != nil {
				t.Fatal(err)
			}
			other, err := svc.Create(ctx, models.Song{Title: "other"})
			if err != nil {
				t.Fatal(err)
			}
			const n = 100
			var wg sync.WaitGroup
			for i := range n {
				wg.Go(func() {
					id := song.ID
					if i%4 == 0 {
						id = other.ID
					}
					if _, err := svc.Play(ctx, id); err != nil {
						t.Error(err)
					}
				})
			}
			wg.Wait()
			got, err := svc.Get(ctx, song.ID)
			if err != nil {
				t.Fatal(err)
			}
			got2, err := svc.Get(ctx, other.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.PlayCount+got2.PlayCount != n || got2.PlayCount != n/4 {
				t.Errorf("lost updates: %d + %d plays, want %d", got.PlayCount, got2.PlayCount, n)
			}
		})
	}
}

func TestFailedWriteDoesNotCommit(t *testing.T) {
	svc, tracker, store := newBuffered(t)
	ctx := t.Context()
	song, err := svc.Create(ctx, models.Song{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	tracker.TakeIfDirty()

	store.failWrites.Store(true)
	if _, err := svc.Create(ctx, models.Song{Title: "u"}); !storage.IsStorageError(err) {
		t.Errorf("Create error = %v, want StorageError", err)
	}
	if _, err := svc.Play(ctx, song.ID); !errors.Is(err, errDisk) {
		t.Errorf("Play error = %v, want %v", err, errDisk)
	}
	if tracker.IsDirty() {
		t.Error("failed writes marked the tracker dirty")
	}
	store.failWrites.Store(false)
	got, err := svc.Get(ctx, song.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PlayCount != 0 {
		t.Errorf("failed Play changed play_count to %d", got.PlayCount)
	}
	if n, _ := svc.Count(ctx); n != 1 {
		t.Errorf("failed Create changed count to %d", n)
	}
}

func TestCanceledRequestDoesNotCommit(t *testing.T) {
	svc, tracker, _ := newBuffered(t)
	song, err := svc.Create(t.Context(), models.Song{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	tracker.TakeIfDirty()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := svc.Create(ctx, models.Song{Title: "u"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Create error = %v", err)
	}
	if _, err := svc.Play(ctx, song.ID); !errors.Is(err, context.Canceled) {
		t.Errorf("Play error = %v", err)
	}
	if tracker.IsDirty() {
		t.Error("canceled requests marked the tracker dirty")
	}
}

func TestSynchronousPolicy(t *testing.T) {
	store := newJSONLStore(t)
	svc := NewService(store, Synchronous{Store: store})
	if svc.PolicyName() != "sync" {
		t.Errorf("PolicyName() = %q", svc.PolicyName())
	}
	ctx := t.Context()
	song, err := svc.Create(ctx, models.Song{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Play(ctx, song.ID); err != nil {
		t.Fatal(err)
	}
	if got := store.flushes.Load(); got != 2 {
		t.Errorf("expected a flush per mutation, got %d", got)
	}
}

func TestSearch(t *testing.T) {
	svc, _, _ := newBuffered(t)
	ctx := t.Context()
	for _, s := range []models.Song{
		{Title: "Hey Jude", Artist: "The Beatles", Genre: "Rock"},
		{Title: "Let It Be", Artist: "The Beatles", Genre: "Rock"},
		{Title: "Jolene", Artist: "Dolly Parton", Genre: "Country"},
		{Title: "Heyday", Artist: "Mac DeMarco", Genre: "Indie Rock"},
	} {
		if _, err := svc.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"no filters", Filter{}, []int64{1, 2, 3, 4}},
		{"nil filter", nil, []int64{1, 2, 3, 4}},
		{"title case-insensitive", Filter{"title": "HEY"}, []int64{1, 4}},
		{"artist substring", Filter{"artist": "beatles"}, []int64{1, 2}},
		{"intersection", Filter{"title": "hey", "genre": "rock"}, []int64{1, 4}},
		{"intersection narrows", Filter{"artist": "the", "title": "let"}, []int64{2}},
		{"unknown key ignored", Filter{"album": "nothing", "genre": "country"}, []int64{3}},
		{"no match", Filter{"genre": "jazz"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Search(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if got == nil {
				t.Fatal("Search returned nil")
			}
			ids := make([]int64, len(got))
			for i, s := range got {
				ids[i] = s.ID
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("Search(%v) = %v, want %v", tt.filter, ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("Search(%v) = %v, want %v", tt.filter, ids, tt.want)
				}
			}
		})
	}
}

func TestSearchSeesUnflushedWrites(t *testing.T) {
	svc, tracker, _ := newBuffered(t)
	ctx := t.Context()
	song, err := svc.Create(ctx, models.Song{Title: "pending"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Play(ctx, song.ID); err != nil {
		t.Fatal(err)
	}
	if !tracker.IsDirty() {
		t.Fatal("expected pending flush")
	}
	got, err := svc.Search(ctx, Filter{"title": "pend"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].PlayCount != 1 {
		t.Errorf("Search = %+v", got)
	}
}

func TestKeyLocks(t *testing.T) {
	k := newKeyLocks()
	unlock1 := k.lock(1)
	unlock2 := k.lock(2)
	if k.len() != 2 {
		t.Errorf("len() = %d", k.len())
	}
	acquired := make(chan struct{})
	go func() {
		unlock := k.lock(1)
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("lock(1) acquired while held")
	default:
	}
	unlock1()
	<-acquired
	unlock2()
	if k.len() != 0 {
		t.Errorf("len() = %d after release", k.len())
	}
}

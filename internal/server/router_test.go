package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maruel/songdb/internal/catalog"
	"github.com/maruel/songdb/internal/flush"
	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/server/handlers"
	"github.com/maruel/songdb/internal/server/ratelimit"
	"github.com/maruel/songdb/internal/storage/boltstore"
)

type testServer struct {
	*httptest.Server
	tracker *flush.Tracker
}

func newTestServer(t *testing.T, limits *ratelimit.Config) *testServer {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "songs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	tracker := flush.NewTracker()
	scheduler := flush.NewScheduler(store, tracker, time.Hour, nil)
	svc := catalog.NewService(store, catalog.Buffered{Tracker: tracker})
	ts := httptest.NewServer(NewRouter(svc, &Config{
		Backend:        "bolt",
		Version:        "test",
		RequestTimeout: 5 * time.Second,
		RateLimit:      limits,
		Scheduler:      scheduler,
		Tracker:        tracker,
	}))
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, tracker: tracker}
}

// do sends a request and decodes the JSON response into out when non-nil.
func (ts *testServer) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestSongScenario(t *testing.T) {
	ts := newTestServer(t, nil)

	var s1 models.Song
	if code := ts.do(t, "POST", "/songs/new", `{"title":"Hey Jude","artist":"The Beatles","genre":"Rock"}`, &s1); code != http.StatusOK {
		t.Fatalf("create: status %d", code)
	}
	want := models.Song{ID: 1, Title: "Hey Jude", Artist: "The Beatles", Genre: "Rock"}
	if s1 != want {
		t.Errorf("created %+v, want %+v", s1, want)
	}
	if !ts.tracker.IsDirty() {
		t.Error("create did not schedule a flush")
	}

	var s2 models.Song
	if code := ts.do(t, "POST", "/songs/new", `{"title":"Let It Be","artist":"The Beatles","genre":"Rock","id":42,"play_count":7}`, &s2); code != http.StatusOK {
		t.Fatalf("create: status %d", code)
	}
	if s2.ID != 2 || s2.PlayCount != 0 {
		t.Errorf("second song = %+v, want id 2 and play_count 0", s2)
	}

	var played models.Song
	if code := ts.do(t, "GET", "/songs/play/1", "", &played); code != http.StatusOK {
		t.Fatalf("play: status %d", code)
	}
	if played.ID != 1 || played.PlayCount != 1 {
		t.Errorf("played %+v", played)
	}

	var found []models.Song
	if code := ts.do(t, "GET", "/songs/search?artist=beatles", "", &found); code != http.StatusOK {
		t.Fatalf("search: status %d", code)
	}
	if len(found) != 2 || found[0].ID != 1 || found[1].ID != 2 || found[0].PlayCount != 1 {
		t.Errorf("search returned %+v", found)
	}

	var got models.Song
	if code := ts.do(t, "GET", "/songs/2", "", &got); code != http.StatusOK || got.Title != "Let It Be" {
		t.Errorf("get: status %d, song %+v", code, got)
	}

	var e handlers.ErrorResponse
	if code := ts.do(t, "GET", "/songs/play/999", "", &e); code != http.StatusNotFound {
		t.Errorf("play 999: status %d", code)
	}
	if e.Error != "Song not found" {
		t.Errorf("play 999: error %q", e.Error)
	}
}

func TestSearchFilters(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, body := range []string{
		`{"title":"Hey Jude","artist":"The Beatles","genre":"Rock"}`,
		`{"title":"Jolene","artist":"Dolly Parton","genre":"Country"}`,
		`{"title":"Heyday","artist":"Mac DeMarco","genre":"Indie Rock"}`,
	} {
		if code := ts.do(t, "POST", "/songs/new", body, nil); code != http.StatusOK {
			t.Fatalf("create: status %d", code)
		}
	}
	tests := []struct {
		query string
		want  []int64
	}{
		{"", []int64{1, 2, 3}},
		{"?title=HEY", []int64{1, 3}},
		{"?title=hey&genre=indie", []int64{3}},
		{"?album=whatever&genre=country", []int64{2}},
		{"?title=", []int64{1, 2, 3}},
		{"?genre=jazz", []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var found []models.Song
			if code := ts.do(t, "GET", "/songs/search"+tt.query, "", &found); code != http.StatusOK {
				t.Fatalf("status %d", code)
			}
			if found == nil {
				t.Fatal("expected a JSON array, got null")
			}
			if len(found) != len(tt.want) {
				t.Fatalf("got %d songs, want %v", len(found), tt.want)
			}
			for i, s := range found {
				if s.ID != tt.want[i] {
					t.Errorf("got id %d at %d, want %v", s.ID, i, tt.want)
				}
			}
		})
	}
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	tests := []struct {
		name, method, path, body string
		status                   int
		message                  string
	}{
		{"non-integer id", "GET", "/songs/play/abc", "", http.StatusBadRequest, `Invalid id: "abc"`},
		{"overflowing id", "GET", "/songs/play/99999999999999999999", "", http.StatusBadRequest, `Invalid id: "99999999999999999999"`},
		{"unknown song", "GET", "/songs/7", "", http.StatusNotFound, "Song not found"},
		{"negative id", "GET", "/songs/play/-1", "", http.StatusNotFound, "Song not found"},
		{"malformed body", "POST", "/songs/new", `{"title":`, http.StatusBadRequest, "Invalid request body"},
		{"unknown field", "POST", "/songs/new", `{"title":"t","artist":"a","genre":"g","album":"x"}`, http.StatusBadRequest, "Invalid request body"},
		{"missing field", "POST", "/songs/new", `{"title":"t","artist":"a"}`, http.StatusBadRequest, "Missing required field: genre"},
		{"empty body", "POST", "/songs/new", "", http.StatusBadRequest, "Missing required field: title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e handlers.ErrorResponse
			if code := ts.do(t, tt.method, tt.path, tt.body, &e); code != tt.status {
				t.Errorf("status %d, want %d", code, tt.status)
			}
			if e.Error != tt.message {
				t.Errorf("error %q, want %q", e.Error, tt.message)
			}
		})
	}
	if ts.tracker.IsDirty() {
		t.Error("rejected requests scheduled a flush")
	}
}

func TestConcurrentPlaysOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	if code := ts.do(t, "POST", "/songs/new", `{"title":"t","artist":"a","genre":"g"}`, nil); code != http.StatusOK {
		t.Fatalf("create: status %d", code)
	}
	const n = 100
	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			resp, err := ts.Client().Get(ts.URL + "/songs/play/1")
			if err != nil {
				t.Error(err)
				return
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("play: status %d", resp.StatusCode)
			}
		})
	}
	wg.Wait()
	var got models.Song
	ts.do(t, "GET", "/songs/1", "", &got)
	if got.PlayCount != n {
		t.Errorf("play_count = %d, want %d", got.PlayCount, n)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "POST", "/songs/new", `{"title":"t","artist":"a","genre":"g"}`, nil)
	var h handlers.HealthResponse
	if code := ts.do(t, "GET", "/api/health", "", &h); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if h.Status != "ok" || h.Backend != "bolt" || h.Policy != "buffered" || h.Songs != 1 || !h.Pending || h.Flush == nil {
		t.Errorf("health = %+v", h)
	}
}

func TestPlainText(t *testing.T) {
	ts := newTestServer(t, nil)
	get := func(path string) string {
		resp, err := ts.Client().Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}
	if got := get("/"); !strings.HasPrefix(got, "Welcome") {
		t.Errorf("GET / = %q", got)
	}
	get("/count")
	if got := get("/count"); got != "Visit count: 2\n" {
		t.Errorf("GET /count = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	limits := ratelimit.NewConfig(1, 2)
	defer limits.Close()
	ts := newTestServer(t, limits)

	for i := range 2 {
		if code := ts.do(t, "POST", "/songs/new", `{"title":"t","artist":"a","genre":"g"}`, nil); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, code)
		}
	}
	var e handlers.ErrorResponse
	if code := ts.do(t, "GET", "/songs/play/1", "", &e); code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", code)
	}
	if e.Error != "Too many requests" {
		t.Errorf("error %q", e.Error)
	}
	// Reads are not limited.
	if code := ts.do(t, "GET", "/songs/search", "", nil); code != http.StatusOK {
		t.Errorf("search: status %d", code)
	}
}

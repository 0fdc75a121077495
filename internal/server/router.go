// Package server implements the HTTP routing of the song API.
package server

import (
	"net/http"
	"time"

	"github.com/maruel/songdb/internal/catalog"
	"github.com/maruel/songdb/internal/flush"
	"github.com/maruel/songdb/internal/server/handlers"
	"github.com/maruel/songdb/internal/server/ratelimit"
)

// Config holds what the router needs beyond the catalog.
type Config struct {
	Backend        string
	Version        string
	RequestTimeout time.Duration
	// RateLimit is nil to disable rate limiting.
	RateLimit *ratelimit.Config
	// Scheduler and Tracker are nil with the synchronous policy.
	Scheduler *flush.Scheduler
	Tracker   *flush.Tracker
}

// NewRouter creates and configures the HTTP router.
func NewRouter(svc *catalog.Service, cfg *Config) http.Handler {
	mux := &http.ServeMux{}
	sh := handlers.NewSongHandler(svc)
	hh := handlers.NewHealthHandler(svc, cfg.Scheduler, cfg.Tracker, cfg.Backend, cfg.Version)

	mux.Handle("GET /api/health", Wrap(hh.Health))

	mux.Handle("POST /songs/new", Wrap(sh.CreateSong))
	mux.Handle("GET /songs/search", Wrap(sh.SearchSongs))
	mux.Handle("GET /songs/play/{id}", Wrap(sh.PlaySong))
	mux.Handle("GET /songs/{id}", Wrap(sh.GetSong))

	mux.HandleFunc("GET /{$}", handlers.Welcome)
	mux.Handle("GET /count", &handlers.VisitCounter{})

	return withRateLimit(cfg.RateLimit, withTimeout(cfg.RequestTimeout, mux))
}

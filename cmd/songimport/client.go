package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/maruel/songdb/internal/models"
	"github.com/maruel/songdb/internal/server/handlers"
)

// client talks to the songdb HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

// createSong posts a song to /songs/new and returns the stored record.
func (c *client) createSong(ctx context.Context, t track) (*models.Song, error) {
	body, err := json.Marshal(handlers.CreateSongRequest{Title: &t.Title, Artist: &t.Artist, Genre: &t.Genre})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.baseURL, "/")+"/songs/new", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e handlers.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	song := &models.Song{}
	if err := json.Unmarshal(data, song); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return song, nil
}

type importResult struct {
	Imported int
	Failed   int
}

// importSongs posts every track with at most concurrency requests in flight.
// A failed song is logged and counted; only cancellation stops the import.
func importSongs(ctx context.Context, c *client, tracks []track, concurrency int) (importResult, error) {
	var imported, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, t := range tracks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			song, err := c.createSong(ctx, t)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				slog.WarnContext(ctx, "Failed to import song", "path", t.Path, "err", err)
				return nil
			}
			imported.Add(1)
			slog.DebugContext(ctx, "Imported song", "id", song.ID, "title", song.Title, "path", t.Path)
			return nil
		})
	}
	err := g.Wait()
	return importResult{Imported: int(imported.Load()), Failed: int(failed.Load())}, err
}

package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dhowden/tag"
)

// audioExts are the extensions dhowden/tag can read.
var audioExts = []string{".mp3", ".m4a", ".ogg", ".oga", ".flac"}

// track is a song found on disk.
type track struct {
	Path   string
	Title  string
	Artist string
	Genre  string
}

// scanDir walks root and returns one track per audio file, in lexical order.
func scanDir(ctx context.Context, root string) ([]track, error) {
	var out []track
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !slices.Contains(audioExts, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		out = append(out, readTrack(ctx, path))
		return nil
	})
	return out, err
}

// readTrack reads the tags of path. Missing tags fall back to the file name
// for the title and to placeholders for artist and genre.
func readTrack(ctx context.Context, path string) track {
	t := track{Path: path}
	if m, err := readTags(path); err != nil {
		slog.DebugContext(ctx, "No usable tags", "path", path, "err", err)
	} else {
		t.Title = m.Title()
		t.Artist = m.Artist()
		if a := m.AlbumArtist(); a != "" {
			t.Artist = a
		}
		t.Genre = m.Genre()
	}
	if t.Title == "" {
		t.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if t.Artist == "" {
		t.Artist = "unknown artist"
	}
	if t.Genre == "" {
		t.Genre = "unknown genre"
	}
	return t
}

func readTags(path string) (tag.Metadata, error) {
	f, err := os.Open(path) //nolint:gosec // G304: walking a user supplied directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return tag.ReadFrom(f)
}

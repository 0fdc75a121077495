package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/maruel/songdb/internal/config"
)

// watchConfig re-reads the configuration file whenever it changes and applies
// its log level to ll. Other settings need a restart. It returns when ctx is
// canceled.
//
// The directory is watched rather than the file so editors that replace the
// file on save keep triggering reloads.
func watchConfig(ctx context.Context, path string, ll *slog.LevelVar) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			reloadLogLevel(ctx, path, ll)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching config", "err", err)
		}
	}
}

func reloadLogLevel(ctx context.Context, path string, ll *slog.LevelVar) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		slog.WarnContext(ctx, "Ignoring config change", "path", path, "err", err)
		return
	}
	level, err := cfg.LogLevel()
	if err != nil {
		slog.WarnContext(ctx, "Ignoring config change", "path", path, "err", err)
		return
	}
	if level != ll.Level() {
		slog.InfoContext(ctx, "Log level changed", "from", ll.Level(), "to", level)
		ll.Set(level)
	}
}

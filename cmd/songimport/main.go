// Command songimport reads the tags of the audio files under a directory and
// adds each file as a song to a running songdb server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "songimport: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	serverURL := flag.String("server", "http://localhost:8080", "Base URL of the songdb server")
	dir := flag.String("dir", ".", "Directory to scan for audio files")
	concurrency := flag.Int("concurrency", 4, "Number of songs posted in parallel")
	dryRun := flag.Bool("dry-run", false, "Print the songs found without posting them")
	verbose := flag.Bool("v", false, "Log every song")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *concurrency < 1 {
		return errors.New("-concurrency must be at least 1")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	songs, err := scanDir(ctx, *dir)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Scanned directory", "dir", *dir, "songs", len(songs))
	if *dryRun {
		for _, s := range songs {
			fmt.Printf("%s\t%s\t%s\t%s\n", s.Path, s.Title, s.Artist, s.Genre)
		}
		return nil
	}

	c := &client{
		baseURL: *serverURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	res, err := importSongs(ctx, c, songs, *concurrency)
	slog.InfoContext(ctx, "Import finished", "imported", res.Imported, "failed", res.Failed)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d songs failed", res.Failed, len(songs))
	}
	return nil
}

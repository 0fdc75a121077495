// Command songdb serves a song catalog over HTTP.
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
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/maruel/songdb/internal/catalog"
	"github.com/maruel/songdb/internal/config"
	"github.com/maruel/songdb/internal/flush"
	"github.com/maruel/songdb/internal/server"
	"github.com/maruel/songdb/internal/server/ratelimit"
	"github.com/maruel/songdb/internal/storage/backends"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "songdb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "YAML configuration file; log level changes are applied live")
	httpAddr := flag.String("http", "", "Address to listen on (e.g., localhost:8080, :8080)")
	dataDir := flag.String("data-dir", "", "Data directory")
	backend := flag.String("backend", "", "Storage backend (bolt, sqlite, jsonl)")
	flushPolicy := flag.String("flush-policy", "", "Durability policy: buffered flushes in the background, sync flushes on every write")
	flushInterval := flag.Duration("flush-interval", 0, "Coalescing window of the buffered flush policy")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		printVersion()
		return nil
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	// Flags given on the command line win over the file.
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if explicit["http"] {
		cfg.Server.HTTP = *httpAddr
	}
	if explicit["data-dir"] {
		cfg.Storage.DataDir = *dataDir
	}
	if explicit["backend"] {
		cfg.Storage.Backend = *backend
	}
	if explicit["flush-policy"] {
		cfg.Storage.FlushPolicy = *flushPolicy
	}
	if explicit["flush-interval"] {
		cfg.Storage.FlushInterval = *flushInterval
	}
	if explicit["log-level"] {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	level, _ := cfg.LogLevel()
	ll.Set(level)
	slog.SetDefault(newLogger(ll))

	store, err := backends.Open(ctx, cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}

	buildVersion, _, _, _ := getBuildInfo()
	srvCfg := &server.Config{
		Backend:        cfg.Storage.Backend,
		Version:        buildVersion,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	var policy catalog.Policy
	if cfg.Storage.FlushPolicy == config.PolicySync {
		policy = catalog.Synchronous{Store: store}
	} else {
		srvCfg.Tracker = flush.NewTracker()
		srvCfg.Scheduler = flush.NewScheduler(store, srvCfg.Tracker, cfg.Storage.FlushInterval, slog.Default())
		policy = catalog.Buffered{Tracker: srvCfg.Tracker}
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		srvCfg.RateLimit = ratelimit.NewConfig(rl.WritesPerMinute, rl.Burst)
		defer srvCfg.RateLimit.Close()
	}
	svc := catalog.NewService(store, policy)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTP,
		Handler:           server.NewRouter(svc, srvCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	// The scheduler outlives the HTTP server so its final flush sees every
	// acknowledged write.
	schedCtx, stopScheduler := context.WithCancel(context.WithoutCancel(ctx))
	defer stopScheduler()
	if srvCfg.Scheduler != nil {
		g.Go(func() error { return srvCfg.Scheduler.Run(schedCtx) })
	}
	g.Go(func() error {
		slog.InfoContext(ctx, "Starting server", "addr", cfg.Server.HTTP, "backend", cfg.Storage.Backend, "policy", svc.PolicyName(), "version", buildVersion)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		stopScheduler()
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
		return nil
	})
	if *configPath != "" && !explicit["log-level"] {
		g.Go(func() error { return watchConfig(gctx, *configPath, ll) })
	}

	err = g.Wait()
	if err2 := store.Close(); err2 != nil {
		err = errors.Join(err, fmt.Errorf("failed to close store: %w", err2))
	}
	return err
}

// newLogger returns a tint logger on stderr that drops zero valued
// attributes.
func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("songdb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

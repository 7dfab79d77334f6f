package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/attendance/internal/attendance"
	"github.com/conorfennell/attendance/internal/auth"
	"github.com/conorfennell/attendance/internal/config"
	"github.com/conorfennell/attendance/internal/gitsource"
	"github.com/conorfennell/attendance/internal/participation"
	"github.com/conorfennell/attendance/internal/schedule"
	"github.com/conorfennell/attendance/internal/storage"
	gitsync "github.com/conorfennell/attendance/internal/sync"
	"github.com/conorfennell/attendance/internal/web"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	slog.SetDefault(slog.New(newLogHandler(cfg.Log)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("attendance stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// 2. Optional background sync of the data files
	var opts []storage.Option
	var dispatcher *gitsync.Dispatcher
	syncCtx, cancelSync := context.WithCancel(context.Background())
	defer cancelSync()
	if cfg.Sync.Enabled {
		pub := gitsource.NewPublisher(gitsource.Config{
			Dir:     cfg.DataDir,
			RepoURL: cfg.Sync.RepoURL,
			Token:   cfg.Sync.Token,
			Name:    cfg.Sync.Name,
			Email:   cfg.Sync.Email,
		})
		if cfg.Sync.PullOnStart {
			if err := pub.Pull(ctx); err != nil {
				slog.Warn("pull on start failed, serving local data", "error", err)
			}
		}
		dispatcher = gitsync.NewDispatcher(pub, gitsync.Options{
			QueueSize: cfg.Sync.QueueSize,
			Timeout:   cfg.Sync.Timeout,
		})
		go dispatcher.Run(syncCtx)
		opts = append(opts, storage.WithChangeFunc(dispatcher.Notify))
	}

	// 3. Open the record store
	policy, err := participation.ParsePolicy(cfg.CountingPolicy)
	if err != nil {
		return err
	}
	if policy == participation.PolicyFromCreation {
		opts = append(opts, storage.WithCreationDates())
	}
	store, err := openStore(cfg, opts...)
	if err != nil {
		return err
	}
	defer store.Close()

	// 4. Wire the services
	counter := participation.Counter{SchoolStart: cfg.SchoolStartDate(), Policy: policy}
	key, err := csrfKey(cfg.Web.CSRFKey)
	if err != nil {
		return err
	}
	deps := web.Deps{
		Auth:          auth.NewService(store),
		Schedule:      schedule.NewService(store),
		Ledger:        attendance.NewLedger(store),
		Participation: participation.NewService(store, counter),
		CSRFKey:       key,
		SecureCookies: cfg.Web.SecureCookies,
	}
	if dispatcher != nil {
		deps.Warnings = dispatcher
	}

	// 5. Serve until interrupted
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.NewServer(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", cfg.Addr, "data_dir", cfg.DataDir, "backend", cfg.Storage.Backend)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown failed", "error", err)
		}
	}

	// Flush pending pushes before exiting.
	if dispatcher != nil {
		cancelSync()
		<-dispatcher.Done()
	}
	return nil
}

func openStore(cfg *config.Config, opts ...storage.Option) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		path := cfg.Storage.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.DataDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		slog.Info("Opening SQLite store", "path", path)
		return storage.OpenSQLite(path, opts...)
	default:
		slog.Info("Opening CSV store", "dir", cfg.DataDir)
		return storage.OpenCSV(cfg.DataDir, opts...)
	}
}

// csrfKey returns the configured key, or a random one that lasts until restart.
func csrfKey(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate CSRF key: %w", err)
	}
	return key, nil
}

func newLogHandler(c config.Log) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

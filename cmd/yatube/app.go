package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/UkralStul/yatube/internal/config"
	"github.com/UkralStul/yatube/internal/live"
	"github.com/UkralStul/yatube/internal/media"
	"github.com/UkralStul/yatube/internal/seed"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/UkralStul/yatube/internal/storage/inmemory"
	"github.com/UkralStul/yatube/internal/storage/postgres"
	"github.com/UkralStul/yatube/internal/storage/sqlite"
	"github.com/UkralStul/yatube/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

// loadConfig читает окружение и накладывает флаги.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.storage != "" {
		cfg.Storage = opts.storage
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
		cfg.Port = ""
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}

// openStore открывает выбранное хранилище. Закрывать его нужно через
// возвращенный io.Closer.
func openStore(cfg *config.Config) (storage.Storage, io.Closer, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		s, err := postgres.New(cfg.DatabaseURL, cfg.SlogLevel() == slog.LevelDebug)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return s, s, nil
	case config.StorageSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, s, nil
	default:
		return inmemory.New(), nopCloser{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func runServe(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	store, closer, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.Info("starting server", slog.String("storage", cfg.Storage), slog.String("addr", cfg.ListenAddr()))

	if cfg.Storage == config.StorageInMemory {
		// Пустой сервер в памяти неудобно смотреть - заполняем демо-данными.
		if err := seedDefault(ctx, store); err != nil {
			return err
		}
	}

	sessions, err := auth.NewSessions([]byte(cfg.SessionSecret), cfg.SessionTTL, cfg.SecureCookies)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		slog.Warn("YATUBE_SESSION_SECRET is empty, sessions will not survive a restart")
	}
	mediaStore, err := media.New(cfg.MediaRoot)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cacheTTL := cfg.IndexCacheTTL
	if cacheTTL == 0 {
		cacheTTL = -1
	}
	handler, err := web.New(web.Options{
		Store:         store,
		Sessions:      sessions,
		Media:         mediaStore,
		Observer:      live.NewCommentObserver(),
		Registry:      registry,
		IndexCacheTTL: cacheTTL,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("url", "http://localhost"+cfg.ListenAddr()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runSeed(ctx context.Context, opts options, path string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.Storage == config.StorageInMemory {
		return errors.New("seeding in-memory storage has no effect; choose --storage postgres or sqlite")
	}
	store, closer, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	fixtures, err := loadFixtures(path)
	if err != nil {
		return err
	}
	res, err := seed.Apply(ctx, store, fixtures)
	if err != nil {
		return err
	}
	logSeedResult(res)
	return nil
}

func loadFixtures(path string) (*seed.Fixtures, error) {
	if path == "" {
		return seed.Default()
	}
	return seed.LoadFile(path)
}

func seedDefault(ctx context.Context, store storage.Storage) error {
	fixtures, err := seed.Default()
	if err != nil {
		return err
	}
	res, err := seed.Apply(ctx, store, fixtures)
	if err != nil {
		return fmt.Errorf("fill in-memory storage: %w", err)
	}
	logSeedResult(res)
	return nil
}

func logSeedResult(res seed.Result) {
	slog.Info("fixtures loaded",
		slog.Int("users", res.Users),
		slog.Int("groups", res.Groups),
		slog.Int("posts", res.Posts),
		slog.Int("comments", res.Comments),
		slog.Int("follows", res.Follows),
	)
}

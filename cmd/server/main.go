package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/funnet/funnet-server/internal/api"
	"github.com/funnet/funnet-server/internal/content"
	"github.com/funnet/funnet-server/internal/economy"
	"github.com/funnet/funnet-server/internal/leaderboard"
	"github.com/funnet/funnet-server/internal/ledger"
	"github.com/funnet/funnet-server/internal/platform/cache"
	"github.com/funnet/funnet-server/internal/platform/config"
	"github.com/funnet/funnet-server/internal/platform/database"
	"github.com/funnet/funnet-server/internal/progress"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	srv, cleanup, err := buildServer(ctx, cfg)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// buildServer wires the content tree, stores and services into the API
// server. The returned cleanup closes the database and cache connections.
func buildServer(ctx context.Context, cfg *config.Config) (*api.Server, func(), error) {
	cleanup := func() {}

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, cleanup, fmt.Errorf("connecting to database: %w", err)
	}
	cleanup = db.Close

	if err := database.Migrate(ctx, db.Pool); err != nil {
		return nil, cleanup, err
	}

	loader, err := content.NewLoader(cfg.Content.Path)
	if err != nil {
		return nil, cleanup, fmt.Errorf("loading content: %w", err)
	}
	catalog, err := economy.LoadCatalog(cfg.Shop.CatalogPath)
	if err != nil {
		return nil, cleanup, fmt.Errorf("loading shop catalog: %w", err)
	}

	progressStore, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, cleanup, err
	}
	ledgerStore, err := ledger.NewPostgresStore(db.Pool, cfg.Reward.LevelStep)
	if err != nil {
		return nil, cleanup, err
	}
	economyStore, err := economy.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, cleanup, err
	}

	ledgerSvc := ledger.NewService(ledgerStore, cfg.Reward.LessonXP)
	checks := map[string]api.HealthChecker{"database": db}

	// The cache is optional: without it the leaderboard and boost
	// tracking are disabled, the rest of the platform still runs.
	var board *leaderboard.Board
	var boosts *economy.BoostTracker
	if cfg.Cache.URL != "" {
		redisCache, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Warn("cache unavailable, leaderboard and boosts disabled", "error", err)
		} else {
			dbClose := cleanup
			cleanup = func() {
				redisCache.Close()
				dbClose()
			}
			board = leaderboard.NewBoard(redisCache.Client, ledgerSvc)
			boosts = economy.NewBoostTracker(redisCache.Client)
			checks["cache"] = redisCache
		}
	}

	economySvc := economy.NewService(catalog, economyStore, boosts)
	hub := api.NewHub()
	ledgerSvc.Subscribe(hub)
	if board != nil {
		ledgerSvc.Subscribe(board)
	}

	srv, err := api.NewServer(api.Options{
		Content:  loader,
		Progress: progressStore,
		Ledger:   ledgerSvc,
		Economy:  economySvc,
		Board:    board,
		Hub:      hub,
		Auth:     api.HeaderAuth{},
		Checks:   checks,
	})
	if err != nil {
		return nil, cleanup, err
	}
	return srv, cleanup, nil
}

func setupLogging(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

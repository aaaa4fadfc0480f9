// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/vebland/clipvault/internal/api"
	"github.com/vebland/clipvault/internal/cache"
	"github.com/vebland/clipvault/internal/history"
	"github.com/vebland/clipvault/internal/provider"
	"github.com/vebland/clipvault/internal/recordstore"
	"github.com/vebland/clipvault/internal/sse"
)

// Run starts the cache daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("cache_dir", cfg.Cache.Dir),
		slog.String("history_path", cfg.History.Path),
		slog.Int("retain", cfg.Cache.Retain),
		slog.String("log_level", cfg.App.LogLevel.String()))

	mgr, hist, err := buildCache(app, logger)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	// The index is never trusted across a restart; rebuild, then apply
	// the configured retention.
	if err := mgr.RebuildIndex(); err != nil {
		logger.Warn("initial index rebuild failed", slog.String("error", err.Error()))
	}
	if cfg.Cache.Retain > 0 {
		if err := mgr.Evict(cfg.Cache.Retain); err != nil {
			logger.Warn("startup eviction failed", slog.String("error", err.Error()))
		}
	}

	// SSE broker receives every index-mutating event.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	mgr.SetEventCallback(broker.PublishCacheEvent)

	apiRouter := api.NewRouter(mgr, hist, app.transcript,
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Cache.Retain)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the cache directory for out-of-band changes from other
	// process instances.
	g.Go(func() error {
		if err := cache.Watch(gCtx, mgr, logger, broker.PublishCacheEvent); err != nil {
			logger.Warn("watcher exited", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// buildCache wires the record store, history log, provider, and cache
// manager from the application options.
func buildCache(app *application, logger *slog.Logger) (*cache.Manager, *history.Log, error) {
	cfg := app.config

	store, err := recordstore.New(cfg.Cache.Dir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init record store: %w", err)
	}

	var hist *history.Log
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init history: %w", err)
		}
	}

	prov := app.provider
	if prov == nil {
		prov = provider.NewOEmbed(cfg.Provider.Endpoint, cfg.Provider.Timeout, logger)
	}

	mgr := cache.NewManager(store, prov, logger)
	if hist != nil {
		mgr.SetHistory(hist)
	}
	return mgr, hist, nil
}

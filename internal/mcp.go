package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/vebland/clipvault/internal/mcpserver"
)

// RunMCP serves the cache over MCP stdio instead of HTTP. Logs go to
// stderr so stdout stays clean for the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	mgr, hist, err := buildCache(app, logger)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	if err := mgr.RebuildIndex(); err != nil {
		logger.Warn("initial index rebuild failed", slog.String("error", err.Error()))
	}

	return mcpserver.New(mgr, hist).ServeStdio()
}

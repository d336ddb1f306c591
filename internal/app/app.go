// Package app provides the top-level application lifecycle for the
// screener engine. It wires together all dependencies (stores, caches,
// the quote oracle, blob storage, and the portfolio orchestrators) and
// runs the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dkovacs/screenerbot/internal/config"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, and blocks until the mode returns or the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting engine",
		slog.String("mode", a.cfg.Mode),
		slog.String("backend", a.cfg.Data.Backend),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "cycle":
		return a.CycleMode(ctx, deps)
	case "daemon":
		return a.DaemonMode(ctx, deps)
	case "report":
		return a.ReportMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is
// safe to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

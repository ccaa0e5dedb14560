package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hector-minka/collections-bridge/internal/config"
	"github.com/hector-minka/collections-bridge/internal/observability"
	"github.com/hector-minka/collections-bridge/internal/service"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  *http.Server
	Runner  *service.TaskRunner
	Runtime *observability.Runtime
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runner *service.TaskRunner, runtime *observability.Runtime) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Runner: runner, Runtime: runtime}
}

// Shutdown stops the HTTP server, waits for in-flight reconciliation tasks
// to drain, and flushes telemetry. Each step gets whatever remains of ctx.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := a.Server.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := a.Runner.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.Runtime.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

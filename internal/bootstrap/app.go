package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/firesight-in/firesight/internal/domain/prediction"
	"github.com/firesight-in/firesight/internal/infra/config"
	"github.com/firesight-in/firesight/internal/scheduler"
)

// App encapsulates the HTTP server and background job lifecycle.
type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	server      *http.Server
	sched       *scheduler.Scheduler
	predictions prediction.Service
}

// NewApp is used by Wire to build the runnable app. The scheduler may be nil
// when disabled.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, sched *scheduler.Scheduler, predictions prediction.Service) *App {
	return &App{
		cfg:         cfg,
		logger:      logger.With("component", "bootstrap"),
		server:      server,
		sched:       sched,
		predictions: predictions,
	}
}

// Run restores the last model snapshot, starts the HTTP server and the
// refresh scheduler, then blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	restoreCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	restored, err := a.predictions.Restore(restoreCtx)
	cancel()
	if err != nil {
		a.logger.Warn("model snapshot restore failed, starting without a model", "error", err)
	} else if !restored {
		a.logger.Info("no model snapshot found, training required before predictions")
	}

	if a.sched != nil {
		a.sched.Start()
		defer a.sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

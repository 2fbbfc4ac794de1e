// Package application wires configuration, logging, metrics, the backup
// store, and the save-directory monitor into the long-running watch process.
package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"d2r-save-guard/internal/config"
	"d2r-save-guard/internal/logging"
	"d2r-save-guard/internal/monitor"
	"d2r-save-guard/internal/store"
)

// Application represents the watch-mode process
type Application struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *store.Metrics
	store   *store.Store
	monitor *monitor.Monitor
}

// New builds the full application from a validated configuration
func New(cfg *config.Config, logger *logging.Logger) (*Application, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	metrics := store.NewMetrics()

	st, err := store.New(store.Options{
		BackupDir:         cfg.EffectiveBackupDir(),
		Compress:          cfg.EnableCompression,
		MaxBackupsPerFile: cfg.MaxBackupsPerFile,
		Cooldown:          cfg.Cooldown(),
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup store: %w", err)
	}
	st.Subscribe(store.NewLogEventHandler(logger))

	return &Application{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		store:   st,
		monitor: monitor.New(cfg, st, logger),
	}, nil
}

// Store exposes the backup store for callers that mix watch mode with
// direct operations.
func (app *Application) Store() *store.Store {
	return app.store
}

// Run blocks until ctx is canceled, watching the save directory and, when
// configured, serving metrics.
func (app *Application) Run(ctx context.Context) error {
	app.logger.WithFields(map[string]interface{}{
		"save_dir":   app.cfg.SaveDir,
		"backup_dir": app.cfg.EffectiveBackupDir(),
		"compress":   app.cfg.EnableCompression,
	}).Info("Save guard starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.monitor.Run(ctx)
	})

	if app.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return app.serveMetrics(ctx)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	app.logger.Info("Save guard stopped")
	return nil
}

func (app *Application) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.metrics.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              app.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	app.logger.Infof("Metrics listening on %s", app.cfg.MetricsAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

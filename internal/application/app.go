// Package application assembles the server process from configuration:
// store, views, ingress, import pipeline, export archive, drop folder,
// metrics and HTTP server, and runs them under one errgroup.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/staffgrid/internal/blob"
	"github.com/JonMunkholm/staffgrid/internal/config"
	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/download"
	"github.com/JonMunkholm/staffgrid/internal/dropfolder"
	"github.com/JonMunkholm/staffgrid/internal/importer"
	"github.com/JonMunkholm/staffgrid/internal/ingress"
	"github.com/JonMunkholm/staffgrid/internal/metrics"
	"github.com/JonMunkholm/staffgrid/internal/view"
	"github.com/JonMunkholm/staffgrid/internal/web"
)

// App is a fully wired server process. Archive, Metrics and DropFolder are
// nil when disabled.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store      *core.Store
	Hub        *web.Hub
	Views      *view.SyncManager
	Ingress    *ingress.Ingress
	Limiter    *core.ImportLimiter
	Importer   *importer.Pipeline
	Archive    blob.Store
	Metrics    *metrics.Metrics
	DropFolder *dropfolder.Watcher
	Server     *web.Server
}

// New builds every component. ctx bounds setup only (seed loading, archive
// client construction).
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	employees, err := core.LoadSeedFile(cfg.Seed.File)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	a.Store = core.NewStore()
	if err := a.Store.Seed(employees); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		a.Metrics.RegisterEmployeeCount(a.Store.Len)
	}

	a.Hub = web.NewHub(cfg.View.EventBuffer, logger)

	syncCfg := view.SyncConfig{
		Retry: view.RetryPolicy{
			Attempts:       cfg.View.RetryAttempts,
			InitialBackoff: cfg.View.RetryBackoff,
			MaxBackoff:     cfg.View.RetryMaxBackoff,
		},
		ActivationDelay: cfg.View.ActivationDelay,
		MaxParallel:     cfg.View.MaxParallel,
		Logger:          logger,
	}
	importCfg := importer.Config{
		MaxFileSize: cfg.Upload.MaxFileSize,
		Logger:      logger,
	}
	if a.Metrics != nil {
		syncCfg.Recorder = a.Metrics
		importCfg.Recorder = a.Metrics
	}

	a.Views = view.NewSyncManager(a.Hub, a.Store, syncCfg)
	a.Ingress = ingress.New(a.Store, a.Views, logger)

	a.Limiter = core.NewImportLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	importCfg.Limiter = a.Limiter
	a.Importer = importer.New(a.Store, importCfg)

	deps := web.Deps{
		Store:    a.Store,
		Views:    a.Views,
		Hub:      a.Hub,
		Ingress:  a.Ingress,
		Importer: a.Importer,
		Metrics:  a.Metrics,
	}

	if cfg.Export.ArchiveEnabled() {
		a.Archive, err = blob.Open(ctx, blob.Config{
			Driver: blob.Driver(cfg.Export.Driver),
			Dir:    cfg.Export.Dir,
			S3: blob.S3Config{
				Bucket:    cfg.Export.Bucket,
				Region:    cfg.Export.Region,
				Endpoint:  cfg.Export.Endpoint,
				PathStyle: cfg.Export.PathStyle,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("export archive: %w", err)
		}
		deps.Archive = &download.Archive{Store: a.Archive, Prefix: cfg.Export.Prefix}
		logger.Info("export archive enabled", "driver", a.Archive.Driver())
	}

	if cfg.DropFolder.Dir != "" {
		dfCfg := dropfolder.Config{
			Dir:         cfg.DropFolder.Dir,
			Debounce:    cfg.DropFolder.Debounce,
			Broadcaster: a.Views,
			Logger:      logger,
		}
		if a.Metrics != nil {
			dfCfg.Recorder = a.Metrics
		}
		a.DropFolder, err = dropfolder.New(a.Importer, dfCfg)
		if err != nil {
			return nil, err
		}
	}

	a.Server = web.NewServer(cfg, deps)
	return a, nil
}

// Run serves until ctx is done or a component fails, then shuts down:
// in-flight imports are given the shutdown timeout to finish before the
// server stops and live views are destroyed.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.Server.Start)

	g.Go(func() error {
		if err := a.Ingress.Run(gctx, a.Hub.Events()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.Views.RunResync(gctx, a.Config.View.ResyncInterval)
		return nil
	})

	if a.DropFolder != nil {
		g.Go(func() error { return a.DropFolder.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	a.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if st := a.Limiter.Status(); st.Active > 0 {
		a.Logger.Info("waiting for imports to complete", "active", st.Active)
		if err := a.Limiter.WaitForDrain(ctx); err != nil {
			a.Logger.Warn("imports did not complete in time", "error", err)
		}
	}

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	a.Views.Wait()
	if err := a.Views.DeactivateAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("deactivate views: %w", err))
	}
	return errors.Join(errs...)
}

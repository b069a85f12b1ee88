// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/chunk"
	"github.com/JakeFAU/location-crawler/internal/config"
	"github.com/JakeFAU/location-crawler/internal/crawler"
	"github.com/JakeFAU/location-crawler/internal/export"
	"github.com/JakeFAU/location-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/location-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/location-crawler/internal/location"
	"github.com/JakeFAU/location-crawler/internal/logging"
	"github.com/JakeFAU/location-crawler/internal/metrics"
	"github.com/JakeFAU/location-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/location-crawler/internal/resume"
	"github.com/JakeFAU/location-crawler/internal/sitemap"
	"github.com/JakeFAU/location-crawler/internal/storage"
	"github.com/JakeFAU/location-crawler/internal/storage/postgres"
)

// App holds the configuration, logger and shared request gate. Everything
// else is built on demand by the command that needs it.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	gate    *ratelimit.Gate
	closers []func() error
	stop    context.CancelFunc
	served  chan error
}

// NewApp loads configuration from cfgPath, builds the logger and starts the
// metrics endpoint when one is configured.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, err
	}
	return newWithLogger(ctx, cfg, logger), nil
}

func newWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) *App {
	a := &App{
		cfg:    cfg,
		logger: logger,
		gate:   ratelimit.FromSeconds(cfg.Location.MinSecondsBetweenRequests),
	}
	if cfg.Metrics.Addr != "" {
		serveCtx, stop := context.WithCancel(ctx)
		a.stop = stop
		a.served = make(chan error, 1)
		go func() { a.served <- metrics.Serve(serveCtx, cfg.Metrics.Addr, logger) }()
	}
	return a
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Engine wires a crawl engine for cfg.Type from configuration.
func (a *App) Engine(ctx context.Context, cfg crawler.Config) (*crawler.Engine, error) {
	store, err := a.ChunkStore(cfg.Type)
	if err != nil {
		return nil, err
	}
	filter, err := a.Filter(cfg.Type)
	if err != nil {
		return nil, err
	}
	f, err := a.Fetcher()
	if err != nil {
		return nil, err
	}
	deps := crawler.Deps{
		Fetcher: f,
		Store:   store,
		Planner: resume.New(store, filter, a.logger.Named("resume")),
		Filter:  filter,
	}
	if a.cfg.Export.RecordRuns {
		runs, err := a.RunStore(ctx)
		if err != nil {
			return nil, err
		}
		deps.Recorder = runs
	}
	return crawler.New(cfg, deps, a.logger)
}

// CrawlConfig derives the engine settings for typ from configuration.
func (a *App) CrawlConfig(typ location.Type) crawler.Config {
	return crawler.Config{
		Type:                 typ,
		ChunkSize:            a.cfg.Location.ChunkSize,
		MaxConsecutiveAbsent: a.cfg.Location.MaxConsecutiveAbsent,
		Lock:                 a.cfg.Location.Lock,
	}
}

// Filter loads the known-index filter for typ, or nil when disabled or absent.
func (a *App) Filter(typ location.Type) (*location.Filter, error) {
	if !a.cfg.Location.UseSitemapFilter {
		return nil, nil
	}
	filter, err := sitemap.LoadFilter(a.cfg.SitemapDir(), typ, a.logger.Named("sitemap"))
	if err != nil {
		return nil, fmt.Errorf("load sitemap filter: %w", err)
	}
	return filter, nil
}

// Fetcher builds the configured fetch strategy behind the shared gate.
func (a *App) Fetcher() (fetcher.Fetcher, error) {
	client := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.HTTPTimeout(),
	}, a.gate)
	mode, err := fetcher.ParseMode(a.cfg.Location.Mode)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("fetcher configured",
		zap.String("mode", string(mode)),
		zap.Duration("min_delay", a.gate.MinDelay()),
	)
	return fetcher.New(client, fetcher.Options{
		Mode:          mode,
		URLs:          fetcher.NewURLBuilder(a.cfg.HTTP.BaseURL, fetcher.Channel(a.cfg.Location.Channel), a.cfg.Location.Query),
		NameCacheSize: a.cfg.Location.NameCacheSize,
	}, a.logger.Named("fetcher"))
}

// ChunkStore opens the chunk directory for typ.
func (a *App) ChunkStore(typ location.Type) (*chunk.Store, error) {
	return chunk.NewStore(a.cfg.ChunkDir(), typ, a.logger.Named("chunk"))
}

// SitemapDownloader mirrors sitemaps into the configured directory.
func (a *App) SitemapDownloader(ctx context.Context) (*sitemap.Downloader, error) {
	store, err := a.localStore(ctx, a.cfg.SitemapDir())
	if err != nil {
		return nil, err
	}
	return sitemap.NewDownloader(sitemap.DownloaderConfig{
		RootURL:    a.cfg.Sitemap.RootURL,
		Categories: a.cfg.Sitemap.Types,
		Overwrite:  a.cfg.Sitemap.Overwrite,
		UserAgent:  a.cfg.HTTP.UserAgent,
		Timeout:    a.cfg.HTTPTimeout(),
	}, store, a.gate, a.logger)
}

// LocalWriter writes reports into dir.
func (a *App) LocalWriter(ctx context.Context, dir string) (*export.Writer, error) {
	store, err := a.localStore(ctx, dir)
	if err != nil {
		return nil, err
	}
	return export.NewWriter(store, a.logger), nil
}

func (a *App) localStore(ctx context.Context, dir string) (storage.BlobStore, error) {
	store, _, err := storage.Open(ctx, storage.Config{Backend: storage.BackendLocal, BaseDir: dir})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	return store, nil
}

// PublishWriter writes reports to the configured export backend.
func (a *App) PublishWriter(ctx context.Context) (*export.Writer, error) {
	store, closeFn, err := storage.Open(ctx, storage.Config{
		Backend: storage.Backend(a.cfg.Export.Backend),
		BaseDir: a.cfg.ExportDir(),
		Bucket:  a.cfg.Export.Bucket,
		Prefix:  a.cfg.Export.Prefix,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	return export.NewWriter(store, a.logger), nil
}

// RecordSink connects the Postgres record store, or returns nil when no DSN is configured.
func (a *App) RecordSink(ctx context.Context) (export.RecordSink, error) {
	if a.cfg.Export.PostgresDSN == "" {
		return nil, nil
	}
	pool, err := postgres.Connect(ctx, postgres.Config{DSN: a.cfg.Export.PostgresDSN})
	if err != nil {
		return nil, err
	}
	store, err := postgres.NewRecordStore(pool, a.cfg.Export.RecordsTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// RunStore connects the Postgres run log.
func (a *App) RunStore(ctx context.Context) (*postgres.RunStore, error) {
	pool, err := postgres.Connect(ctx, postgres.Config{DSN: a.cfg.Export.PostgresDSN})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	runs, err := postgres.NewRunStore(pool, a.cfg.Export.RunsTable)
	if err != nil {
		return nil, err
	}
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return runs, nil
}

// Close releases every service created through the App.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stop != nil {
		a.stop()
		if err := <-a.served; err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error shutting down services", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// Package cli builds the service from configuration for the leadflow command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/leadflow"
	"github.com/aretw0/leadflow/internal/config"
	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/adapters/crm"
	httpadapter "github.com/aretw0/leadflow/pkg/adapters/http"
	redisstore "github.com/aretw0/leadflow/pkg/adapters/redis"
	"github.com/aretw0/leadflow/pkg/catalog"
	"github.com/aretw0/leadflow/pkg/dispatch"
	"github.com/aretw0/leadflow/pkg/dynamic"
	"github.com/aretw0/leadflow/pkg/leads"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/aretw0/leadflow/pkg/session"
)

// App is a fully wired service.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Engine  *leadflow.Engine
	Catalog *catalog.Repository
	// Sessions is the Redis store when session.store=redis, nil otherwise.
	Sessions *redisstore.Store

	checks  []httpadapter.Option
	closers []func() error
}

// NewLogger builds the application logger from the log section.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logging.NewWithOptions(logging.Options{Level: level, Format: format}), nil
}

// OpenCatalog opens the configured catalog and imports its seed file, if any.
func OpenCatalog(ctx context.Context, cfg config.CatalogConfig, logger *slog.Logger) (*catalog.Repository, error) {
	var (
		repo *catalog.Repository
		err  error
	)
	if cfg.Path == "" {
		repo, err = catalog.OpenMemory()
	} else {
		repo, err = catalog.Open(cfg.Path, catalog.Config{BusyTimeout: cfg.BusyTimeout, MaxOpenConns: cfg.MaxOpenConns})
	}
	if err != nil {
		return nil, err
	}
	if cfg.Seed != "" {
		sum, err := repo.Import(ctx, cfg.Seed)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("seeding catalog: %w", err)
		}
		logger.Info("catalog seeded", "file", cfg.Seed, "inserted", sum.Inserted, "updated", sum.Updated)
	}
	return repo, nil
}

// SyncCatalog upserts the CRM's active courses into the configured catalog.
func SyncCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.UpsertSummary, error) {
	var sum catalog.UpsertSummary
	if cfg.Catalog.Path == "" {
		return sum, errors.New("catalog.path is not set; an in-memory catalog cannot be synced")
	}
	client, err := crm.New(cfg.CRM, crm.WithLogger(logger))
	if err != nil {
		return sum, fmt.Errorf("configuring crm: %w", err)
	}
	courses, err := client.ActiveCourses(ctx)
	if err != nil {
		return sum, fmt.Errorf("fetching crm courses: %w", err)
	}

	catCfg := cfg.Catalog
	catCfg.Seed = ""
	repo, err := OpenCatalog(ctx, catCfg, logger)
	if err != nil {
		return sum, err
	}
	defer repo.Close()

	sum, err = repo.Upsert(ctx, courses...)
	if err != nil {
		return sum, err
	}
	logger.Info("catalog synced from crm", "fetched", len(courses), "inserted", sum.Inserted, "updated", sum.Updated)
	return sum, nil
}

// NewRedisStore connects the session store described by cfg.
func NewRedisStore(cfg *config.Config) (*redisstore.Store, *goredis.Client) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := redisstore.NewFromClient(client,
		redisstore.WithPrefix(cfg.Redis.Prefix),
		redisstore.WithTTL(cfg.Session.TTL),
	)
	return store, client
}

// Build wires an App from cfg. Close releases everything it opened.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.closeResources()
		}
	}()

	repo, err := OpenCatalog(ctx, cfg.Catalog, logger)
	if err != nil {
		return nil, err
	}
	app.Catalog = repo
	app.closers = append(app.closers, repo.Close)
	app.checks = append(app.checks, httpadapter.WithHealthCheck("catalog", repo.Ping))

	opts := []leadflow.Option{
		leadflow.WithLogger(logger),
		leadflow.WithFlowDir(cfg.FlowsDir),
		leadflow.WithDefaultFlow(cfg.DefaultFlow),
		leadflow.WithMaxValueSize(cfg.MaxValueSize),
		leadflow.WithQueries(dynamic.CatalogQueries(repo,
			dynamic.WithYearSpan(cfg.Catalog.YearSpan),
			dynamic.WithFilterKeys(cfg.Catalog.Type1Key, cfg.Catalog.Type2Key),
		)...),
		leadflow.WithExecutorOptions(
			dispatch.WithWorkers(cfg.Executor.Workers),
			dispatch.WithQueueSize(cfg.Executor.QueueSize),
			dispatch.WithJobTimeout(cfg.Executor.JobTimeout),
		),
		leadflow.WithSessionOptions(session.WithLockTTL(cfg.Session.LockTTL)),
	}

	if cfg.Session.Store == config.StoreRedis {
		store, client := NewRedisStore(cfg)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		app.Sessions = store
		app.closers = append(app.closers, store.Close)
		app.checks = append(app.checks, httpadapter.WithHealthCheck("redis", store.Ping))
		opts = append(opts, leadflow.WithSessionStore(store))
		if cfg.Redis.DistributedLock {
			locker := redisstore.NewLocker(client, cfg.Redis.Prefix)
			opts = append(opts, leadflow.WithSessionOptions(session.WithLocker(locker)))
		}
	}

	creator, err := newLeadCreator(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, leadflow.WithLeadCreator(creator))

	if cfg.HTTP.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, leadflow.WithMetrics(reg))
	}

	eng, err := leadflow.New(opts...)
	if err != nil {
		return nil, err
	}
	app.Engine = eng
	return app, nil
}

func newLeadCreator(cfg *config.Config, logger *slog.Logger) (ports.LeadCreator, error) {
	builder := leads.NewBuilder(
		leads.WithCompany(cfg.Leads.Company),
		leads.WithLeadSource(cfg.Leads.LeadSource),
		leads.WithPrivacyValue(cfg.Leads.PrivacyValue),
	)
	if cfg.Leads.Sink != config.SinkCRM {
		return leads.NewLogCreator(builder, logger), nil
	}
	client, err := crm.New(cfg.CRM, crm.WithBuilder(builder), crm.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("configuring crm: %w", err)
	}
	return client, nil
}

// Handler returns the HTTP API with the configured middleware and health checks.
func (a *App) Handler() http.Handler {
	opts := append([]httpadapter.Option{
		httpadapter.WithAllowedOrigins(a.Config.HTTP.AllowedOrigins...),
		httpadapter.WithRateLimit(a.Config.HTTP.RateLimit, a.Config.HTTP.RateWindow),
		httpadapter.WithMaxBodyBytes(a.Config.HTTP.MaxBodyBytes),
	}, a.checks...)
	return a.Engine.Handler(opts...)
}

// Close drains lead jobs until ctx ends, then releases stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Engine != nil {
		if err := a.Engine.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining lead jobs: %w", err))
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

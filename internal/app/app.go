// Package app wires configuration into the repositories, providers and
// services shared by the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/adapter/memstore"
	"contentgen/internal/adapter/repo"
	"contentgen/internal/catalog"
	"contentgen/internal/diversity"
	"contentgen/internal/domain"
	httpapi "contentgen/internal/http"
	"contentgen/internal/http/handlers"
	"contentgen/internal/infra"
	"contentgen/internal/infra/credentials"
	"contentgen/internal/pipeline"
	"contentgen/internal/scheduler"
	"contentgen/internal/selection"
	"contentgen/internal/workerpool"
)

// Repos groups the persistence ports.
type Repos struct {
	Assets    domain.AssetRepository
	Scenarios domain.ScenarioRepository
	History   domain.HistoryRepository
	Slots     domain.SlotRepository
	Rules     domain.RuleRepository
	Configs   domain.ConfigRepository
	Audit     domain.AuditRepository
}

type Container struct {
	Config       *infra.Config
	Logger       zerolog.Logger
	Repos        Repos
	Catalog      *catalog.Loader
	Resolver     *diversity.Resolver
	Engine       *selection.Engine
	Orchestrator *pipeline.Orchestrator
	Pool         *workerpool.Pool
	Scheduler    *scheduler.Scheduler

	creds   *credentials.Store
	checks  map[string]handlers.Pinger
	closers []func() error
}

// Build connects the configured backends and assembles the services. Close
// must be called even when Build fails part way.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, checks: map[string]handlers.Pinger{}}

	if err := c.buildStore(ctx); err != nil {
		return c, err
	}
	if err := c.buildCaches(ctx); err != nil {
		return c, err
	}

	file, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return c, err
	}
	c.Catalog = catalog.NewLoader(file, c.Repos.Scenarios, logger)

	providers, err := c.buildProviders(ctx)
	if err != nil {
		return c, err
	}

	c.Orchestrator, err = pipeline.New(pipeline.Options{
		Slots:           c.Repos.Slots,
		Assets:          c.Repos.Assets,
		History:         c.Repos.History,
		Rules:           c.Repos.Rules,
		Catalog:         c.Catalog,
		Diversity:       c.Resolver,
		Engine:          c.Engine,
		Reasoning:       providers.reasoning,
		Images:          providers.images,
		Quality:         providers.quality,
		Approval:        providers.approval,
		Publisher:       providers.publisher,
		MaxAttempts:     cfg.Pipeline.MaxAttempts,
		MinQualityScore: cfg.Pipeline.MinQualityScore,
		AspectRatio:     cfg.Pipeline.AspectRatio,
		Seed:            cfg.Pipeline.Seed,
		RunTimeout:      cfg.Pipeline.RunTimeout,
		Logger:          logger,
	})
	if err != nil {
		return c, fmt.Errorf("pipeline: %w", err)
	}

	c.Pool = workerpool.New(workerpool.Options{
		Workers:   cfg.Scheduler.Concurrency,
		QueueSize: cfg.Scheduler.QueueSize,
		// the orchestrator applies its own run timeout; this only bounds a wedged task
		TaskTimeout: cfg.Pipeline.RunTimeout + time.Minute,
		Logger:      logger,
	})
	c.Scheduler, err = scheduler.New(scheduler.Options{
		Rules:        c.Repos.Rules,
		Slots:        c.Repos.Slots,
		Runner:       c.Orchestrator,
		Pool:         c.Pool,
		Location:     cfg.Location(),
		StallTimeout: cfg.Scheduler.StallTimeout,
		Logger:       logger,
	})
	if err != nil {
		return c, fmt.Errorf("scheduler: %w", err)
	}
	return c, nil
}

func (c *Container) buildStore(ctx context.Context) error {
	if c.Config.StoreDriver == "memory" {
		store := memstore.New()
		c.Repos = Repos{
			Assets:    store.Assets(),
			Scenarios: store.Scenarios(),
			History:   store.History(),
			Slots:     store.Slots(),
			Rules:     store.Rules(),
			Configs:   store.Configs(),
			Audit:     store.Audit(),
		}
		c.Logger.Warn().Msg("using in-memory store; state is lost on restart")
		return nil
	}

	pool, err := infra.NewDBPool(ctx, c.Config)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, func() error { pool.Close(); return nil })
	c.checks["database"] = pool

	runner := infra.NewSQLRunner(pool, c.Logger)
	c.creds = credentials.NewStore(runner)
	c.Repos = Repos{
		Assets:    repo.NewAssetRepository(runner),
		Scenarios: repo.NewScenarioRepository(runner),
		History:   repo.NewHistoryRepository(runner),
		Slots:     repo.NewSlotRepository(runner),
		Rules:     repo.NewRuleRepository(runner),
		Configs:   repo.NewConfigRepository(runner),
		Audit:     repo.NewAuditRepository(runner),
	}
	return nil
}

func variationDefaults(d infra.DiversityConfig) domain.VariationConfig {
	return domain.VariationConfig{
		Gaps: map[domain.Dimension]int{
			domain.DimensionScenario:    d.GapScenario,
			domain.DimensionTable:       d.GapTable,
			domain.DimensionHandStyle:   d.GapHandStyle,
			domain.DimensionComposition: d.GapComposition,
			domain.DimensionProduct:     d.GapProduct,
			domain.DimensionPlate:       d.GapPlate,
			domain.DimensionCup:         d.GapCup,
		},
		SpecialElementFrequency: d.SpecialElementFrequency,
	}
}

func loadCatalog(path string) (*catalog.File, error) {
	if path == "" {
		file, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("embedded catalog: %w", err)
		}
		return file, nil
	}
	file, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return file, nil
}

// Handler builds the HTTP surface over the container's services.
func (c *Container) Handler() http.Handler {
	app := &handlers.App{
		Scheduler: c.Scheduler,
		Slots:     c.Repos.Slots,
		Caches:    []handlers.Invalidator{c.Resolver, c.Engine},
		Checks:    c.checks,
		Logger:    c.Logger.With().Str("component", "http").Logger(),
	}
	opts := httpapi.RouterOptions{
		Logger:          c.Logger,
		RateLimitPerMin: c.Config.RateLimitPerMin,
		CORSOrigins:     c.Config.CORSOrigins,
		AdminToken:      c.Config.AdminToken,
	}
	if d := c.Config.Storage.Driver; d == "filesystem" || d == "" {
		opts.StaticDir = c.Config.Storage.Dir
	}
	return httpapi.NewRouter(app, opts)
}

// Close drains the worker pool and then releases backends in reverse order.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Pool != nil {
		if err := c.Pool.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain worker pool: %w", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hooplens/courtsource/internal/cache"
	"github.com/hooplens/courtsource/internal/catalog"
	"github.com/hooplens/courtsource/internal/engine"
	"github.com/hooplens/courtsource/internal/fetch"
	"github.com/hooplens/courtsource/internal/orchestrator"
	"github.com/hooplens/courtsource/internal/ratelimit"
	"github.com/hooplens/courtsource/internal/resilience"
)

// engineEnv holds the initialized stores, catalog, and engine needed by the
// get/datasets/cache/serve commands.
type engineEnv struct {
	Engine *engine.Engine
	Cache  *cache.Cache
	Health *orchestrator.Health
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
}

// initStore builds the durable cache tier selected by store.driver.
func initStore(ctx context.Context) (cache.Store, error) {
	switch cfg.Store.Driver {
	case "file":
		return cache.NewFileStore(cfg.Store.Dir)
	case "sqlite":
		return cache.NewSQLiteStore(cfg.Store.Path)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return cache.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the cache, rate limiter, breakers, method factory, and
// catalog, and builds the Engine. Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	c := cache.New(st)

	limiter := ratelimit.New(cfg.RateLimit.Sources, ratelimit.SourceLimit{
		PerSecond: cfg.RateLimit.DefaultPerSecond,
		Burst:     cfg.RateLimit.DefaultBurst,
	})

	breakers := resilience.NewSourceBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Breaker.ResetTimeoutSecs) * time.Second,
	})

	factoryOpts := []fetch.FactoryOption{
		fetch.WithBrowserTimeout(time.Duration(cfg.Browser.TimeoutSecs) * time.Second),
	}
	for name, bc := range cfg.Bridge.Commands {
		factoryOpts = append(factoryOpts, fetch.WithBridge(name, fetch.BridgeCommand{
			Command: bc.Command,
			Args:    bc.Args,
			Timeout: time.Duration(bc.TimeoutSecs) * time.Second,
		}))
	}
	httpClient := fetch.NewHTMLClient(time.Duration(cfg.HTTP.TimeoutSecs) * time.Second)
	factory := fetch.NewFactory(httpClient, nil, factoryOpts...)

	registry := catalog.NewRegistry(cfg.Catalog.PromoteThreshold)
	catalog.Seed(registry)
	if cfg.Catalog.DefinitionsPath != "" {
		if err := catalog.LoadDefinitions(registry, cfg.Catalog.DefinitionsPath); err != nil {
			_ = c.Close()
			return nil, eris.Wrap(err, "load catalog definitions")
		}
		zap.L().Info("catalog definitions loaded", zap.String("path", cfg.Catalog.DefinitionsPath))
	}

	health := orchestrator.NewHealth()
	orch := orchestrator.New(limiter, c, health,
		orchestrator.WithRetryConfig(resilience.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Retry.InitialMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffSecs) * time.Second,
		}),
		orchestrator.WithBreakers(breakers),
	)

	eng := engine.New(registry, factory, orch, c, health, cfg.Cache.TTL())

	return &engineEnv{Engine: eng, Cache: c, Health: health}, nil
}

// Package engine is the unified query surface: it ties the filter compiler,
// the capability catalog, the orchestrator and the normalizer together behind
// GetDataset.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hooplens/courtsource/internal/cache"
	"github.com/hooplens/courtsource/internal/catalog"
	"github.com/hooplens/courtsource/internal/fetch"
	"github.com/hooplens/courtsource/internal/filter"
	"github.com/hooplens/courtsource/internal/normalize"
	"github.com/hooplens/courtsource/internal/orchestrator"
	"github.com/hooplens/courtsource/internal/table"
)

// Request is one dataset query.
type Request struct {
	League  string
	Dataset string
	// Filters are raw caller-supplied filters; validation happens before
	// any network activity.
	Filters map[string]any
	// Columns optionally restricts the returned table.
	Columns []string
	// Limit optionally caps the number of returned rows.
	Limit int
	// AllowStale serves a lazily-expired cache entry when every fresh
	// attempt fails.
	AllowStale bool
}

// Meta is the provenance attached to every result. Capability is surfaced,
// never silently upgraded: a LIMITED result is still data.
type Meta struct {
	MethodUsed string
	Capability catalog.Capability
	Signature  string
	Stale      bool
	Warning    string
	Confirmed  bool
	FromCache  bool
}

// Engine is the process-wide query entry point. Construct once, inject
// everywhere; safe for concurrent use.
type Engine struct {
	registry *catalog.Registry
	factory  *fetch.Factory
	orch     *orchestrator.Orchestrator
	cache    *cache.Cache
	health   *orchestrator.Health
	ttl      time.Duration
}

// New assembles an engine. ttl <= 0 disables expiry.
func New(registry *catalog.Registry, factory *fetch.Factory, orch *orchestrator.Orchestrator, c *cache.Cache, health *orchestrator.Health, ttl time.Duration) *Engine {
	return &Engine{
		registry: registry,
		factory:  factory,
		orch:     orch,
		cache:    c,
		health:   health,
		ttl:      ttl,
	}
}

// GetDataset resolves one query: validate, compile, fetch-or-cache,
// normalize, mask, project. Pure read; upstreams are never mutated.
func (e *Engine) GetDataset(ctx context.Context, req Request) (*table.Table, *Meta, error) {
	desc, err := e.registry.Resolve(req.League, req.Dataset)
	if err != nil {
		return nil, nil, err
	}

	spec, err := filter.Validate(req.Filters, req.League)
	if err != nil {
		return nil, nil, err
	}
	compiled, err := filter.Compile(spec, desc.Dataset, desc.Supported)
	if err != nil {
		return nil, nil, err
	}

	sig := cache.Signature(desc.League, desc.Dataset, compiled.Canonical())

	schema, ok := normalize.SchemaFor(desc.Dataset)
	if !ok {
		// Datasets registered from definitions without a built-in schema
		// still normalize on their declared keys.
		schema = normalize.Schema{
			Dataset: desc.Dataset,
			Columns: desc.KeyColumns,
			Keys:    desc.KeyColumns,
		}
	}

	steps := e.buildChain(desc)

	res, err := e.orch.Fetch(ctx, &orchestrator.Request{
		League:     desc.League,
		Dataset:    desc.Dataset,
		Season:     spec.Season,
		Signature:  sig,
		Compiled:   compiled,
		Chain:      steps,
		Schema:     schema,
		TTL:        e.ttl,
		AllowStale: req.AllowStale,
	})
	if err != nil {
		return nil, nil, err
	}

	tbl := res.Table
	if len(req.Columns) > 0 {
		tbl, err = tbl.Select(req.Columns)
		if err != nil {
			return nil, nil, err
		}
	}
	if req.Limit > 0 {
		tbl = tbl.Head(req.Limit)
	}

	return tbl, &Meta{
		MethodUsed: res.Method,
		Capability: desc.Capability,
		Signature:  sig,
		Stale:      res.Stale,
		Warning:    res.Warning,
		Confirmed:  res.Confirmed,
		FromCache:  res.FromCache,
	}, nil
}

// buildChain materializes the descriptor's method chain. Methods the factory
// cannot build (no renderer, no bridge binary) are dropped from the chain;
// the rest still serve.
func (e *Engine) buildChain(desc *catalog.Descriptor) []orchestrator.Step {
	steps := make([]orchestrator.Step, 0, len(desc.Chain))
	for _, spec := range desc.Chain {
		m, err := e.factory.Build(spec)
		if err != nil {
			zap.L().Debug("method unavailable",
				zap.String("league", desc.League),
				zap.String("dataset", desc.Dataset),
				zap.String("method", spec.Name),
				zap.Error(err))
			continue
		}
		steps = append(steps, orchestrator.Step{Method: m, Vocab: spec.Vocab})
	}
	return steps
}

// ListDatasets returns catalog descriptors, optionally restricted to one
// league. Empty league lists everything.
func (e *Engine) ListDatasets(league string) []*catalog.Descriptor {
	return e.registry.List(league)
}

// Health exposes the readiness side-channel.
func (e *Engine) Health() *orchestrator.Health {
	return e.health
}

// InvalidateCache drops every cached entry for a (league, dataset) pair and
// returns how many durable entries went away.
func (e *Engine) InvalidateCache(ctx context.Context, league, dataset string) (int, error) {
	return e.cache.InvalidatePrefix(ctx, league, dataset)
}

// Prefetch warms the cache for a batch of requests with bounded concurrency.
// Individual failures are logged and counted, not fatal: a warm-up is best
// effort.
func (e *Engine) Prefetch(ctx context.Context, reqs []Request, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	failed := make([]error, len(reqs))
	for i, req := range reqs {
		g.Go(func() error {
			if _, _, err := e.GetDataset(ctx, req); err != nil {
				failed[i] = err
				zap.L().Warn("prefetch failed",
					zap.String("league", req.League),
					zap.String("dataset", req.Dataset),
					zap.Error(err))
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	warmed := 0
	for _, ferr := range failed {
		if ferr == nil {
			warmed++
		}
	}
	return warmed, nil
}

// Package orchestrator executes a dataset's fallback chain: per-method retry,
// error-kind driven advancement, cache consultation and single-flight
// coalescing per request signature.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hooplens/courtsource/internal/cache"
	"github.com/hooplens/courtsource/internal/fetch"
	"github.com/hooplens/courtsource/internal/filter"
	"github.com/hooplens/courtsource/internal/normalize"
	"github.com/hooplens/courtsource/internal/ratelimit"
	"github.com/hooplens/courtsource/internal/resilience"
	"github.com/hooplens/courtsource/internal/table"
)

// Error kinds recorded in the attempt trail.
const (
	KindTransient   = "transient"
	KindBlocked     = "blocked"
	KindParse       = "parse"
	KindSchema      = "schema_mismatch"
	KindNotFound    = "not_found"
	KindCircuitOpen = "circuit_open"
	KindSkipped     = "skipped_after_block"
	KindError       = "error"
)

// MethodCache names the pseudo-method reported when a request is satisfied
// from cache without touching any upstream.
const MethodCache = "cache"

// Attempt is one entry in a request's trail: which method ran, how it ended.
type Attempt struct {
	Method   string
	SourceID string
	Kind     string
	Error    string
	Tries    int
	Duration time.Duration
}

// ChainExhaustedError reports that every method in the chain failed. The
// trail explains which methods were tried and why each one gave up.
type ChainExhaustedError struct {
	League    string
	Dataset   string
	Signature string
	Attempts  []Attempt
}

func (e *ChainExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "orchestrator: all methods failed for %s/%s (sig %.12s):", e.League, e.Dataset, e.Signature)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, " [%s %s", a.Method, a.Kind)
		if a.Error != "" {
			fmt.Fprintf(&b, ": %s", a.Error)
		}
		b.WriteString("]")
	}
	return b.String()
}

// Step pairs an executable method with the filter vocabulary its upstream
// speaks.
type Step struct {
	Method fetch.Method
	Vocab  string
}

// Request is one resolved fetch: the chain comes from the catalog, the
// compiled filters from the caller, the schema from the dataset.
type Request struct {
	League      string
	Competition string
	Dataset     string
	Season      string
	Signature   string
	Compiled    *filter.Compiled
	Chain       []Step
	Schema      normalize.Schema
	TTL         time.Duration
	AllowStale  bool
}

// Result is a resolved request: the canonical table plus provenance.
type Result struct {
	Table *table.Table
	// Method that satisfied the request; MethodCache for cache hits.
	Method string
	// Stale marks a lazily-expired entry served under AllowStale.
	Stale bool
	// Warning carries the stale-data explanation when Stale is set.
	Warning string
	// Confirmed marks a definitive upstream not-found resolved as an
	// empty table.
	Confirmed bool
	FromCache bool
}

// Orchestrator drives fallback chains. One per engine; safe for concurrent
// use. Distinct signatures run fully in parallel, identical signatures
// coalesce onto one in-flight fetch.
type Orchestrator struct {
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	breakers *resilience.SourceBreakers
	health   *Health
	retry    resilience.RetryConfig

	// fetchTimeout bounds one whole chain run, independent of any caller's
	// deadline: waiters detach, the fetch itself must not run forever.
	fetchTimeout time.Duration

	flight singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryConfig overrides the per-method retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithBreakers supplies the per-source circuit breakers.
func WithBreakers(sb *resilience.SourceBreakers) Option {
	return func(o *Orchestrator) { o.breakers = sb }
}

// WithFetchTimeout bounds a full chain run.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.fetchTimeout = d }
}

// New creates an orchestrator over the given limiter and cache.
func New(limiter *ratelimit.Limiter, c *cache.Cache, health *Health, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		limiter:      limiter,
		cache:        c,
		health:       health,
		retry:        resilience.DefaultRetryConfig(),
		breakers:     resilience.NewSourceBreakers(resilience.DefaultCircuitBreakerConfig()),
		fetchTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fetch resolves one request: fresh cache hit, else at most one upstream
// chain run shared by all concurrent callers of the same signature. A stale
// entry is served, flagged, only when the fresh run exhausts the chain and
// the caller opted in.
func (o *Orchestrator) Fetch(ctx context.Context, req *Request) (*Result, error) {
	key := cache.Key{
		League:    req.League,
		Dataset:   req.Dataset,
		Season:    req.Season,
		Signature: req.Signature,
	}

	var stale *cache.Entry
	if entry, fresh, found := o.cache.Get(ctx, key); found {
		if fresh {
			o.health.RecordSuccess(req.League, req.Dataset, entry.Method, false)
			return &Result{
				Table:     entry.Table,
				Method:    MethodCache,
				FromCache: true,
			}, nil
		}
		if req.AllowStale {
			stale = entry
		}
	}

	ch := o.flight.DoChan(req.Signature, func() (any, error) {
		// Detached from the triggering caller: other waiters may still
		// want the result after that caller gives up.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.fetchTimeout)
		defer cancel()
		return o.runChain(fctx, req, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var exhausted *ChainExhaustedError
			if errors.As(res.Err, &exhausted) && stale != nil {
				o.health.RecordSuccess(req.League, req.Dataset, stale.Method, true)
				return &Result{
					Table:   stale.Table,
					Method:  stale.Method,
					Stale:   true,
					Warning: staleWarning(stale),
				}, nil
			}
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

func staleWarning(e *cache.Entry) string {
	return fmt.Sprintf("serving stale data fetched %s via %s; all fresh attempts failed",
		e.FetchedAt.UTC().Format(time.RFC3339), e.Method)
}

// runChain walks the fallback chain, classifying each method's failure and
// advancing accordingly.
func (o *Orchestrator) runChain(ctx context.Context, req *Request, key cache.Key) (*Result, error) {
	log := zap.L().With(
		zap.String("fetch_id", uuid.NewString()),
		zap.String("league", req.League),
		zap.String("dataset", req.Dataset),
		zap.String("signature", req.Signature[:min(12, len(req.Signature))]),
	)

	var trail []Attempt
	i := 0
	for i < len(req.Chain) {
		step := req.Chain[i]
		method := step.Method
		started := time.Now()

		breaker := o.breakers.Get(method.SourceID())
		if err := breaker.Allow(); err != nil {
			trail = append(trail, Attempt{
				Method:   method.Name(),
				SourceID: method.SourceID(),
				Kind:     KindCircuitOpen,
				Error:    err.Error(),
			})
			i++
			continue
		}

		params := req.Compiled.ParamsFor(step.Vocab)

		tries := 0
		cfg := o.retry
		cfg.OnRetry = resilience.RetryLogger(method.SourceID(), method.Name())
		rows, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (fetch.Rows, error) {
			tries++
			if aerr := o.limiter.Acquire(ctx, method.SourceID()); aerr != nil {
				return nil, aerr
			}
			return method.Execute(ctx, fetch.Params(params))
		})
		elapsed := time.Since(started)

		if err == nil {
			tbl, nerr := normalize.Build(rows, req.Schema, normalize.Context{
				League:      req.League,
				Competition: competitionOf(req),
				Season:      req.Season,
			})
			if nerr == nil {
				breaker.Record(nil)
				tbl = req.Compiled.Mask(tbl)
				o.publish(ctx, req, key, method.Name(), tbl, log)
				log.Info("chain resolved",
					zap.String("method", method.Name()),
					zap.Int("rows", tbl.Len()),
					zap.Duration("took", elapsed))
				return &Result{Table: tbl, Method: method.Name()}, nil
			}
			// Payload arrived but cannot fill the schema: fatal for this
			// method only.
			err = nerr
		}

		kind := classify(err)
		trail = append(trail, Attempt{
			Method:   method.Name(),
			SourceID: method.SourceID(),
			Kind:     kind,
			Error:    err.Error(),
			Tries:    tries,
			Duration: elapsed,
		})

		switch kind {
		case KindNotFound:
			// Definitive: the slice of data does not exist upstream.
			// Terminal for the whole chain, resolved as a valid empty table.
			empty, nerr := normalize.Build(nil, req.Schema, normalize.Context{
				League:      req.League,
				Competition: competitionOf(req),
				Season:      req.Season,
			})
			if nerr != nil {
				return nil, nerr
			}
			o.publish(ctx, req, key, method.Name(), empty, log)
			log.Info("confirmed empty", zap.String("method", method.Name()))
			return &Result{Table: empty, Method: method.Name(), Confirmed: true}, nil

		case KindBlocked:
			breaker.Record(err)
			// When the chain has a browser method, the intermediate
			// plain-HTTP methods will hit the same wall; jump straight
			// past them. Without one, advance normally.
			if j := nextBrowser(req.Chain, i+1); j >= 0 {
				for k := i + 1; k < j; k++ {
					trail = append(trail, Attempt{
						Method:   req.Chain[k].Method.Name(),
						SourceID: req.Chain[k].Method.SourceID(),
						Kind:     KindSkipped,
					})
				}
				i = j
			} else {
				i++
			}

		case KindTransient:
			breaker.Record(err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			i++

		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			i++
		}

		log.Warn("method failed",
			zap.String("method", method.Name()),
			zap.String("kind", kind),
			zap.Int("tries", tries),
			zap.Error(err))
	}

	exhausted := &ChainExhaustedError{
		League:    req.League,
		Dataset:   req.Dataset,
		Signature: req.Signature,
		Attempts:  trail,
	}
	o.health.RecordFailure(req.League, req.Dataset, lastKind(trail), exhausted.Error())
	return nil, exhausted
}

// publish writes a freshly fetched table to the cache and the health
// registry. Cache failures are logged, never surfaced: the caller has the
// data in hand.
func (o *Orchestrator) publish(ctx context.Context, req *Request, key cache.Key, method string, tbl *table.Table, log *zap.Logger) {
	err := o.cache.Put(ctx, &cache.Entry{
		Key:       key,
		Table:     tbl,
		Method:    method,
		FetchedAt: time.Now(),
		TTL:       req.TTL,
	})
	if err != nil {
		log.Warn("cache write failed", zap.Error(err))
	}
	o.health.RecordSuccess(req.League, req.Dataset, method, false)
}

func competitionOf(req *Request) string {
	if req.Competition != "" {
		return req.Competition
	}
	return req.League
}

// classify maps a method failure onto the trail's error kinds.
func classify(err error) string {
	var (
		blocked   *fetch.BlockedError
		parse     *fetch.ParseError
		notFound  *fetch.NotFoundError
		schema    *normalize.SchemaMismatchError
		rlTimeout *ratelimit.TimeoutError
	)
	switch {
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &blocked):
		return KindBlocked
	case errors.As(err, &parse):
		return KindParse
	case errors.As(err, &schema):
		return KindSchema
	case errors.As(err, &rlTimeout):
		return KindTransient
	case resilience.IsTransient(err):
		return KindTransient
	default:
		return KindError
	}
}

// nextBrowser returns the index of the first browser-capable method at or
// after from, or -1.
func nextBrowser(chain []Step, from int) int {
	for j := from; j < len(chain); j++ {
		if chain[j].Method.Browser() {
			return j
		}
	}
	return -1
}

func lastKind(trail []Attempt) string {
	if len(trail) == 0 {
		return KindError
	}
	return trail[len(trail)-1].Kind
}

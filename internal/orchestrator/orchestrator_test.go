package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplens/courtsource/internal/cache"
	"github.com/hooplens/courtsource/internal/fetch"
	"github.com/hooplens/courtsource/internal/filter"
	"github.com/hooplens/courtsource/internal/normalize"
	"github.com/hooplens/courtsource/internal/ratelimit"
	"github.com/hooplens/courtsource/internal/resilience"
	"github.com/hooplens/courtsource/internal/table"
)

// mockMethod implements fetch.Method with a programmable outcome.
type mockMethod struct {
	name     string
	sourceID string
	browser  bool
	calls    atomic.Int32
	execute  func(ctx context.Context, params fetch.Params) (fetch.Rows, error)
}

func (m *mockMethod) Name() string     { return m.name }
func (m *mockMethod) SourceID() string { return m.sourceID }
func (m *mockMethod) Browser() bool    { return m.browser }

func (m *mockMethod) Execute(ctx context.Context, params fetch.Params) (fetch.Rows, error) {
	m.calls.Add(1)
	return m.execute(ctx, params)
}

func succeedWith(rows fetch.Rows) func(context.Context, fetch.Params) (fetch.Rows, error) {
	return func(context.Context, fetch.Params) (fetch.Rows, error) { return rows, nil }
}

func failWith(err error) func(context.Context, fetch.Params) (fetch.Rows, error) {
	return func(context.Context, fetch.Params) (fetch.Rows, error) { return nil, err }
}

var testRows = fetch.Rows{
	{"GAME_ID": "G1", "EVENT_ID": "1"},
	{"GAME_ID": "G1", "EVENT_ID": "2"},
}

var testSchema = normalize.Schema{
	Dataset: "shots",
	Columns: []string{"GAME_ID", "EVENT_ID"},
	Keys:    []string{"GAME_ID", "EVENT_ID"},
}

func testCompiled(t *testing.T) *filter.Compiled {
	t.Helper()
	spec, err := filter.Validate(map[string]any{"season": "2023-24"}, "LKL")
	require.NoError(t, err)
	c, err := filter.Compile(spec, "shots", map[string]bool{filter.FieldSeason: true})
	require.NoError(t, err)
	return c
}

func testOrchestrator(t *testing.T) (*Orchestrator, *cache.Cache, *Health) {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := cache.New(store)
	t.Cleanup(func() { _ = c.Close() })

	health := NewHealth()
	limiter := ratelimit.New(nil, ratelimit.SourceLimit{PerSecond: 10000, Burst: 1000})
	o := New(limiter, c, health, WithRetryConfig(resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}))
	return o, c, health
}

func testRequest(t *testing.T, chain []Step) *Request {
	t.Helper()
	compiled := testCompiled(t)
	return &Request{
		League:    "LKL",
		Dataset:   "shots",
		Season:    "2023-24",
		Signature: cache.Signature("LKL", "shots", compiled.Canonical()),
		Compiled:  compiled,
		Chain:     chain,
		Schema:    testSchema,
		TTL:       time.Hour,
	}
}

func TestFetch_FallbackOrdering(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	a := &mockMethod{name: "a", sourceID: "src_a",
		execute: failWith(&fetch.BlockedError{Method: "a", StatusCode: 403, Block: fetch.BlockForbidden})}
	b := &mockMethod{name: "b", sourceID: "src_b",
		execute: failWith(resilience.NewTransientError(assert.AnError, 503))}
	c := &mockMethod{name: "c", sourceID: "src_c", execute: succeedWith(testRows)}

	req := testRequest(t, []Step{
		{Method: a, Vocab: filter.VocabNone},
		{Method: b, Vocab: filter.VocabNone},
		{Method: c, Vocab: filter.VocabNone},
	})

	res, err := o.Fetch(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "c", res.Method)
	assert.Equal(t, 2, res.Table.Len())
	assert.Equal(t, int32(1), a.calls.Load(), "blocked method is not retried")
	assert.Equal(t, int32(2), b.calls.Load(), "transient method exhausts its retries")
	assert.Equal(t, int32(1), c.calls.Load(), "winning method runs exactly once")
}

func TestFetch_BlockedJumpsToBrowserMethod(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	a := &mockMethod{name: "a", sourceID: "src_a",
		execute: failWith(&fetch.BlockedError{Method: "a", StatusCode: 403, Block: fetch.BlockCloudflare})}
	skipped := &mockMethod{name: "b", sourceID: "src_b", execute: succeedWith(testRows)}
	browser := &mockMethod{name: "browser", sourceID: "src_browser", browser: true,
		execute: succeedWith(testRows)}

	req := testRequest(t, []Step{
		{Method: a, Vocab: filter.VocabNone},
		{Method: skipped, Vocab: filter.VocabNone},
		{Method: browser, Vocab: filter.VocabNone},
	})

	res, err := o.Fetch(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "browser", res.Method)
	assert.Equal(t, int32(0), skipped.calls.Load(), "plain HTTP methods after a block are skipped")
}

func TestFetch_NotFoundResolvesConfirmedEmpty(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	a := &mockMethod{name: "a", sourceID: "src_a",
		execute: failWith(&fetch.NotFoundError{Method: "a"})}
	b := &mockMethod{name: "b", sourceID: "src_b", execute: succeedWith(testRows)}

	req := testRequest(t, []Step{
		{Method: a, Vocab: filter.VocabNone},
		{Method: b, Vocab: filter.VocabNone},
	})

	res, err := o.Fetch(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, 0, res.Table.Len())
	assert.True(t, res.Table.HasColumn(table.ColLeague))
	assert.Equal(t, int32(0), b.calls.Load(), "not-found stops the chain")
}

func TestFetch_ParseErrorAdvancesChain(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	a := &mockMethod{name: "a", sourceID: "src_a",
		execute: failWith(&fetch.ParseError{Method: "a", Err: assert.AnError})}
	b := &mockMethod{name: "b", sourceID: "src_b", execute: succeedWith(testRows)}

	req := testRequest(t, []Step{
		{Method: a, Vocab: filter.VocabNone},
		{Method: b, Vocab: filter.VocabNone},
	})

	res, err := o.Fetch(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "b", res.Method)
	assert.Equal(t, int32(1), a.calls.Load(), "parse errors are not retried")
}

func TestFetch_ChainExhaustedCarriesTrail(t *testing.T) {
	o, _, health := testOrchestrator(t)

	a := &mockMethod{name: "a", sourceID: "src_a",
		execute: failWith(&fetch.ParseError{Method: "a", Err: assert.AnError})}
	b := &mockMethod{name: "b", sourceID: "src_b",
		execute: failWith(resilience.NewTransientError(assert.AnError, 502))}

	req := testRequest(t, []Step{
		{Method: a, Vocab: filter.VocabNone},
		{Method: b, Vocab: filter.VocabNone},
	})

	_, err := o.Fetch(context.Background(), req)

	var exhausted *ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, KindParse, exhausted.Attempts[0].Kind)
	assert.Equal(t, KindTransient, exhausted.Attempts[1].Kind)
	assert.Equal(t, 2, exhausted.Attempts[1].Tries)

	h, ok := health.For("LKL", "shots")
	require.True(t, ok)
	assert.Equal(t, KindTransient, h.LastErrorKind)
}

func TestFetch_FreshCacheHitSkipsUpstream(t *testing.T) {
	o, c, _ := testOrchestrator(t)

	m := &mockMethod{name: "a", sourceID: "src_a", execute: succeedWith(testRows)}
	req := testRequest(t, []Step{{Method: m, Vocab: filter.VocabNone}})

	res1, err := o.Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "a", res1.Method)

	res2, err := o.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res2.FromCache)
	assert.Equal(t, MethodCache, res2.Method)
	assert.Equal(t, int32(1), m.calls.Load(), "second call is served from cache")

	entry, fresh, found := c.Get(context.Background(), cache.Key{
		League: "LKL", Dataset: "shots", Season: "2023-24", Signature: req.Signature,
	})
	require.True(t, found)
	assert.True(t, fresh)
	assert.Equal(t, "a", entry.Method)
}

func TestFetch_ExpiredEntryTriggersFreshFetch(t *testing.T) {
	o, c, _ := testOrchestrator(t)

	m := &mockMethod{name: "a", sourceID: "src_a", execute: succeedWith(testRows)}
	req := testRequest(t, []Step{{Method: m, Vocab: filter.VocabNone}})

	stale := &table.Table{Columns: []string{"GAME_ID"}, Rows: []table.Row{{"GAME_ID": "OLD"}}}
	require.NoError(t, c.Put(context.Background(), &cache.Entry{
		Key: cache.Key{
			League: "LKL", Dataset: "shots", Season: "2023-24", Signature: req.Signature,
		},
		Table:     stale,
		Method:    "a",
		FetchedAt: time.Now().Add(-2 * time.Hour),
		TTL:       time.Hour,
	}))

	res, err := o.Fetch(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, res.FromCache, "expired entry is a miss")
	assert.Equal(t, "a", res.Method)
	assert.Equal(t, int32(1), m.calls.Load())
	assert.Equal(t, 2, res.Table.Len())
}

func TestFetch_StaleServedWhenChainExhausted(t *testing.T) {
	o, c, _ := testOrchestrator(t)

	m := &mockMethod{name: "a", sourceID: "src_a",
		execute: failWith(resilience.NewTransientError(assert.AnError, 503))}
	req := testRequest(t, []Step{{Method: m, Vocab: filter.VocabNone}})
	req.AllowStale = true

	staleTbl := &table.Table{Columns: []string{"GAME_ID"}, Rows: []table.Row{{"GAME_ID": "OLD"}}}
	require.NoError(t, c.Put(context.Background(), &cache.Entry{
		Key: cache.Key{
			League: "LKL", Dataset: "shots", Season: "2023-24", Signature: req.Signature,
		},
		Table:     staleTbl,
		Method:    "a",
		FetchedAt: time.Now().Add(-2 * time.Hour),
		TTL:       time.Hour,
	}))

	res, err := o.Fetch(context.Background(), req)

	require.NoError(t, err, "stale fallback must not surface the chain failure")
	assert.True(t, res.Stale)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, 1, res.Table.Len())
	assert.Equal(t, "OLD", res.Table.Rows[0]["GAME_ID"])
}

func TestFetch_AtMostOneInFlight(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	release := make(chan struct{})
	m := &mockMethod{name: "a", sourceID: "src_a"}
	m.execute = func(context.Context, fetch.Params) (fetch.Rows, error) {
		<-release
		return testRows, nil
	}
	req := testRequest(t, []Step{{Method: m, Vocab: filter.VocabNone}})

	const waiters = 8
	var wg sync.WaitGroup
	results := make([]*Result, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Fetch(context.Background(), req)
		}(i)
	}

	// Give every waiter time to attach before the fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "a", results[i].Method)
		assert.Equal(t, 2, results[i].Table.Len())
	}
	assert.Equal(t, int32(1), m.calls.Load(), "concurrent callers share one upstream fetch")
}

func TestFetch_WaiterCancellationDoesNotCancelFetch(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	release := make(chan struct{})
	m := &mockMethod{name: "a", sourceID: "src_a"}
	m.execute = func(ctx context.Context, _ fetch.Params) (fetch.Rows, error) {
		select {
		case <-release:
			return testRows, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	req := testRequest(t, []Step{{Method: m, Vocab: filter.VocabNone}})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := o.Fetch(ctx, req)
		first <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	// A second caller still gets the in-flight result once it completes.
	done := make(chan struct{})
	var res *Result
	var err error
	go func() {
		res, err = o.Fetch(context.Background(), req)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done

	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.Len())
	assert.Equal(t, int32(1), m.calls.Load(), "cancelled waiter did not kill the shared fetch")
}

func TestHealth_Snapshot(t *testing.T) {
	h := NewHealth()
	h.RecordSuccess("LKL", "shots", "lkl_json_shots", false)
	h.RecordFailure("NBA", "schedule", KindTransient, "boom")

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "LKL", snap[0].League)
	assert.Equal(t, "lkl_json_shots", snap[0].LastMethod)
	assert.Equal(t, KindTransient, snap[1].LastErrorKind)
}

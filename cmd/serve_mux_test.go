//go:build !integration

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplens/courtsource/internal/cache"
	"github.com/hooplens/courtsource/internal/catalog"
	"github.com/hooplens/courtsource/internal/engine"
	"github.com/hooplens/courtsource/internal/fetch"
	"github.com/hooplens/courtsource/internal/filter"
	"github.com/hooplens/courtsource/internal/orchestrator"
	"github.com/hooplens/courtsource/internal/ratelimit"
)

func testEnv(t *testing.T, upstreamURL string) *engineEnv {
	t.Helper()

	registry := catalog.NewRegistry(0)
	registry.MustRegister(&catalog.Descriptor{
		League:     "LKL",
		Dataset:    "schedule",
		KeyColumns: []string{"GAME_ID"},
		Supported: map[string]bool{
			filter.FieldSeason: true,
		},
		Capability: catalog.CapabilityLimited,
		Chain: []catalog.MethodSpec{
			{Name: "lkl_json_schedule", Kind: catalog.KindJSON, SourceID: "lkl_api",
				Vocab: filter.VocabGameList, URL: upstreamURL},
		},
	})

	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := cache.New(store)
	t.Cleanup(func() { _ = c.Close() })

	health := orchestrator.NewHealth()
	limiter := ratelimit.New(nil, ratelimit.SourceLimit{PerSecond: 10000, Burst: 1000})
	orch := orchestrator.New(limiter, c, health)
	factory := fetch.NewFactory(http.DefaultClient, nil)
	eng := engine.New(registry, factory, orch, c, health, time.Hour)

	return &engineEnv{Engine: eng, Cache: c, Health: health}
}

func scheduleUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[
			{"GAME_ID":"G1","date":"2024-03-01","arena":"Zalgirio Arena"},
			{"GAME_ID":"G2","date":"2024-03-03","arena":"Avia Solutions Arena"}
		]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter_Readyz(t *testing.T) {
	env := testEnv(t, "http://unused.invalid")
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_GetDataset(t *testing.T) {
	srv := scheduleUpstream(t)
	env := testEnv(t, srv.URL)
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/datasets/LKL/schedule?season=2023-24", nil))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Meta struct {
			MethodUsed string `json:"MethodUsed"`
		} `json:"meta"`
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Rows, 2)
	assert.Contains(t, resp.Columns, "LEAGUE")
	assert.Equal(t, "lkl_json_schedule", resp.Meta.MethodUsed)
}

func TestRouter_GetDataset_BadFilter(t *testing.T) {
	env := testEnv(t, "http://unused.invalid")
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/datasets/LKL/schedule?season=202324", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
}

func TestRouter_GetDataset_UnknownDataset(t *testing.T) {
	env := testEnv(t, "http://unused.invalid")
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/datasets/LKL/standings?season=2023-24", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
}

func TestRouter_HealthEndpoints(t *testing.T) {
	srv := scheduleUpstream(t)
	env := testEnv(t, srv.URL)
	router := newRouter(env)

	// No traffic yet: per-dataset health is absent.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/LKL/schedule", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/datasets/LKL/schedule?season=2023-24", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/LKL/schedule", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var snapshot []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snapshot))
	assert.Len(t, snapshot, 1)
}

func TestRouter_Datasets(t *testing.T) {
	env := testEnv(t, "http://unused.invalid")
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/datasets?league=LKL", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "schedule", out[0]["dataset"])
	assert.Equal(t, "LIMITED", out[0]["capability"])
}

func TestRouter_PurgeCache(t *testing.T) {
	srv := scheduleUpstream(t)
	env := testEnv(t, srv.URL)
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/datasets/LKL/schedule?season=2023-24", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete,
		"/cache/LKL?dataset=schedule", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["purged"])
}

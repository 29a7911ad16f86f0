package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hooplens/courtsource/internal/catalog"
	"github.com/hooplens/courtsource/internal/engine"
	"github.com/hooplens/courtsource/internal/filter"
	"github.com/hooplens/courtsource/internal/table"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve datasets and source health over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP surface. Split out so tests can exercise routes
// without binding a port.
func newRouter(env *engineEnv) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, env.Health.Snapshot())
	})

	r.Get("/health/{league}/{dataset}", func(w http.ResponseWriter, r *http.Request) {
		h, ok := env.Health.For(chi.URLParam(r, "league"), chi.URLParam(r, "dataset"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no health recorded"})
			return
		}
		writeJSON(w, http.StatusOK, h)
	})

	r.Get("/datasets", func(w http.ResponseWriter, r *http.Request) {
		descs := env.Engine.ListDatasets(r.URL.Query().Get("league"))
		out := make([]map[string]any, 0, len(descs))
		for _, d := range descs {
			out = append(out, map[string]any{
				"league":     d.League,
				"dataset":    d.Dataset,
				"capability": d.Capability,
				"keys":       d.KeyColumns,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/datasets/{league}/{dataset}", func(w http.ResponseWriter, r *http.Request) {
		req := engine.Request{
			League:  chi.URLParam(r, "league"),
			Dataset: chi.URLParam(r, "dataset"),
			Filters: filtersFromQuery(r.URL.Query()),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
				return
			}
			req.Limit = n
		}
		if cols := r.URL.Query()["column"]; len(cols) > 0 {
			req.Columns = cols
		}
		req.AllowStale = r.URL.Query().Get("allow_stale") == "true"

		tbl, meta, err := env.Engine.GetDataset(r.Context(), req)
		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Meta    *engine.Meta `json:"meta"`
			Columns []string     `json:"columns"`
			Rows    []table.Row  `json:"rows"`
		}{Meta: meta, Columns: tbl.Columns, Rows: tbl.Rows})
	})

	r.Delete("/cache/{league}", func(w http.ResponseWriter, r *http.Request) {
		n, err := env.Engine.InvalidateCache(r.Context(), chi.URLParam(r, "league"), r.URL.Query().Get("dataset"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"purged": n})
	})

	return r
}

// filtersFromQuery maps query parameters onto raw filters. Reserved output
// parameters are not filters; repeated parameters accumulate into lists.
func filtersFromQuery(q map[string][]string) map[string]any {
	filters := make(map[string]any)
	for k, vs := range q {
		switch k {
		case "limit", "column", "allow_stale":
			continue
		}
		if len(vs) == 1 {
			filters[k] = vs[0]
		} else {
			filters[k] = vs
		}
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

// statusFor maps engine errors onto response codes: caller mistakes are 4xx,
// upstream exhaustion is 502.
func statusFor(err error) int {
	var ve *filter.ValidationError
	var ue *catalog.UnsupportedDatasetError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ue):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

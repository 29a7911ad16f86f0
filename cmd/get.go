package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hooplens/courtsource/internal/engine"
	"github.com/hooplens/courtsource/internal/table"
)

var (
	getFilters    []string
	getColumns    []string
	getLimit      int
	getAllowStale bool
)

var getCmd = &cobra.Command{
	Use:   "get <league> <dataset>",
	Short: "Fetch one dataset through the fallback chain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filters, err := parseFilters(getFilters)
		if err != nil {
			return err
		}

		tbl, meta, err := env.Engine.GetDataset(ctx, engine.Request{
			League:     args[0],
			Dataset:    args[1],
			Filters:    filters,
			Columns:    getColumns,
			Limit:      getLimit,
			AllowStale: getAllowStale,
		})
		if err != nil {
			return err
		}

		zap.L().Info("dataset fetched",
			zap.String("league", args[0]),
			zap.String("dataset", args[1]),
			zap.String("method", meta.MethodUsed),
			zap.Int("rows", tbl.Len()),
			zap.Bool("stale", meta.Stale),
		)
		if meta.Warning != "" {
			zap.L().Warn(meta.Warning)
		}

		out := struct {
			Meta    *engine.Meta `json:"meta"`
			Columns []string     `json:"columns"`
			Rows    []table.Row  `json:"rows"`
		}{Meta: meta, Columns: tbl.Columns, Rows: tbl.Rows}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// parseFilters turns repeated key=value flags into a raw filter map. Repeated
// keys accumulate into a list.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, eris.Errorf("invalid filter %q, expected key=value", p)
		}
		switch prev := filters[k].(type) {
		case nil:
			filters[k] = v
		case string:
			filters[k] = []string{prev, v}
		case []string:
			filters[k] = append(prev, v)
		}
	}
	return filters, nil
}

func init() {
	getCmd.Flags().StringArrayVarP(&getFilters, "filter", "f", nil, "filter as key=value (repeatable)")
	getCmd.Flags().StringSliceVar(&getColumns, "columns", nil, "restrict output to these columns")
	getCmd.Flags().IntVar(&getLimit, "limit", 0, "cap the number of returned rows")
	getCmd.Flags().BoolVar(&getAllowStale, "allow-stale", false, "serve expired cache data when every source fails")
	rootCmd.AddCommand(getCmd)
}

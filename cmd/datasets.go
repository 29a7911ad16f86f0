package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var datasetsLeague string

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List registered datasets and their capability levels",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		descs := env.Engine.ListDatasets(datasetsLeague)

		out := make([]map[string]any, 0, len(descs))
		for _, d := range descs {
			methods := make([]string, 0, len(d.Chain))
			for _, m := range d.Chain {
				methods = append(methods, m.Name)
			}
			out = append(out, map[string]any{
				"league":     d.League,
				"dataset":    d.Dataset,
				"capability": d.Capability,
				"keys":       d.KeyColumns,
				"chain":      methods,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	datasetsCmd.Flags().StringVar(&datasetsLeague, "league", "", "restrict listing to one league")
	rootCmd.AddCommand(datasetsCmd)
}

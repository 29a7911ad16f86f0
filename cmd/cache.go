package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	purgeLeague  string
	purgeDataset string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the durable cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove cached entries for a league or dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeLeague == "" {
			return eris.New("--league is required")
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Engine.InvalidateCache(cmd.Context(), purgeLeague, purgeDataset)
		if err != nil {
			return eris.Wrap(err, "purge cache")
		}

		zap.L().Info("cache purged",
			zap.String("league", purgeLeague),
			zap.String("dataset", purgeDataset),
			zap.Int("entries", n),
		)
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().StringVar(&purgeLeague, "league", "", "league to purge (required)")
	cachePurgeCmd.Flags().StringVar(&purgeDataset, "dataset", "", "dataset to purge (empty purges the whole league)")
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

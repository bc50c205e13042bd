package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadbatch",
	Short: "Batch lead qualification pipeline",
	Long:  "Reads lead files with arbitrary headers, normalizes and scores every row, enriches uncertain rows in checkpointed batches, deduplicates, writes a merged CSV plus a run manifest, and can push qualified leads to Salesforce.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

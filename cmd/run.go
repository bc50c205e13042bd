package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/config"
	"github.com/sells-group/leadbatch/internal/dedup"
	"github.com/sells-group/leadbatch/internal/enrich"
	"github.com/sells-group/leadbatch/internal/fetcher"
	"github.com/sells-group/leadbatch/internal/output"
	"github.com/sells-group/leadbatch/internal/pipeline"
	"github.com/sells-group/leadbatch/internal/store"
)

var (
	runInput       string
	runOutput      string
	runID          string
	runOffline     bool
	runEnrich      bool
	runEnrichAll   bool
	runDedupPolicy string
	runBatchSize   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a lead file into a scored, deduplicated CSV",
	Long: `Runs the full pipeline on one input file.

Enrichment is off unless --enrich (or pipeline.enrichment_enabled) is set.
Interrupted runs resume from their checkpoint: rerun the same command, or
pass --run-id to pick a specific checkpoint.

Examples:
  # Deterministic scoring only
  leadbatch run --input leads.csv --output scored.csv

  # Enrich uncertain rows with the offline stub backend
  leadbatch run --input leads.csv --output scored.csv --enrich --offline

  # Enrich every row, keeping the best-scored duplicate
  leadbatch run --input leads.xlsx --output scored.csv --enrich --enrich-all --dedup-policy highest-score

  # Download a zipped export first
  leadbatch run --input https://crm.example.com/exports/leads.zip --output scored.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}

		src, err := fetcher.NewResolver(fetcher.OptionsFromConfig(cfg)).Resolve(ctx, runInput)
		if err != nil {
			return eris.Wrap(err, "run: resolve input")
		}
		defer src.Close() //nolint:errcheck

		p, closeFn, err := initPipeline(ctx, cfg, src.Origin)
		if err != nil {
			return err
		}
		defer closeFn()

		m, err := p.Run(ctx, src.Path, runOutput)
		if m != nil {
			printManifestSummary(os.Stdout, m)
		}
		if err != nil {
			return eris.Wrap(err, "run")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "input lead file (.csv, .tsv, .xlsx or .zip), or an http(s)/ftp URL")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output file (.csv or .xlsx); the manifest is written next to it")
	runCmd.Flags().StringVar(&runID, "run-id", "", "checkpoint run id (default: derived from the input digest and batch size)")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "use the offline stub enrichment backend")
	runCmd.Flags().BoolVar(&runEnrich, "enrich", false, "enable external enrichment")
	runCmd.Flags().BoolVar(&runEnrichAll, "enrich-all", false, "enrich every valid row, not only uncertain ones")
	runCmd.Flags().StringVar(&runDedupPolicy, "dedup-policy", "", "dedup policy: first-seen or highest-score")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "rows per enrichment batch (default from config)")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags layers explicitly set flags over the loaded configuration
// and revalidates it.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	if cmd.Flags().Changed("enrich") {
		c.Pipeline.EnrichmentEnabled = runEnrich
	}
	if cmd.Flags().Changed("enrich-all") {
		c.Pipeline.EnrichAll = runEnrichAll
	}
	if runOffline {
		c.Enrichment.Backend = "stub"
	}
	if runDedupPolicy != "" {
		if _, err := dedup.ParsePolicy(runDedupPolicy); err != nil {
			return err
		}
		c.Pipeline.DedupPolicy = runDedupPolicy
	}
	if cmd.Flags().Changed("batch-size") {
		c.Pipeline.BatchSize = runBatchSize
	}

	if err := c.Validate("base"); err != nil {
		return err
	}
	if c.Pipeline.EnrichmentEnabled {
		return c.Validate("enrich")
	}
	return nil
}

// initPipeline wires the adapter and run ledger. The returned func releases
// the ledger.
func initPipeline(ctx context.Context, c *config.Config, inputLabel string) (*pipeline.Pipeline, func(), error) {
	opts, err := pipeline.OptionsFromConfig(c)
	if err != nil {
		return nil, nil, err
	}
	opts.RunID = runID
	opts.InputLabel = inputLabel

	var adapter *enrich.Adapter
	if opts.EnrichmentEnabled {
		adapter, err = enrich.NewAdapterFromConfig(ctx, c)
		if err != nil {
			return nil, nil, err
		}
	}

	// The ledger is an audit trail; a run proceeds without it.
	ledger, err := store.Open(ctx, c.Store)
	if err != nil {
		zap.L().Warn("run ledger unavailable, continuing without it", zap.Error(err))
		ledger = nil
	}
	closeFn := func() {
		if ledger != nil {
			ledger.Close() //nolint:errcheck,gosec
		}
	}

	p, err := pipeline.New(opts, adapter, ledger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}

// printManifestSummary writes the headline numbers of a run.
func printManifestSummary(w io.Writer, m *output.Manifest) {
	_, _ = fmt.Fprintf(w, "run %s\n", m.RunID)
	_, _ = fmt.Fprintf(w, "  output:            %s\n", m.Output)
	_, _ = fmt.Fprintf(w, "  manifest:          %s\n", output.ManifestPath(m.Output))
	_, _ = fmt.Fprintf(w, "  rows in/out:       %d / %d\n", m.RowsIn, m.RowsOut)
	_, _ = fmt.Fprintf(w, "  dedup removals:    %d\n", m.DedupRemovals)
	_, _ = fmt.Fprintf(w, "  validation errors: %d\n", m.ValidationErrors)
	_, _ = fmt.Fprintf(w, "  scores:            0=%d 1=%d 2=%d\n",
		m.ScoreDistribution["0"], m.ScoreDistribution["1"], m.ScoreDistribution["2"])
	if m.EnrichmentEnabled {
		_, _ = fmt.Fprintf(w, "  batches:           %d total, %d succeeded (%d resumed), %d failed, %d not run\n",
			m.Batches.Total, m.Batches.Succeeded, len(m.Batches.Resumed), m.FailedBatches, len(m.Batches.NotRunIDs))
		statuses := make([]string, 0, len(m.EnrichmentStatus))
		for s := range m.EnrichmentStatus {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			_, _ = fmt.Fprintf(w, "  enrichment %-8s %d\n", s+":", m.EnrichmentStatus[s])
		}
		if m.Enrichment != nil {
			_, _ = fmt.Fprintf(w, "  enrichment cost:   $%.4f\n", m.Enrichment.CostUSD)
		}
	}
	if m.Cancelled {
		_, _ = fmt.Fprintln(w, "  cancelled: rerun the same command to resume")
	}
	if m.Aborted {
		_, _ = fmt.Fprintf(w, "  aborted: %s\n", m.FatalReason)
	}
}

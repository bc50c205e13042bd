package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/monitoring"
	"github.com/sells-group/leadbatch/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing and viewing executions recorded in the run ledger.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline executions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		checkpointID, _ := cmd.Flags().GetString("run-id")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:       model.RunStatus(status),
			CheckpointID: checkpointID,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show an execution and its batch outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		batches, err := st.ListBatches(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show: batches")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runDetail{Run: run, Batches: batches})
	},
}

// -- runs health --

var runsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Summarize recent runs and raise threshold alerts",
	Long: `Collects metrics for runs created within the lookback window, evaluates
them against the monitoring thresholds and prints the snapshot and alerts.
With --notify, alerts are posted to monitoring.webhook_url. With --watch,
the check repeats every monitoring.check_interval_secs until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mcfg := cfg.Monitoring
		if cmd.Flags().Changed("lookback-hours") {
			mcfg.LookbackWindowHours, _ = cmd.Flags().GetInt("lookback-hours")
		}
		if mcfg.LookbackWindowHours <= 0 {
			mcfg.LookbackWindowHours = 24
		}
		notify, _ := cmd.Flags().GetBool("notify")
		if !notify {
			mcfg.WebhookURL = ""
		}

		collector := monitoring.NewCollector(st, time.Duration(mcfg.StaleRunHours)*time.Hour)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(mcfg), mcfg)

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			checker.Run(ctx)
			return nil
		}

		snap, alerts := checker.Check(ctx, zap.L())
		if snap == nil {
			return eris.New("runs health: could not collect metrics")
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(healthReport{Metrics: snap, Alerts: alerts})
	},
}

type healthReport struct {
	Metrics *monitoring.MetricsSnapshot `json:"metrics"`
	Alerts  []monitoring.Alert          `json:"alerts"`
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, aborted, failed)")
	runsListCmd.Flags().String("run-id", "", "filter by checkpoint run id")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsHealthCmd.Flags().Int("lookback-hours", 0, "window of runs to evaluate (default monitoring.lookback_window_hours)")
	runsHealthCmd.Flags().Bool("notify", false, "post alerts to monitoring.webhook_url")
	runsHealthCmd.Flags().Bool("watch", false, "repeat the check every monitoring.check_interval_secs")
	runsCmd.AddCommand(runsHealthCmd)
	rootCmd.AddCommand(runsCmd)
}

type runDetail struct {
	Run     *model.Run           `json:"run"`
	Batches []model.BatchOutcome `json:"batches"`
}

// initStore opens the configured run ledger.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("run ledger is disabled (store.driver: none)")
	}
	return st, nil
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN_ID\tSTATUS\tROWS_IN\tROWS_OUT\tFAILED_BATCHES\tCREATED\tDURATION")
	for _, r := range runs {
		rowsIn, rowsOut, failed := "-", "-", "-"
		if r.Summary != nil {
			rowsIn = fmt.Sprint(r.Summary.RowsIn)
			rowsOut = fmt.Sprint(r.Summary.RowsOut)
			failed = fmt.Sprint(r.Summary.FailedBatches)
		}
		dur := "-"
		if r.Status != model.RunStatusRunning {
			dur = r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CheckpointID, r.Status, rowsIn, rowsOut, failed,
			r.CreatedAt.Format("2006-01-02 15:04"), dur)
	}
	_ = w.Flush()
}

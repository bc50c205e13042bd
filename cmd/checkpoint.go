package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadbatch/internal/checkpoint"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect run checkpoints",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the checkpoint state of a run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetString("run-id")

		st, err := checkpoint.Load(cfg.Pipeline.CheckpointDir, id)
		if err != nil {
			return eris.Wrap(err, "checkpoint show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	},
}

func init() {
	checkpointShowCmd.Flags().String("run-id", "", "run id (printed by leadbatch run)")
	_ = checkpointShowCmd.MarkFlagRequired("run-id")

	checkpointCmd.AddCommand(checkpointShowCmd)
	rootCmd.AddCommand(checkpointCmd)
}

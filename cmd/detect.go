package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadbatch/internal/fetcher"
	"github.com/sells-group/leadbatch/internal/ingest"
	"github.com/sells-group/leadbatch/internal/schema"
)

var detectInput string

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show the role detected for every input column",
	RunE: func(cmd *cobra.Command, _ []string) error {
		src, err := fetcher.NewResolver(fetcher.OptionsFromConfig(cfg)).Resolve(cmd.Context(), detectInput)
		if err != nil {
			return eris.Wrap(err, "detect: resolve input")
		}
		defer src.Close() //nolint:errcheck

		ds, err := ingest.ReadFile(cmd.Context(), src.Path, ingest.Options{})
		if err != nil {
			return eris.Wrap(err, "detect")
		}

		n := min(cfg.Pipeline.SampleRows, len(ds.Records))
		sampleRows := make([][]string, 0, n)
		for _, rec := range ds.Records[:n] {
			values := make([]string, len(ds.Headers))
			for i, h := range ds.Headers {
				values[i] = rec.GetOr(h, "")
			}
			sampleRows = append(sampleRows, values)
		}

		roles := schema.Detect(ds.Headers, sampleRows, schema.Options{SniffValues: cfg.Pipeline.SniffValues})
		formatRoles(cmd.OutOrStdout(), roles)
		return nil
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectInput, "input", "", "input lead file (.csv, .tsv, .xlsx or .zip), or an http(s)/ftp URL")
	_ = detectCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(detectCmd)
}

// formatRoles writes a column/role/family table in header order.
func formatRoles(out io.Writer, roles schema.Roles) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLUMN\tROLE\tFAMILY")
	for _, col := range roles.Columns {
		role := roles.Role(col)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", col, role, role.Family())
	}
	_ = w.Flush()
}

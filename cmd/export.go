package main

import (
	"encoding/json"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadbatch/internal/export"
	sfpkg "github.com/sells-group/leadbatch/pkg/salesforce"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Push qualified leads from an output file to a CRM",
}

var exportSalesforceCmd = &cobra.Command{
	Use:   "salesforce",
	Short: "Upsert qualified leads as Salesforce Leads",
	Long: `Reads a leadbatch output file and upserts every row with fit_score at or
above --min-score as a Salesforce Lead, matched on email. Existing open Leads
are updated in place, so rerunning an export does not create duplicates.

Example:
  leadbatch export salesforce --input leads.scored.csv --min-score 2`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		opts := export.Options{
			MinScore:   cfg.Salesforce.MinScore,
			LeadSource: cfg.Salesforce.LeadSource,
			ScoreField: cfg.Salesforce.ScoreField,
			DryRun:     dryRun,
		}
		if cmd.Flags().Changed("min-score") {
			opts.MinScore, _ = cmd.Flags().GetInt("min-score")
		}
		if opts.MinScore < 0 || opts.MinScore > 2 {
			return eris.Errorf("export: --min-score must be 0, 1 or 2, got %d", opts.MinScore)
		}

		var client sfpkg.Client
		if !dryRun {
			var err error
			if client, err = initSalesforce(); err != nil {
				return err
			}
		}

		sum, err := export.Salesforce(cmd.Context(), client, input, opts)
		if sum != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(sum); encErr != nil && err == nil {
				err = encErr
			}
		}
		return err
	},
}

func init() {
	exportSalesforceCmd.Flags().String("input", "", "leadbatch output file (.csv or .xlsx)")
	exportSalesforceCmd.Flags().Int("min-score", 2, "lowest fit_score to export (default salesforce.min_score)")
	exportSalesforceCmd.Flags().Bool("dry-run", false, "select and count leads without calling Salesforce")
	_ = exportSalesforceCmd.MarkFlagRequired("input")

	exportCmd.AddCommand(exportSalesforceCmd)
	rootCmd.AddCommand(exportCmd)
}

// initSalesforce authenticates with the JWT bearer flow.
func initSalesforce() (sfpkg.Client, error) {
	if err := cfg.Validate("salesforce"); err != nil {
		return nil, err
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateLimitRPS)), nil
}

package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadbatch/internal/normalize"
	"github.com/sells-group/leadbatch/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a single lead with the configured rules",
	Long: `Normalizes and scores one lead from flags, without reading a file.

Example:
  leadbatch score --company "Acme Solutions, LLC" --industry "Business Process Outsourcing" --employees 250`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rules, err := scorer.FromConfig(cfg.Scoring)
		if err != nil {
			return err
		}

		company, _ := cmd.Flags().GetString("company")
		industry, _ := cmd.Flags().GetString("industry")
		headline, _ := cmd.Flags().GetString("headline")
		keywords, _ := cmd.Flags().GetString("keywords")
		title, _ := cmd.Flags().GetString("title")
		employees, _ := cmd.Flags().GetString("employees")
		city, _ := cmd.Flags().GetString("city")
		state, _ := cmd.Flags().GetString("state")
		country, _ := cmd.Flags().GetString("country")

		count, known := scorer.ParseEmployeeCount(employees)
		res := scorer.New(rules).Score(scorer.Input{
			CompanyName:    company,
			Industry:       industry,
			Headline:       headline,
			Keywords:       keywords,
			JobTitle:       title,
			Employees:      count,
			EmployeesKnown: known,
		})

		norm := normalize.Normalizer{CityMaxLen: cfg.Normalize.CityMaxLen}
		return writeScore(cmd.OutOrStdout(), scoreOutput{
			NormalizedCompany:  normalize.Company(company),
			NormalizedLocation: norm.Location(city, state, country),
			FitScore:           int(res.Score),
			Reasoning:          res.Reasoning,
			Rule:               res.Rule,
			NeedsEnrichment:    res.NeedsEnrichment,
		})
	},
}

func init() {
	scoreCmd.Flags().String("company", "", "company name")
	scoreCmd.Flags().String("industry", "", "industry text")
	scoreCmd.Flags().String("headline", "", "company headline or tagline")
	scoreCmd.Flags().String("keywords", "", "keywords or specialties")
	scoreCmd.Flags().String("title", "", "contact job title")
	scoreCmd.Flags().String("employees", "", `employee count, e.g. "51-200" or "1,200"`)
	scoreCmd.Flags().String("city", "", "city")
	scoreCmd.Flags().String("state", "", "state or province")
	scoreCmd.Flags().String("country", "", "country")
	rootCmd.AddCommand(scoreCmd)
}

type scoreOutput struct {
	NormalizedCompany  string `json:"normalized_company_name"`
	NormalizedLocation string `json:"normalized_location"`
	FitScore           int    `json:"fit_score"`
	Reasoning          string `json:"score_reasoning"`
	Rule               int    `json:"rule"`
	NeedsEnrichment    bool   `json:"needs_enrichment"`
}

func writeScore(w io.Writer, s scoreOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

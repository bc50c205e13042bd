package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/enrich"
	"github.com/sells-group/leadbatch/internal/ingest"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/normalize"
	"github.com/sells-group/leadbatch/internal/schema"
	"github.com/sells-group/leadbatch/internal/scorer"
)

// lead is one input row while the run is in progress.
type lead struct {
	row model.Row
	// invalid is the validation reason; invalid leads are never enriched.
	invalid string
	input   enrich.RowInput
	score   scorer.Result
}

// eligible reports whether the lead is routed to the enrichment adapter.
func (l *lead) eligible(all bool) bool {
	return l.invalid == "" && (all || l.score.NeedsEnrichment)
}

// sample returns up to n leading rows as value slices in header order.
func sample(ds *ingest.Dataset, n int) [][]string {
	n = max(min(n, len(ds.Records)), 0)
	out := make([][]string, 0, n)
	for _, rec := range ds.Records[:n] {
		values := make([]string, len(ds.Headers))
		for i, h := range ds.Headers {
			values[i] = rec.GetOr(h, "")
		}
		out = append(out, values)
	}
	return out
}

// prepare validates, normalizes, and scores every record, in input order.
// Invalid records keep empty derived fields and no dedup key.
func (p *Pipeline) prepare(ds *ingest.Dataset, roles schema.Roles) []*lead {
	leads := make([]*lead, len(ds.Records))
	for i, rec := range ds.Records {
		reason := rec.Invalid()
		if reason == "" {
			reason = roles.MissingIdentity(rec)
		}
		if reason != "" {
			zap.L().Warn("pipeline: invalid row",
				zap.Int("row_index", rec.RowIndex),
				zap.String("reason", reason),
			)
			leads[i] = &lead{
				row:     model.Row{Record: rec},
				invalid: reason,
			}
			continue
		}
		leads[i] = p.derive(rec, roles)
	}
	return leads
}

func (p *Pipeline) derive(rec model.Record, roles schema.Roles) *lead {
	company := roles.Value(rec, schema.RoleCompanyName)
	city := roles.Value(rec, schema.RoleCity)
	state := roles.Value(rec, schema.RoleState)
	country := roles.Value(rec, schema.RoleCountry)
	if city == "" && state == "" && country == "" {
		// A single free-form location column stands in for the city.
		city = roles.Value(rec, schema.RoleLocation)
	}
	headcount := roles.Value(rec, schema.RoleEmployeeCount)
	employees, known := scorer.ParseEmployeeCount(headcount)

	in := scorer.Input{
		CompanyName:    company,
		Industry:       roles.Value(rec, schema.RoleIndustry),
		Headline:       roles.Value(rec, schema.RoleHeadline),
		Keywords:       roles.Value(rec, schema.RoleKeywords),
		JobTitle:       roles.Value(rec, schema.RoleJobTitle),
		Employees:      employees,
		EmployeesKnown: known,
	}
	res := p.scorer.Score(in)

	location := p.norm.Location(city, state, country)
	domain := normalize.Domain(roles.Value(rec, schema.RoleWebsite))
	email := normalize.Email(roles.Value(rec, schema.RoleEmail))

	return &lead{
		row: model.Row{
			Record: rec,
			Derived: model.DerivedFields{
				NormalizedCompany:  normalize.Company(company),
				NormalizedLocation: location,
				FitScore:           res.Score,
				ScoreReasoning:     res.Reasoning,
			},
			Domain: domain,
			Email:  email,
		},
		score: res,
		input: enrich.RowInput{
			RowIndex:           rec.RowIndex,
			Company:            company,
			Domain:             domain,
			Email:              email,
			Industry:           in.Industry,
			Headline:           in.Headline,
			Keywords:           in.Keywords,
			JobTitle:           in.JobTitle,
			EmployeeCount:      headcount,
			Location:           location,
			DeterministicScore: int(res.Score),
			DeterministicWhy:   res.Reasoning,
		},
	}
}

// Package export pushes qualified rows of a finished output file to a CRM.
// Delivery is at-least-once: rerunning an export updates the leads it
// created before instead of duplicating them.
package export

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/ingest"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/normalize"
	"github.com/sells-group/leadbatch/internal/output"
	"github.com/sells-group/leadbatch/internal/schema"
	"github.com/sells-group/leadbatch/internal/scorer"
	"github.com/sells-group/leadbatch/pkg/salesforce"
)

// Options selects and labels exported rows.
type Options struct {
	// MinScore is the lowest fit_score exported.
	MinScore   int
	LeadSource string
	// ScoreField, when set, is the custom Lead field that receives fit_score.
	ScoreField string
	DryRun     bool
}

// Summary counts what an export did with each row.
type Summary struct {
	Input          string                   `json:"input"`
	RowsRead       int                      `json:"rows_read"`
	Eligible       int                      `json:"eligible"`
	SkippedScore   int                      `json:"skipped_score"`
	SkippedNoEmail int                      `json:"skipped_no_email"`
	SkippedInvalid int                      `json:"skipped_invalid"`
	DryRun         bool                     `json:"dry_run,omitempty"`
	Result         *salesforce.UpsertResult `json:"result,omitempty"`
}

// derivedColumns are excluded from role detection so that, for example,
// normalized_company_name is not mistaken for the raw company column.
var derivedColumns = func() map[string]bool {
	m := make(map[string]bool)
	for _, c := range output.BaseColumns {
		m[c] = true
	}
	for _, c := range output.EnrichmentColumns {
		m[c] = true
	}
	return m
}()

// Salesforce reads a leadbatch output file and upserts every row scoring at
// least opts.MinScore as a Salesforce Lead keyed by email.
func Salesforce(ctx context.Context, c salesforce.Client, path string, opts Options) (*Summary, error) {
	ds, err := ingest.ReadFile(ctx, path, ingest.Options{})
	if err != nil {
		return nil, eris.Wrap(err, "export: read output")
	}

	leads, sum, err := BuildLeads(ds, opts)
	if err != nil {
		return nil, err
	}
	sum.Input = path
	sum.DryRun = opts.DryRun

	log := zap.L().With(zap.String("input", path))
	log.Info("export: leads selected",
		zap.Int("rows", sum.RowsRead),
		zap.Int("eligible", sum.Eligible),
		zap.Int("skipped_score", sum.SkippedScore),
		zap.Int("skipped_no_email", sum.SkippedNoEmail),
	)
	if opts.DryRun || len(leads) == 0 {
		return sum, nil
	}

	res, err := salesforce.UpsertLeads(ctx, c, leads)
	sum.Result = res
	if err != nil {
		return sum, eris.Wrap(err, "export: salesforce")
	}
	log.Info("export: salesforce upsert complete",
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	return sum, nil
}

// BuildLeads maps output rows to Lead upserts. The file must carry a
// fit_score column, so only leadbatch output is accepted.
func BuildLeads(ds *ingest.Dataset, opts Options) ([]salesforce.LeadUpsert, *Summary, error) {
	if !slices.Contains(ds.Headers, output.ColFitScore) {
		return nil, nil, eris.Errorf("export: %s has no %s column; export reads leadbatch output", ds.Path, output.ColFitScore)
	}

	var inputCols []string
	for _, h := range ds.Headers {
		if !derivedColumns[h] {
			inputCols = append(inputCols, h)
		}
	}
	roles := schema.Detect(inputCols, nil, schema.Options{})
	names := findNameColumns(inputCols)

	sum := &Summary{RowsRead: len(ds.Records)}
	var leads []salesforce.LeadUpsert
	for _, rec := range ds.Records {
		if rec.Invalid() != "" {
			sum.SkippedInvalid++
			continue
		}
		score, err := strconv.Atoi(strings.TrimSpace(rec.GetOr(output.ColFitScore, "")))
		if err != nil || score < opts.MinScore {
			sum.SkippedScore++
			continue
		}
		email := normalize.Email(roles.Value(rec, schema.RoleEmail))
		if email == "" {
			sum.SkippedNoEmail++
			continue
		}
		leads = append(leads, salesforce.LeadUpsert{
			Email:  email,
			Fields: leadFields(rec, roles, names, score, opts),
		})
	}
	sum.Eligible = len(leads)
	return leads, sum, nil
}

// leadFields builds the Lead field map for one row. Enriched values take
// precedence over the input columns they refine.
func leadFields(rec model.Record, roles schema.Roles, names nameColumns, score int, opts Options) map[string]any {
	fields := map[string]any{}
	set := func(key, val string) {
		if v := strings.TrimSpace(val); v != "" {
			fields[key] = v
		}
	}

	company := firstNonEmpty(rec.GetOr(output.ColNormalizedCompany, ""), roles.Value(rec, schema.RoleCompanyName))
	if company == "" {
		company = normalize.EmailDomain(roles.Value(rec, schema.RoleEmail))
	}
	fields["Company"] = company

	last := rec.GetOr(names.last, "")
	if names.last == "" && names.full != "" {
		first, rest, _ := strings.Cut(strings.TrimSpace(rec.GetOr(names.full, "")), " ")
		set("FirstName", first)
		last = rest
	}
	if strings.TrimSpace(last) == "" {
		last = "Unknown"
	}
	fields["LastName"] = strings.TrimSpace(last)
	if names.first != "" {
		set("FirstName", rec.GetOr(names.first, ""))
	}

	set("Title", roles.Value(rec, schema.RoleJobTitle))
	set("Website", roles.Value(rec, schema.RoleWebsite))
	set("Industry", firstNonEmpty(rec.GetOr(output.ColEnrichedIndustry, ""), roles.Value(rec, schema.RoleIndustry)))
	set("City", roles.Value(rec, schema.RoleCity))
	set("State", roles.Value(rec, schema.RoleState))
	set("Country", roles.Value(rec, schema.RoleCountry))
	if n, ok := scorer.ParseEmployeeCount(firstNonEmpty(rec.GetOr(output.ColEnrichedEmployees, ""), roles.Value(rec, schema.RoleEmployeeCount))); ok {
		fields["NumberOfEmployees"] = n
	}
	set("Description", rec.GetOr(output.ColScoreReasoning, ""))
	set("LeadSource", opts.LeadSource)
	if opts.ScoreField != "" {
		fields[opts.ScoreField] = score
	}
	return fields
}

type nameColumns struct {
	first, last, full string
}

// findNameColumns locates person-name columns by header. Lead requires
// LastName, which none of the detected roles carry.
func findNameColumns(headers []string) nameColumns {
	var nc nameColumns
	for _, h := range headers {
		k := strings.Join(strings.FieldsFunc(strings.ToLower(h), func(r rune) bool {
			return r == ' ' || r == '_' || r == '-'
		}), "")
		switch k {
		case "firstname", "givenname":
			if nc.first == "" {
				nc.first = h
			}
		case "lastname", "surname", "familyname":
			if nc.last == "" {
				nc.last = h
			}
		case "name", "fullname", "contactname":
			if nc.full == "" {
				nc.full = h
			}
		}
	}
	return nc
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

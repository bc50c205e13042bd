package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadbatch/internal/ingest"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/schema"
)

func TestPrepare(t *testing.T) {
	headers := []string{"Organization", "Work Email", "Domain", "Location", "Headcount", "Sector"}
	ds := &ingest.Dataset{
		Headers: headers,
		Records: []model.Record{
			model.NewRecord(0, headers, []string{"Globex Corporation", " Sales@Globex.com ", "https://www.globex.com/about", "Chicago", "1,200", "Call Center Services"}),
			model.NewRecord(1, headers, []string{"", "", "", "Denver", "10", "Retail"}),
			model.NewInvalidRecord(2, headers, []string{"Bad�", "", "", "", "", ""}, `invalid UTF-8 in column "Organization"`),
		},
	}
	p, err := New(Options{BatchSize: 10}, nil, nil)
	require.NoError(t, err)

	roles := schema.Detect(ds.Headers, sample(ds, 2), schema.Options{})
	leads := p.prepare(ds, roles)
	require.Len(t, leads, 3)

	globex := leads[0]
	assert.Empty(t, globex.invalid)
	assert.Equal(t, "Globex", globex.row.Derived.NormalizedCompany)
	assert.Equal(t, "Chicago", globex.row.Derived.NormalizedLocation, "free-form location stands in for the city")
	assert.Equal(t, model.FitStrong, globex.row.Derived.FitScore)
	assert.Equal(t, "globex.com", globex.row.Domain)
	assert.Equal(t, "sales@globex.com", globex.row.Email)
	assert.Equal(t, "1,200", globex.input.EmployeeCount)
	assert.Equal(t, 2, globex.input.DeterministicScore)
	assert.False(t, globex.eligible(false), "strong fits are not routed to enrichment")
	assert.True(t, globex.eligible(true))

	for _, l := range leads[1:] {
		assert.NotEmpty(t, l.invalid)
		assert.Equal(t, model.DerivedFields{}, l.row.Derived)
		assert.Empty(t, l.row.Domain)
		assert.Empty(t, l.row.Email)
		assert.False(t, l.eligible(true), "invalid rows are never enriched")
	}
	assert.Contains(t, leads[1].invalid, "missing identifying field")
	assert.Contains(t, leads[2].invalid, "invalid UTF-8")
}

func TestSample(t *testing.T) {
	headers := []string{"a", "b"}
	ds := &ingest.Dataset{
		Headers: headers,
		Records: []model.Record{
			model.NewRecord(0, headers, []string{"1", "2"}),
			model.NewRecord(1, headers, []string{"3"}),
			model.NewRecord(2, headers, []string{"5", "6"}),
		},
	}

	assert.Equal(t, [][]string{{"1", "2"}, {"3", ""}}, sample(ds, 2))
	assert.Len(t, sample(ds, 10), 3)
	assert.Empty(t, sample(ds, 0))
	assert.Empty(t, sample(ds, -1))
}

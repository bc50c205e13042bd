package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadbatch/internal/dedup"
	"github.com/sells-group/leadbatch/internal/enrich"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/output"
	"github.com/sells-group/leadbatch/internal/resilience"
	storemocks "github.com/sells-group/leadbatch/internal/store/mocks"
)

const leadHeader = "Company Name,Email,Website,Industry,Employees,City"

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leads.csv")
	body := leadHeader + "\n" + strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// generatedLeads returns n distinct rows that all score 0 deterministically.
func generatedLeads(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("Company %03d Inc,contact@co%03d.com,https://co%03d.com,Software,5,Austin", i, i, i)
	}
	return lines
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func column(t *testing.T, records [][]string, name string) []string {
	t.Helper()
	idx := -1
	for i, h := range records[0] {
		if h == name {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0, "column %s not in output", name)
	out := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		out = append(out, rec[idx])
	}
	return out
}

func fastRetry(maxAttempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func enrichOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		BatchSize:         200,
		MaxConcurrent:     2,
		SampleRows:        50,
		EnrichmentEnabled: true,
		EnrichAll:         true,
		CheckpointDir:     filepath.Join(t.TempDir(), "checkpoints"),
	}
}

func stubAdapter(stub *enrich.StubBackend) *enrich.Adapter {
	return enrich.NewAdapter(stub, nil, enrich.Options{Retry: fastRetry(2)})
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{name: "zero batch size", opts: Options{BatchSize: 0}, want: "batch_size must be positive"},
		{name: "enrichment without adapter", opts: Options{BatchSize: 10, EnrichmentEnabled: true, CheckpointDir: "x"}, want: "no adapter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts, nil, nil)
			require.Error(t, err)
			assert.True(t, resilience.IsFatalConfig(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_DeterministicOnly(t *testing.T) {
	in := writeInput(t,
		`"Acme Solutions, LLC",info@acme.com,https://www.acme.com,Business Process Outsourcing,250,San Francisco`,
		`Beta Soft Inc,hello@beta.io,,Software,5,Austin`,
		`,,,Retail,10,`,
	)
	out := filepath.Join(t.TempDir(), "out.csv")

	p, err := New(Options{BatchSize: 200, SampleRows: 50}, nil, nil)
	require.NoError(t, err)

	m, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)

	records := readOutput(t, out)
	assert.Equal(t, strings.Split(leadHeader, ","), records[0][:6])
	assert.Equal(t, output.BaseColumns, records[0][6:], "no enrichment columns when enrichment is off")
	require.Len(t, records, 4)

	assert.Equal(t, []string{"Acme Solutions", "Beta Soft", ""}, column(t, records, output.ColNormalizedCompany))
	assert.Equal(t, []string{"SF", "Austin", ""}, column(t, records, output.ColNormalizedLoc))
	assert.Equal(t, []string{"2", "0", "0"}, column(t, records, output.ColFitScore))
	assert.Contains(t, column(t, records, output.ColScoreReasoning)[0], "outsourcing/BPO")

	assert.Equal(t, 3, m.RowsIn)
	assert.Equal(t, 3, m.RowsOut)
	assert.Equal(t, 1, m.ValidationErrors)
	require.Len(t, m.InvalidRows, 1)
	assert.Equal(t, 2, m.InvalidRows[0].RowIndex)
	assert.Contains(t, m.InvalidRows[0].Reason, "missing identifying field")
	assert.Equal(t, map[string]int{"0": 2, "1": 0, "2": 1}, m.ScoreDistribution)
	assert.False(t, m.EnrichmentEnabled)

	onDisk, err := output.ReadManifest(output.ManifestPath(out))
	require.NoError(t, err)
	assert.Equal(t, m.RunID, onDisk.RunID)
	assert.Equal(t, 1, onDisk.ValidationErrors)
}

func TestRun_InputLabel(t *testing.T) {
	in := writeInput(t, generatedLeads(2)...)
	out := filepath.Join(t.TempDir(), "out.csv")

	p, err := New(Options{BatchSize: 200, InputLabel: "https://crm.example.com/leads.csv"}, nil, nil)
	require.NoError(t, err)

	m, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.com/leads.csv", m.Input)
	assert.Equal(t, 2, m.RowsOut)
}

func TestRun_DedupFirstSeen(t *testing.T) {
	in := writeInput(t,
		`Acme East,info@acme.com,,Software,5,Boston`,
		`Other Co,team@other.com,,Software,5,Denver`,
		`Acme West,INFO@acme.com,,Business Process Outsourcing,300,Seattle`,
	)
	out := filepath.Join(t.TempDir(), "out.csv")

	tests := []struct {
		name   string
		policy dedup.Policy
		want   []string
	}{
		{name: "first seen keeps the earlier row", policy: dedup.FirstSeen, want: []string{"Acme East", "Other Co"}},
		{name: "highest score keeps the stronger row", policy: dedup.HighestScore, want: []string{"Other Co", "Acme West"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(Options{BatchSize: 200, DedupPolicy: tt.policy}, nil, nil)
			require.NoError(t, err)

			m, err := p.Run(context.Background(), in, out)
			require.NoError(t, err)

			records := readOutput(t, out)
			assert.Equal(t, tt.want, column(t, records, "Company Name"))
			assert.Equal(t, 1, m.DedupRemovals)
			require.Len(t, m.DedupDropped, 1)
			assert.Equal(t, "email:info@acme.com", m.DedupDropped[0].Key)
			assert.Equal(t, 2, m.RowsOut)
		})
	}
}

func TestRun_ApolloExportKeepsDistinctCompanies(t *testing.T) {
	in := filepath.Join(t.TempDir(), "apollo.csv")
	body := "First Name,Company,Company Name for Emails,Email,Email Status,Industry,# Employees,Person Linkedin Url,Website\n" +
		"Ada,Acme Solutions LLC,Acme,ada@acme.com,Verified,Software,50,http://www.linkedin.com/in/ada,http://www.acme.com\n" +
		"Bob,Initech,Initech,bob@initech.com,Verified,Software,40,http://www.linkedin.com/in/bob,http://www.initech.com\n" +
		"Cy,Globex,Globex,cy@globex.com,Unavailable,Software,900,http://www.linkedin.com/in/cy,http://www.globex.com\n"
	require.NoError(t, os.WriteFile(in, []byte(body), 0o644))
	out := filepath.Join(t.TempDir(), "out.csv")

	p, err := New(Options{BatchSize: 200, SampleRows: 50}, nil, nil)
	require.NoError(t, err)

	m, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, 3, m.RowsIn)
	assert.Equal(t, 3, m.RowsOut, "profile links must not collapse rows onto linkedin.com")
	assert.Zero(t, m.DedupRemovals)
	assert.Empty(t, m.DedupDropped)

	records := readOutput(t, out)
	assert.Equal(t, []string{"Ada", "Bob", "Cy"}, column(t, records, "First Name"))
	assert.Equal(t, []string{"Acme Solutions", "Initech", "Globex"}, column(t, records, output.ColNormalizedCompany))
}

func TestRun_FailedBatchFallsBack(t *testing.T) {
	in := writeInput(t, generatedLeads(450)...)
	out := filepath.Join(t.TempDir(), "out.csv")

	stub := enrich.NewStubBackend()
	stub.Fail = func(req enrich.Request, _ int) error {
		if req.BatchID == 2 {
			return resilience.NewTransientError(errors.New("503 service unavailable"), 503)
		}
		return nil
	}
	p, err := New(enrichOptions(t), stubAdapter(stub), nil)
	require.NoError(t, err)

	m, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, 1, m.FailedBatches)
	assert.Equal(t, 3, m.Batches.Total)
	assert.Equal(t, 2, m.Batches.Succeeded)
	assert.Equal(t, []int{2}, m.Batches.FailedIDs)
	assert.Equal(t, 2, stub.Attempts(2), "batch 2 used its whole retry budget")
	assert.Equal(t, map[string]int{"succeeded": 250, "failed": 200}, m.EnrichmentStatus)
	require.NotNil(t, m.Enrichment)
	assert.Equal(t, "stub", m.Enrichment.Backend)

	records := readOutput(t, out)
	require.Len(t, records, 451, "every input row is written")
	status := column(t, records, output.ColEnrichmentStatus)
	scores := column(t, records, output.ColFitScore)
	reasons := column(t, records, output.ColScoreReasoning)
	for i := range status {
		want := "succeeded"
		if i >= 200 && i < 400 {
			want = "failed"
		}
		require.Equal(t, want, status[i], "row %d", i)
		assert.Equal(t, "0", scores[i])
	}
	assert.True(t, strings.HasPrefix(reasons[0], "offline: "), "enriched reasoning replaces the deterministic one")
	assert.True(t, strings.HasPrefix(reasons[250], "no qualifying signal"), "failed rows keep the deterministic fallback")
}

func TestRun_OnlyFlaggedRowsAreEnriched(t *testing.T) {
	in := writeInput(t,
		`Acme BPO,info@acme.com,,Business Process Outsourcing,300,Boston`,
		`Mystery Co,hi@mystery.com,,,,Denver`,
	)
	out := filepath.Join(t.TempDir(), "out.csv")

	stub := enrich.NewStubBackend()
	opts := enrichOptions(t)
	opts.EnrichAll = false
	p, err := New(opts, stubAdapter(stub), nil)
	require.NoError(t, err)

	m, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)

	records := readOutput(t, out)
	assert.Equal(t, []string{"skipped", "succeeded"}, column(t, records, output.ColEnrichmentStatus))
	assert.Equal(t, 1, m.Batches.Total)
	assert.Equal(t, 1, stub.Attempts(1))
}

func TestRun_FatalBeforeProgressWritesNothing(t *testing.T) {
	in := writeInput(t, generatedLeads(450)...)
	out := filepath.Join(t.TempDir(), "out.csv")

	stub := enrich.NewStubBackend()
	stub.Fail = func(enrich.Request, int) error {
		return resilience.NewFatalError(errors.New("invalid x-api-key"), 401)
	}
	opts := enrichOptions(t)
	opts.MaxConcurrent = 1
	p, err := New(opts, stubAdapter(stub), nil)
	require.NoError(t, err)

	m, err := p.Run(context.Background(), in, out)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.True(t, resilience.IsFatalConfig(err))
	assert.Contains(t, err.Error(), "invalid x-api-key")

	assert.NoFileExists(t, out)
	assert.NoFileExists(t, output.ManifestPath(out))
	assert.Equal(t, 1, stub.Attempts(1), "fatal errors are not retried")
	assert.Equal(t, 0, stub.Attempts(2), "no batch is dispatched after a fatal error")
}

func TestRun_ResumeMatchesUninterruptedRun(t *testing.T) {
	lines := generatedLeads(450)

	// Uninterrupted reference run.
	refIn := writeInput(t, lines...)
	refOut := filepath.Join(t.TempDir(), "ref.csv")
	ref, err := New(enrichOptions(t), stubAdapter(enrich.NewStubBackend()), nil)
	require.NoError(t, err)
	_, err = ref.Run(context.Background(), refIn, refOut)
	require.NoError(t, err)

	// First attempt aborts on batch 3 after two batches completed.
	in := writeInput(t, lines...)
	out := filepath.Join(t.TempDir(), "out.csv")
	opts := enrichOptions(t)
	opts.MaxConcurrent = 1

	failing := enrich.NewStubBackend()
	failing.Fail = func(req enrich.Request, _ int) error {
		if req.BatchID == 3 {
			return resilience.NewFatalError(errors.New("model not found"), 404)
		}
		return nil
	}
	first, err := New(opts, stubAdapter(failing), nil)
	require.NoError(t, err)
	m, err := first.Run(context.Background(), in, out)
	require.Error(t, err)
	assert.True(t, resilience.IsFatalConfig(err))
	require.NotNil(t, m, "progress was made, so output is written")
	assert.True(t, m.Aborted)
	assert.Contains(t, m.FatalReason, "model not found")
	assert.Equal(t, []int{3}, m.Batches.NotRunIDs)

	partial := readOutput(t, out)
	assert.Equal(t, "not_run", column(t, partial, output.ColEnrichmentStatus)[449])

	// Resume with a healthy backend.
	healthy := enrich.NewStubBackend()
	second, err := New(opts, stubAdapter(healthy), nil)
	require.NoError(t, err)
	m, err = second.Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.False(t, m.Aborted)
	assert.Equal(t, []int{1, 2}, m.Batches.Resumed)
	assert.Equal(t, 0, healthy.Attempts(1))
	assert.Equal(t, 0, healthy.Attempts(2))
	assert.Equal(t, 1, healthy.Attempts(3))

	want, err := os.ReadFile(refOut)
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestRun_CancelStopsDispatch(t *testing.T) {
	in := writeInput(t, generatedLeads(450)...)
	out := filepath.Join(t.TempDir(), "out.csv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := enrich.NewStubBackend()
	stub.Fail = func(req enrich.Request, _ int) error {
		if req.BatchID == 1 {
			cancel()
		}
		return nil
	}
	opts := enrichOptions(t)
	opts.MaxConcurrent = 1
	p, err := New(opts, stubAdapter(stub), nil)
	require.NoError(t, err)

	m, err := p.Run(ctx, in, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	require.NotNil(t, m)
	assert.True(t, m.Cancelled)
	assert.Equal(t, 1, m.Batches.Succeeded, "the in-flight batch finishes")
	assert.Equal(t, []int{2, 3}, m.Batches.NotRunIDs)
	assert.Equal(t, 0, stub.Attempts(2))

	records := readOutput(t, out)
	assert.Len(t, records, 451)
}

func TestRun_RecordsLedger(t *testing.T) {
	in := writeInput(t, generatedLeads(5)...)
	out := filepath.Join(t.TempDir(), "out.csv")

	ledger := storemocks.NewMockStore(t)
	ledger.On("CreateRun", mock.Anything, mock.MatchedBy(func(r model.Run) bool {
		return r.InputPath == in && r.OutputPath == out && r.Status == model.RunStatusRunning
	})).Return(&model.Run{ID: "exec-1"}, nil)
	ledger.On("RecordBatch", mock.Anything, "exec-1", mock.MatchedBy(func(o model.BatchOutcome) bool {
		return o.BatchID == 1 && o.Status == model.BatchSucceeded
	})).Return(nil)
	ledger.On("FinishRun", mock.Anything, "exec-1", model.RunStatusComplete, mock.MatchedBy(func(r *model.RunResult) bool {
		return r.RowsIn == 5 && r.RowsOut == 5 && r.Error == ""
	})).Return(nil)

	p, err := New(enrichOptions(t), stubAdapter(enrich.NewStubBackend()), ledger)
	require.NoError(t, err)

	m, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", m.ExecutionID)
}

func TestRun_LedgerFailureDoesNotStopRun(t *testing.T) {
	in := writeInput(t, generatedLeads(3)...)
	out := filepath.Join(t.TempDir(), "out.csv")

	ledger := storemocks.NewMockStore(t)
	ledger.On("CreateRun", mock.Anything, mock.Anything).Return(nil, errors.New("database is locked"))
	ledger.On("FinishRun", mock.Anything, mock.Anything, model.RunStatusComplete, mock.Anything).Return(errors.New("database is locked"))

	p, err := New(Options{BatchSize: 10}, nil, ledger)
	require.NoError(t, err)

	m, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ExecutionID)
	assert.FileExists(t, out)
}

func TestRun_MissingInput(t *testing.T) {
	p, err := New(Options{BatchSize: 10}, nil, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), filepath.Join(t.TempDir(), "out.csv"))
	require.Error(t, err)
}

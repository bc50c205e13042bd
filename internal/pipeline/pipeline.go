// Package pipeline runs one lead file end to end: schema detection,
// validation, normalization, scoring, batched enrichment, deduplication,
// and the merged output plus its manifest.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/checkpoint"
	"github.com/sells-group/leadbatch/internal/config"
	"github.com/sells-group/leadbatch/internal/dedup"
	"github.com/sells-group/leadbatch/internal/enrich"
	"github.com/sells-group/leadbatch/internal/ingest"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/normalize"
	"github.com/sells-group/leadbatch/internal/output"
	"github.com/sells-group/leadbatch/internal/resilience"
	"github.com/sells-group/leadbatch/internal/schema"
	"github.com/sells-group/leadbatch/internal/scorer"
	"github.com/sells-group/leadbatch/internal/store"
)

// Options is the immutable run configuration.
type Options struct {
	BatchSize         int
	MaxConcurrent     int
	DedupPolicy       dedup.Policy
	EnrichmentEnabled bool
	// EnrichAll routes every valid row to the adapter, not only the rows the
	// scorer could not settle.
	EnrichAll     bool
	SampleRows    int
	SniffValues   bool
	CheckpointDir string
	// RunID overrides the id derived from the input digest and batch size.
	RunID string
	// InputLabel names the input in the manifest and ledger when the file
	// read is a local copy, such as a downloaded URL.
	InputLabel string
	Rules      scorer.Rules
	CityMaxLen int
	Ingest     ingest.Options
}

// OptionsFromConfig converts loaded configuration into run options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := dedup.ParsePolicy(cfg.Pipeline.DedupPolicy)
	if err != nil {
		return Options{}, err
	}
	rules, err := scorer.FromConfig(cfg.Scoring)
	if err != nil {
		return Options{}, err
	}
	return Options{
		BatchSize:         cfg.Pipeline.BatchSize,
		MaxConcurrent:     cfg.Pipeline.MaxConcurrentBatches,
		DedupPolicy:       policy,
		EnrichmentEnabled: cfg.Pipeline.EnrichmentEnabled,
		EnrichAll:         cfg.Pipeline.EnrichAll,
		SampleRows:        cfg.Pipeline.SampleRows,
		SniffValues:       cfg.Pipeline.SniffValues,
		CheckpointDir:     cfg.Pipeline.CheckpointDir,
		Rules:             rules,
		CityMaxLen:        cfg.Normalize.CityMaxLen,
	}, nil
}

// Pipeline processes lead files. It holds no per-run state and may be reused.
type Pipeline struct {
	opts    Options
	adapter *enrich.Adapter
	ledger  store.Store
	scorer  *scorer.Scorer
	norm    normalize.Normalizer
}

// New creates a Pipeline. adapter may be nil when enrichment is disabled;
// ledger may be nil to skip the run ledger.
func New(opts Options, adapter *enrich.Adapter, ledger store.Store) (*Pipeline, error) {
	if opts.BatchSize <= 0 {
		return nil, resilience.NewFatalConfigError("batch_size must be positive", nil)
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.DedupPolicy == "" {
		opts.DedupPolicy = dedup.FirstSeen
	}
	if opts.EnrichmentEnabled && adapter == nil {
		return nil, resilience.NewFatalConfigError("enrichment is enabled but no adapter is configured", nil)
	}
	if opts.EnrichmentEnabled && opts.CheckpointDir == "" {
		return nil, resilience.NewFatalConfigError("checkpoint_dir is required when enrichment is enabled", nil)
	}
	if len(opts.Rules.OutsourcingTerms) == 0 {
		opts.Rules = scorer.DefaultRules()
	}
	return &Pipeline{
		opts:    opts,
		adapter: adapter,
		ledger:  ledger,
		scorer:  scorer.New(opts.Rules),
		norm:    normalize.Normalizer{CityMaxLen: opts.CityMaxLen},
	}, nil
}

// Run processes inputPath into outputPath and returns the manifest that was
// written next to it.
//
// A FatalConfigError raised before any batch completes leaves no output and
// is returned as is. A fatal error after progress still writes the output
// and an aborted manifest, and the error is returned with them; the
// checkpoint is left in place so the run can be resumed. Cancellation also
// writes what is known so far and returns the context error.
func (p *Pipeline) Run(ctx context.Context, inputPath, outputPath string) (*output.Manifest, error) {
	started := time.Now().UTC()
	label := inputPath
	if p.opts.InputLabel != "" {
		label = p.opts.InputLabel
	}
	log := zap.L().With(zap.String("input", label), zap.String("output", outputPath))
	log.Info("pipeline: starting run")

	ds, err := ingest.ReadFile(ctx, inputPath, p.opts.Ingest)
	if err != nil {
		return nil, err
	}

	runID := p.opts.RunID
	if runID == "" {
		runID = checkpoint.RunID(ds.Digest, p.opts.BatchSize)
	}
	log = log.With(zap.String("run_id", runID))

	roles := schema.Detect(ds.Headers, sample(ds, p.opts.SampleRows), schema.Options{SniffValues: p.opts.SniffValues})
	log.Info("pipeline: schema detected",
		zap.Int("columns", len(roles.Columns)),
		zap.Any("roles", roles.Summary()),
	)

	leads := p.prepare(ds, roles)

	execID := p.startLedger(ctx, model.Run{
		CheckpointID: runID,
		InputPath:    label,
		OutputPath:   outputPath,
		Status:       model.RunStatusRunning,
	})

	m := &output.Manifest{
		RunID:             runID,
		ExecutionID:       execID,
		Input:             label,
		Output:            outputPath,
		StartedAt:         started,
		RowsIn:            len(leads),
		DedupPolicy:       string(p.opts.DedupPolicy),
		EnrichmentEnabled: p.opts.EnrichmentEnabled,
	}
	for _, l := range leads {
		if l.invalid != "" {
			m.InvalidRows = append(m.InvalidRows, output.RowError{RowIndex: l.row.Record.RowIndex, Reason: l.invalid})
		}
	}
	m.ValidationErrors = len(m.InvalidRows)

	var runErr error
	if p.opts.EnrichmentEnabled {
		rep, err := p.runBatches(ctx, runID, execID, leads)
		if err != nil {
			p.finishLedger(execID, model.RunStatusFailed, m, err)
			return nil, err
		}
		if rep.Fatal != nil && rep.Completed() == 0 {
			log.Error("pipeline: aborted before any batch completed", zap.Error(rep.Fatal))
			p.finishLedger(execID, model.RunStatusFailed, m, rep.Fatal)
			return nil, rep.Fatal
		}
		p.merge(leads, rep)
		summarizeBatches(m, rep)
		stats := p.adapter.Stats()
		m.Enrichment = &stats

		switch {
		case rep.Fatal != nil:
			m.Aborted = true
			m.FatalReason = rep.Fatal.Error()
			runErr = rep.Fatal
		case rep.Cancelled:
			m.Cancelled = true
			runErr = eris.Wrap(ctx.Err(), "pipeline: run cancelled")
		}
	}

	rows := make([]model.Row, len(leads))
	for i, l := range leads {
		rows[i] = l.row
	}
	deduped := dedup.Apply(rows, p.opts.DedupPolicy)
	m.DedupRemovals = len(deduped.Removed)
	m.DedupDropped = deduped.Removed
	m.Tally(deduped.Rows)

	layout := output.NewLayout(ds.Headers, p.opts.EnrichmentEnabled)
	if err := output.WriteFile(outputPath, layout, deduped.Rows); err != nil {
		p.finishLedger(execID, model.RunStatusFailed, m, err)
		return nil, eris.Wrap(err, "pipeline: write output")
	}
	m.FinishedAt = time.Now().UTC()
	if err := output.WriteManifest(output.ManifestPath(outputPath), m); err != nil {
		p.finishLedger(execID, model.RunStatusFailed, m, err)
		return nil, eris.Wrap(err, "pipeline: write manifest")
	}

	status := model.RunStatusComplete
	if runErr != nil {
		status = model.RunStatusAborted
	}
	p.finishLedger(execID, status, m, runErr)

	log.Info("pipeline: run finished",
		zap.Int("rows_in", m.RowsIn),
		zap.Int("rows_out", m.RowsOut),
		zap.Int("dedup_removals", m.DedupRemovals),
		zap.Int("validation_errors", m.ValidationErrors),
		zap.Int("failed_batches", m.FailedBatches),
		zap.Bool("aborted", m.Aborted),
		zap.Bool("cancelled", m.Cancelled),
		zap.Duration("elapsed", m.FinishedAt.Sub(started)),
	)
	return m, runErr
}

// startLedger records the execution and returns its id. Ledger failures are
// logged; the run does not depend on the ledger.
func (p *Pipeline) startLedger(ctx context.Context, run model.Run) string {
	if p.ledger == nil {
		return uuid.New().String()
	}
	created, err := p.ledger.CreateRun(ctx, run)
	if err != nil {
		zap.L().Warn("pipeline: failed to record run", zap.String("run_id", run.CheckpointID), zap.Error(err))
		return uuid.New().String()
	}
	return created.ID
}

func (p *Pipeline) finishLedger(execID string, status model.RunStatus, m *output.Manifest, cause error) {
	if p.ledger == nil {
		return
	}
	res := &model.RunResult{
		RowsIn:        m.RowsIn,
		RowsOut:       m.RowsOut,
		DedupRemoved:  m.DedupRemovals,
		FailedBatches: m.FailedBatches,
	}
	if m.Enrichment != nil {
		res.CostUSD = m.Enrichment.CostUSD
	}
	if cause != nil {
		res.Error = cause.Error()
	}
	// The run may have been cancelled; the final status is still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.ledger.FinishRun(ctx, execID, status, res); err != nil {
		zap.L().Warn("pipeline: failed to finish run", zap.String("execution_id", execID), zap.Error(err))
	}
}

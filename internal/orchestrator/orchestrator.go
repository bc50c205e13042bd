// Package orchestrator partitions eligible rows into batches and drives them
// through the enrichment adapter with a bounded worker pool, persisting every
// terminal transition to the checkpoint.
package orchestrator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadbatch/internal/checkpoint"
	"github.com/sells-group/leadbatch/internal/enrich"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/resilience"
)

// Caller is the enrichment adapter as seen by the orchestrator.
type Caller interface {
	Call(ctx context.Context, req enrich.Request) (*enrich.Result, error)
}

// BatchRecorder receives terminal batch outcomes (the run ledger).
type BatchRecorder interface {
	RecordBatch(ctx context.Context, executionID string, o model.BatchOutcome) error
}

// RequestFunc builds the adapter request for a batch.
type RequestFunc func(b *model.Batch) enrich.Request

// Options configures an Orchestrator.
type Options struct {
	MaxConcurrent int
	// ExecutionID tags ledger rows; empty disables ledger writes.
	ExecutionID string
}

// Orchestrator runs batches. It is used for a single Run.
type Orchestrator struct {
	caller   Caller
	cp       *checkpoint.Checkpoint
	recorder BatchRecorder
	opts     Options
}

// New creates an Orchestrator. recorder may be nil.
func New(caller Caller, cp *checkpoint.Checkpoint, recorder BatchRecorder, opts Options) *Orchestrator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Orchestrator{caller: caller, cp: cp, recorder: recorder, opts: opts}
}

// Plan splits rows into contiguous batches of batchSize. Batch ids start at 1
// and follow row order, so the same input always yields the same plan.
func Plan(rows []int, batchSize int) ([]*model.Batch, error) {
	if batchSize <= 0 {
		return nil, resilience.NewFatalConfigError("batch_size must be positive", nil)
	}
	batches := make([]*model.Batch, 0, (len(rows)+batchSize-1)/batchSize)
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batches = append(batches, model.NewBatch(len(batches)+1, slices.Clone(rows[start:end])))
	}
	return batches, nil
}

// Report summarizes a Run.
type Report struct {
	// Results holds enrichment output by row index for every succeeded
	// batch, including batches restored from the checkpoint.
	Results   map[int]model.EnrichmentResult
	Batches   []*model.Batch
	Succeeded []int
	Skipped   []int // restored from a prior run
	Failed    []int
	NotRun    []int
	Outcomes  []model.BatchOutcome
	// Fatal is set when the run was aborted by a FatalConfigError.
	Fatal error
	// Cancelled is set when the caller's context ended the run early.
	Cancelled bool
}

// Completed counts batches that reached a terminal state, now or in a
// prior run.
func (r *Report) Completed() int {
	return len(r.Succeeded) + len(r.Skipped) + len(r.Failed)
}

// RowBatches maps every planned row index to its batch.
func (r *Report) RowBatches() map[int]*model.Batch {
	out := make(map[int]*model.Batch)
	for _, b := range r.Batches {
		for _, idx := range b.RowIndices {
			out[idx] = b
		}
	}
	return out
}

// Run dispatches batches until all have a terminal status, the context is
// cancelled, or a fatal error occurs. Cancellation and fatal errors stop
// dispatch of new batches; batches already in flight finish their current
// attempt. Run only returns an error for a checkpoint it cannot read back;
// everything else is reported.
func (o *Orchestrator) Run(ctx context.Context, batches []*model.Batch, build RequestFunc) (*Report, error) {
	log := zap.L().With(zap.String("run_id", o.cp.State().RunID))
	rep := &Report{
		Results: make(map[int]model.EnrichmentResult),
		Batches: batches,
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxConcurrent)

	for _, b := range batches {
		if o.cp.Succeeded(b.ID) {
			rows, err := o.cp.LoadBatch(b.ID)
			if err != nil {
				_ = g.Wait()
				return nil, resilience.NewFatalConfigError("checkpoint is missing results for a completed batch", err)
			}
			b.Status = model.BatchSucceeded
			mu.Lock()
			for idx, r := range rows {
				rep.Results[idx] = r
			}
			rep.Skipped = append(rep.Skipped, b.ID)
			mu.Unlock()
			log.Debug("batch already completed, skipping", zap.Int("batch_id", b.ID))
			continue
		}
		// Keep scanning after a stop so completed batches are still restored.
		if gctx.Err() != nil {
			continue
		}

		g.Go(func() error {
			// A slot may free up only after the run was stopped.
			if gctx.Err() != nil {
				return nil
			}
			return o.runBatch(gctx, b, build, rep, &mu)
		})
	}

	if err := g.Wait(); err != nil {
		rep.Fatal = err
	}
	rep.Cancelled = ctx.Err() != nil

	for _, b := range batches {
		if b.Status == model.BatchPending {
			rep.NotRun = append(rep.NotRun, b.ID)
		}
	}
	slices.Sort(rep.Succeeded)
	slices.Sort(rep.Failed)
	slices.Sort(rep.Skipped)
	slices.SortFunc(rep.Outcomes, func(a, b model.BatchOutcome) int { return a.BatchID - b.BatchID })

	log.Info("orchestrator: run finished",
		zap.Int("batches", len(batches)),
		zap.Int("succeeded", len(rep.Succeeded)),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Int("failed", len(rep.Failed)),
		zap.Int("not_run", len(rep.NotRun)),
		zap.Bool("cancelled", rep.Cancelled),
		zap.Bool("fatal", rep.Fatal != nil),
	)
	return rep, nil
}

// runBatch drives one batch to a terminal state. The returned error is
// non-nil only for run-level failures and stops further dispatch.
func (o *Orchestrator) runBatch(ctx context.Context, b *model.Batch, build RequestFunc, rep *Report, mu *sync.Mutex) error {
	log := zap.L().With(zap.Int("batch_id", b.ID), zap.Int("rows", len(b.RowIndices)))
	if err := b.Transition(model.BatchInFlight); err != nil {
		return err
	}

	res, err := o.caller.Call(ctx, build(b))

	var cancelled *enrich.CancelledError
	switch {
	case err == nil:
		b.Attempts = res.Attempts
		if err := o.cp.MarkSucceeded(b.ID, res.Rows); err != nil {
			_ = b.Abandon()
			return resilience.NewFatalConfigError("checkpoint write failed", err)
		}
		if err := b.Transition(model.BatchSucceeded); err != nil {
			return err
		}
		o.record(ctx, b, res.Latency, res.CostUSD, nil)

		mu.Lock()
		for idx, r := range res.Rows {
			rep.Results[idx] = r
		}
		rep.Succeeded = append(rep.Succeeded, b.ID)
		rep.Outcomes = append(rep.Outcomes, outcome(b, res.Latency, res.CostUSD, nil))
		mu.Unlock()
		log.Info("batch succeeded", zap.Int("attempts", b.Attempts), zap.Duration("latency", res.Latency))
		return nil

	case errors.As(err, &cancelled):
		b.Attempts = cancelled.Attempts
		log.Info("batch left pending after cancellation", zap.Int("attempts", b.Attempts))
		return b.Abandon()

	case resilience.IsFatal(err):
		_ = b.Abandon()
		log.Error("backend rejected batch, aborting run", zap.Error(err))
		if resilience.IsFatalConfig(err) {
			return err
		}
		return resilience.NewFatalConfigError("enrichment backend rejected the request", err)

	default:
		var latency time.Duration
		var spent float64
		var ae *enrich.AttemptError
		if errors.As(err, &ae) {
			b.Attempts = ae.Attempts
			latency = ae.Latency
			spent = ae.CostUSD
		}
		if werr := o.cp.MarkFailed(b.ID); werr != nil {
			_ = b.Abandon()
			return resilience.NewFatalConfigError("checkpoint write failed", werr)
		}
		if terr := b.Transition(model.BatchFailed); terr != nil {
			return terr
		}
		o.record(ctx, b, latency, spent, err)

		mu.Lock()
		rep.Failed = append(rep.Failed, b.ID)
		rep.Outcomes = append(rep.Outcomes, outcome(b, latency, spent, err))
		mu.Unlock()
		log.Warn("batch failed, rows fall back to deterministic scores",
			zap.Int("attempts", b.Attempts),
			zap.Error(err),
		)
		return nil
	}
}

func (o *Orchestrator) record(ctx context.Context, b *model.Batch, latency time.Duration, spent float64, cause error) {
	if o.recorder == nil || o.opts.ExecutionID == "" {
		return
	}
	// The ledger write must land even when the run is being cancelled.
	if err := o.recorder.RecordBatch(context.WithoutCancel(ctx), o.opts.ExecutionID, outcome(b, latency, spent, cause)); err != nil {
		zap.L().Warn("orchestrator: ledger write failed",
			zap.Int("batch_id", b.ID),
			zap.Error(eris.Wrap(err, "record batch")),
		)
	}
}

func outcome(b *model.Batch, latency time.Duration, spent float64, cause error) model.BatchOutcome {
	o := model.BatchOutcome{
		BatchID:    b.ID,
		Status:     b.Status,
		Attempts:   b.Attempts,
		Rows:       len(b.RowIndices),
		LatencyMs:  latency.Milliseconds(),
		CostUSD:    spent,
		FinishedAt: time.Now().UTC(),
	}
	if cause != nil {
		o.Error = cause.Error()
	}
	return o
}

package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/checkpoint"
	"github.com/sells-group/leadbatch/internal/enrich"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/orchestrator"
	"github.com/sells-group/leadbatch/internal/output"
)

// runBatches plans the eligible rows into batches and runs them against the
// checkpoint for runID. The error is non-nil only when the run cannot start
// or its checkpoint cannot be read back.
func (p *Pipeline) runBatches(ctx context.Context, runID, execID string, leads []*lead) (*orchestrator.Report, error) {
	byIndex := make(map[int]*lead, len(leads))
	var eligible []int
	for _, l := range leads {
		byIndex[l.row.Record.RowIndex] = l
		if l.eligible(p.opts.EnrichAll) {
			eligible = append(eligible, l.row.Record.RowIndex)
		}
	}

	batches, err := orchestrator.Plan(eligible, p.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	cp, err := checkpoint.Open(p.opts.CheckpointDir, runID, checkpoint.Plan{
		TotalRows:    len(eligible),
		TotalBatches: len(batches),
		BatchSize:    p.opts.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	workers := p.adapter.ConcurrencyCap(p.opts.MaxConcurrent)
	zap.L().Info("pipeline: enriching",
		zap.String("run_id", runID),
		zap.String("backend", p.adapter.Backend()),
		zap.Int("eligible_rows", len(eligible)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", workers),
		zap.Bool("resumed", cp.Resumed()),
	)

	var recorder orchestrator.BatchRecorder
	ledgerID := ""
	if p.ledger != nil {
		recorder = p.ledger
		ledgerID = execID
	}
	orch := orchestrator.New(p.adapter, cp, recorder, orchestrator.Options{
		MaxConcurrent: workers,
		ExecutionID:   ledgerID,
	})

	build := func(b *model.Batch) enrich.Request {
		rows := make([]enrich.RowInput, 0, len(b.RowIndices))
		for _, idx := range b.RowIndices {
			rows = append(rows, byIndex[idx].input)
		}
		return enrich.Request{BatchID: b.ID, Rows: rows}
	}
	return orch.Run(ctx, batches, build)
}

// merge attaches each eligible row's enrichment outcome. An enrichment score
// replaces the deterministic one; rows of failed batches keep the
// deterministic result as their fallback. The derived fields are rebuilt, not
// patched, so a replaced score never carries the reasoning of the old one.
func (p *Pipeline) merge(leads []*lead, rep *orchestrator.Report) {
	owner := rep.RowBatches()
	backend := ""
	if p.adapter != nil {
		backend = p.adapter.Backend()
	}
	for _, l := range leads {
		idx := l.row.Record.RowIndex
		b, planned := owner[idx]
		if !planned {
			continue
		}

		var res model.EnrichmentResult
		switch b.Status {
		case model.BatchSucceeded:
			r, ok := rep.Results[idx]
			if !ok {
				res = model.EnrichmentResult{Status: model.EnrichmentFailed}
				break
			}
			res = r
		case model.BatchFailed:
			res = model.EnrichmentResult{Status: model.EnrichmentFailed}
		default:
			res = model.EnrichmentResult{Status: model.EnrichmentNotRun}
		}
		l.row.Derived = mergedFields(l.row.Derived, res, backend)
	}
}

// mergedFields returns the derived fields for a row after enrichment.
func mergedFields(det model.DerivedFields, res model.EnrichmentResult, backend string) model.DerivedFields {
	out := model.DerivedFields{
		NormalizedCompany:  det.NormalizedCompany,
		NormalizedLocation: det.NormalizedLocation,
		FitScore:           det.FitScore,
		ScoreReasoning:     det.ScoreReasoning,
		Enrichment:         &res,
	}
	if res.FitScore == nil {
		return out
	}

	out.FitScore = *res.FitScore
	switch {
	case res.Reasoning != "":
		out.ScoreReasoning = res.Reasoning
	case out.FitScore != det.FitScore:
		out.ScoreReasoning = fmt.Sprintf("enrichment score %d (%s)", out.FitScore, backend)
	}
	return out
}

func summarizeBatches(m *output.Manifest, rep *orchestrator.Report) {
	m.FailedBatches = len(rep.Failed)
	m.Batches = output.BatchSummary{
		Total:     len(rep.Batches),
		Succeeded: len(rep.Succeeded) + len(rep.Skipped),
		Resumed:   rep.Skipped,
		FailedIDs: rep.Failed,
		NotRunIDs: rep.NotRun,
	}
}

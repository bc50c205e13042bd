// Package monitoring summarizes recent runs from the run ledger, evaluates
// them against alert thresholds and posts breaches to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/store"
)

// MetricsSnapshot holds a point-in-time view of recent runs.
type MetricsSnapshot struct {
	RunsTotal    int `json:"runs_total"`
	RunsComplete int `json:"runs_complete"`
	RunsAborted  int `json:"runs_aborted"`
	RunsFailed   int `json:"runs_failed"`
	RunsRunning  int `json:"runs_running"`

	// RunsStale counts runs still marked running whose last update is older
	// than the stale threshold; the process most likely died.
	RunsStale int `json:"runs_stale"`

	// FailRate is (aborted + failed) / finished.
	FailRate      float64 `json:"fail_rate"`
	RowsIn        int     `json:"rows_in"`
	RowsOut       int     `json:"rows_out"`
	FailedBatches int     `json:"failed_batches"`
	CostUSD       float64 `json:"cost_usd"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished is the number of runs that reached a terminal status.
func (s *MetricsSnapshot) Finished() int {
	return s.RunsComplete + s.RunsAborted + s.RunsFailed
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run ledger.
type Collector struct {
	runs       RunLister
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. Running executions not updated within
// staleAfter are counted as stale; zero disables the check.
func NewCollector(runs RunLister, staleAfter time.Duration) *Collector {
	return &Collector{runs: runs, staleAfter: staleAfter, now: time.Now}
}

// Collect gathers a snapshot of the runs created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusAborted:
			snap.RunsAborted++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
			if c.staleAfter > 0 && now.Sub(r.UpdatedAt) > c.staleAfter {
				snap.RunsStale++
			}
		}
		if r.Summary != nil {
			snap.RowsIn += r.Summary.RowsIn
			snap.RowsOut += r.Summary.RowsOut
			snap.FailedBatches += r.Summary.FailedBatches
			snap.CostUSD += r.Summary.CostUSD
		}
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.RunsAborted+snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}

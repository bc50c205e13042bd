// Package checkpoint persists batch progress so an interrupted run can resume
// where it stopped. A run directory holds checkpoint.json (the progress
// marker) and batches/<id>.json (the stored results of each succeeded batch).
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/fsutil"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/resilience"
)

const (
	stateFile  = "checkpoint.json"
	batchesDir = "batches"
)

// Plan describes the batch layout a checkpoint was created for. Resuming
// against a different plan would skip the wrong rows, so Open rejects it.
type Plan struct {
	TotalRows    int `json:"total_rows"`
	TotalBatches int `json:"total_batches"`
	BatchSize    int `json:"batch_size"`
}

// State is the on-disk progress marker.
type State struct {
	RunID                string    `json:"run_id"`
	LastCompletedBatchID int       `json:"last_completed_batch_id"`
	CompletedBatchIDs    []int     `json:"completed_batch_ids"`
	FailedBatchIDs       []int     `json:"failed_batch_ids"`
	TotalRows            int       `json:"total_rows"`
	TotalBatches         int       `json:"total_batches"`
	BatchSize            int       `json:"batch_size"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Plan returns the layout recorded in the state.
func (s State) Plan() Plan {
	return Plan{TotalRows: s.TotalRows, TotalBatches: s.TotalBatches, BatchSize: s.BatchSize}
}

// Checkpoint is the single writer for one run directory. All mutating calls
// are serialized, so concurrent workers never observe a half-written file.
type Checkpoint struct {
	dir     string
	resumed bool

	mu        sync.Mutex
	state     State
	completed map[int]bool
	failed    map[int]bool
	now       func() time.Time
}

// RunID derives a stable run identifier from the input digest and batch
// size, so rerunning the same file with the same settings resumes.
func RunID(digest string, batchSize int) string {
	if len(digest) > 16 {
		digest = digest[:16]
	}
	return fmt.Sprintf("%s-b%d", digest, batchSize)
}

// Open loads the checkpoint for runID under root, creating an empty one when
// none exists. A stored plan that differs from plan, or an unreadable
// checkpoint, is a FatalConfigError.
func Open(root, runID string, plan Plan) (*Checkpoint, error) {
	if runID == "" {
		return nil, resilience.NewFatalConfigError("checkpoint: run id is required", nil)
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(filepath.Join(dir, batchesDir), 0o755); err != nil {
		return nil, resilience.NewFatalConfigError("checkpoint: create "+dir, err)
	}

	c := &Checkpoint{
		dir:       dir,
		completed: make(map[int]bool),
		failed:    make(map[int]bool),
		now:       time.Now,
	}

	st, err := readState(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		now := c.now().UTC()
		c.state = State{
			RunID:             runID,
			CompletedBatchIDs: []int{},
			FailedBatchIDs:    []int{},
			TotalRows:         plan.TotalRows,
			TotalBatches:      plan.TotalBatches,
			BatchSize:         plan.BatchSize,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := c.persistLocked(); err != nil {
			return nil, err
		}
		return c, nil
	case err != nil:
		return nil, resilience.NewFatalConfigError("checkpoint: load "+dir, err)
	}

	if st.Plan() != plan {
		return nil, resilience.NewFatalConfigError(fmt.Sprintf(
			"checkpoint: run %s was planned as %d rows in %d batches of %d, now %d rows in %d batches of %d",
			runID, st.TotalRows, st.TotalBatches, st.BatchSize,
			plan.TotalRows, plan.TotalBatches, plan.BatchSize), nil)
	}

	c.state = *st
	c.resumed = true
	for _, id := range st.CompletedBatchIDs {
		c.completed[id] = true
	}
	for _, id := range st.FailedBatchIDs {
		c.failed[id] = true
	}
	zap.L().Info("checkpoint: resuming run",
		zap.String("run_id", runID),
		zap.Int("completed_batches", len(c.completed)),
		zap.Int("failed_batches", len(c.failed)),
		zap.Int("total_batches", st.TotalBatches),
	)
	return c, nil
}

// Load reads the state of runID under root without opening it for writing.
func Load(root, runID string) (*State, error) {
	st, err := readState(filepath.Join(root, runID))
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: load run %s", runID)
	}
	return st, nil
}

func readState(dir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrap(err, "checkpoint: decode state")
	}
	return &st, nil
}

// Dir is the run directory.
func (c *Checkpoint) Dir() string { return c.dir }

// Resumed reports whether Open found prior state on disk.
func (c *Checkpoint) Resumed() bool { return c.resumed }

// Succeeded reports whether batch id already completed in this or a prior run.
func (c *Checkpoint) Succeeded(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed[id]
}

// State returns a copy of the current state.
func (c *Checkpoint) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.CompletedBatchIDs = slices.Clone(c.state.CompletedBatchIDs)
	st.FailedBatchIDs = slices.Clone(c.state.FailedBatchIDs)
	return st
}

// MarkSucceeded stores the batch results, then records the batch as
// completed. The results file is written first so a completed id always has
// results behind it.
func (c *Checkpoint) MarkSucceeded(id int, rows map[int]model.EnrichmentResult) error {
	data, err := encodeBatch(id, rows)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := fsutil.WriteFileAtomic(c.batchPath(id), data); err != nil {
		return eris.Wrapf(err, "checkpoint: write batch %d", id)
	}
	c.completed[id] = true
	delete(c.failed, id)
	return c.persistLocked()
}

// MarkFailed records that batch id exhausted its retries.
func (c *Checkpoint) MarkFailed(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.completed[id] {
		return nil
	}
	c.failed[id] = true
	return c.persistLocked()
}

// LoadBatch returns the stored results of a succeeded batch.
func (c *Checkpoint) LoadBatch(id int) (map[int]model.EnrichmentResult, error) {
	data, err := os.ReadFile(c.batchPath(id))
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: read batch %d", id)
	}
	var fb fileBatch
	if err := json.Unmarshal(data, &fb); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode batch %d", id)
	}
	out := make(map[int]model.EnrichmentResult, len(fb.Rows))
	for _, r := range fb.Rows {
		out[r.RowIndex] = r.Result
	}
	return out, nil
}

func (c *Checkpoint) batchPath(id int) string {
	return filepath.Join(c.dir, batchesDir, fmt.Sprintf("%06d.json", id))
}

// persistLocked rewrites checkpoint.json from the in-memory sets. c.mu must
// be held (or c not yet shared).
func (c *Checkpoint) persistLocked() error {
	c.state.CompletedBatchIDs = sortedKeys(c.completed)
	c.state.FailedBatchIDs = sortedKeys(c.failed)
	c.state.LastCompletedBatchID = contiguousPrefix(c.completed)
	c.state.UpdatedAt = c.now().UTC()

	data, err := json.MarshalIndent(c.state, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: encode state")
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(c.dir, stateFile), data); err != nil {
		return eris.Wrap(err, "checkpoint: write state")
	}
	return nil
}

// contiguousPrefix returns the highest id n such that 1..n all succeeded.
func contiguousPrefix(done map[int]bool) int {
	n := 0
	for done[n+1] {
		n++
	}
	return n
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

type fileBatch struct {
	BatchID int       `json:"batch_id"`
	Rows    []fileRow `json:"rows"`
}

type fileRow struct {
	RowIndex int                    `json:"row_index"`
	Result   model.EnrichmentResult `json:"result"`
}

func encodeBatch(id int, rows map[int]model.EnrichmentResult) ([]byte, error) {
	fb := fileBatch{BatchID: id, Rows: make([]fileRow, 0, len(rows))}
	for idx, r := range rows {
		fb.Rows = append(fb.Rows, fileRow{RowIndex: idx, Result: r})
	}
	slices.SortFunc(fb.Rows, func(a, b fileRow) int { return a.RowIndex - b.RowIndex })
	data, err := json.Marshal(fb)
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: encode batch %d", id)
	}
	return data, nil
}

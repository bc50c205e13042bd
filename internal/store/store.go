// Package store is the run ledger: one row per pipeline execution and one row
// per terminal batch outcome. It is an audit trail next to the checkpoint,
// never a source of truth for resume.
package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadbatch/internal/config"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/resilience"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CheckpointID string          `json:"checkpoint_id,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Batches
	RecordBatch(ctx context.Context, runID string, o model.BatchOutcome) error
	ListBatches(ctx context.Context, runID string) ([]model.BatchOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the ledger selected by cfg and migrates it. Driver "none"
// returns a nil Store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.DatabaseURL); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "store: create %s", dir)
			}
		}
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, resilience.NewFatalConfigError("unknown store driver "+cfg.Driver, nil)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck,gosec
		return nil, err
	}
	return s, nil
}

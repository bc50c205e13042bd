package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadbatch/internal/db"
	"github.com/sells-group/leadbatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a small connection pool; the
// ledger writes one row per batch, so a handful of connections is plenty.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, 4)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

var batchUpsertSQL = mustUpsertSQL(db.UpsertConfig{
	Table:        "batch_outcomes",
	Columns:      []string{"run_id", "batch_id", "status", "attempts", "row_count", "latency_ms", "cost_usd", "error", "finished_at"},
	ConflictKeys: []string{"run_id", "batch_id"},
})

func mustUpsertSQL(cfg db.UpsertConfig) string {
	sql, err := db.UpsertSQL(cfg)
	if err != nil {
		panic(err)
	}
	return sql
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	checkpoint_id TEXT NOT NULL,
	input_path    TEXT NOT NULL,
	output_path   TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	summary       JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS batch_outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	batch_id    INTEGER NOT NULL,
	status      TEXT NOT NULL,
	attempts    INTEGER NOT NULL,
	row_count   INTEGER NOT NULL,
	latency_ms  BIGINT NOT NULL,
	cost_usd    DOUBLE PRECISION NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	finished_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, batch_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_checkpoint ON runs(checkpoint_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.Status = model.RunStatusRunning
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, checkpoint_id, input_path, output_path, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.CheckpointID, run.InputPath, run.OutputPath, string(run.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	summary, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(status), summary, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, checkpoint_id, input_path, output_path, status, summary, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, checkpoint_id, input_path, output_path, status, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.CheckpointID != "" {
		args = append(args, filter.CheckpointID)
		query += ` AND checkpoint_id = $` + strconv.Itoa(len(args))
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter.UTC())
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordBatch(ctx context.Context, runID string, o model.BatchOutcome) error {
	_, err := s.pool.Exec(ctx, batchUpsertSQL,
		runID, o.BatchID, string(o.Status), o.Attempts, o.Rows, o.LatencyMs, o.CostUSD, o.Error, o.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record batch %d for run %s", o.BatchID, runID)
}

func (s *PostgresStore) ListBatches(ctx context.Context, runID string) ([]model.BatchOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT batch_id, status, attempts, row_count, latency_ms, cost_usd, error, finished_at
		 FROM batch_outcomes WHERE run_id = $1 ORDER BY batch_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var out []model.BatchOutcome
	for rows.Next() {
		var (
			o      model.BatchOutcome
			status string
		)
		if err := rows.Scan(&o.BatchID, &status, &o.Attempts, &o.Rows, &o.LatencyMs, &o.CostUSD, &o.Error, &o.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		o.Status = model.BatchStatus(status)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		r       model.Run
		status  string
		summary []byte
	)
	if err := row.Scan(&r.ID, &r.CheckpointID, &r.InputPath, &r.OutputPath, &status, &summary, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(summary) > 0 && string(summary) != "null" {
		r.Summary = &model.RunResult{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}

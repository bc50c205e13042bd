package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadbatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	checkpoint_id TEXT NOT NULL,
	input_path    TEXT NOT NULL,
	output_path   TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	summary       TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS batch_outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	batch_id    INTEGER NOT NULL,
	status      TEXT NOT NULL,
	attempts    INTEGER NOT NULL,
	row_count   INTEGER NOT NULL,
	latency_ms  INTEGER NOT NULL,
	cost_usd    REAL NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	finished_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, batch_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_checkpoint ON runs(checkpoint_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.Status = model.RunStatusRunning
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, checkpoint_id, input_path, output_path, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CheckpointID, run.InputPath, run.OutputPath, string(run.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	summary, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(status), string(summary), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, checkpoint_id, input_path, output_path, status, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, checkpoint_id, input_path, output_path, status, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CheckpointID != "" {
		query += ` AND checkpoint_id = ?`
		args = append(args, filter.CheckpointID)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordBatch(ctx context.Context, runID string, o model.BatchOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_outcomes (run_id, batch_id, status, attempts, row_count, latency_ms, cost_usd, error, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, batch_id) DO UPDATE SET
		   status = excluded.status, attempts = excluded.attempts, row_count = excluded.row_count,
		   latency_ms = excluded.latency_ms, cost_usd = excluded.cost_usd, error = excluded.error,
		   finished_at = excluded.finished_at`,
		runID, o.BatchID, string(o.Status), o.Attempts, o.Rows, o.LatencyMs, o.CostUSD, o.Error, o.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record batch %d for run %s", o.BatchID, runID)
}

func (s *SQLiteStore) ListBatches(ctx context.Context, runID string) ([]model.BatchOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, status, attempts, row_count, latency_ms, cost_usd, error, finished_at
		 FROM batch_outcomes WHERE run_id = ? ORDER BY batch_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var out []model.BatchOutcome
	for rows.Next() {
		var o model.BatchOutcome
		if err := rows.Scan(&o.BatchID, &o.Status, &o.Attempts, &o.Rows, &o.LatencyMs, &o.CostUSD, &o.Error, &o.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summary sql.NullString

	err := row.Scan(&r.ID, &r.CheckpointID, &r.InputPath, &r.OutputPath, &r.Status, &summary, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if summary.Valid && summary.String != "null" {
		r.Summary = &model.RunResult{}
		if err := json.Unmarshal([]byte(summary.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}

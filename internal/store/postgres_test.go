package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadbatch/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "checkpoint_id", "input_path", "output_path", "status", "summary", "created_at", "updated_at"}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "abc-b200", "leads.csv", "out.csv", "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.Run{CheckpointID: "abc-b200", InputPath: "leads.csv", OutputPath: "out.csv"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, checkpoint_id, input_path, output_path, status, summary, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", "abc-b200", "leads.csv", "out.csv", "complete", []byte(`{"rows_in":450,"rows_out":450,"dedup_removed":0,"failed_batches":1}`), now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 1, run.Summary.FailedBatches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, summary = \$2`).
		WithArgs("aborted", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE runs`).
		WithArgs("failed", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.FinishRun(context.Background(), "run-1", model.RunStatusAborted, &model.RunResult{Error: "fatal config"}))
	err := s.FinishRun(context.Background(), "missing", model.RunStatusFailed, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`AND status = \$1 AND checkpoint_id = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("running", "abc", 10, 20).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", "abc", "in.csv", "out.csv", "running", []byte(nil), now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Status: model.RunStatusRunning, CheckpointID: "abc", Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].Summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_CreatedAfter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`AND created_at >= \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(cutoff, 100).
		WillReturnRows(pgxmock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{CreatedAfter: cutoff})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordBatch_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`ON CONFLICT \("run_id", "batch_id"\) DO UPDATE`).
		WithArgs("run-1", 2, "failed", 3, 200, int64(1500), 0.0, "503", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordBatch(context.Background(), "run-1", model.BatchOutcome{
		BatchID: 2, Status: model.BatchFailed, Attempts: 3, Rows: 200,
		LatencyMs: 1500, Error: "503", FinishedAt: finished,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBatches(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM batch_outcomes WHERE run_id = \$1 ORDER BY batch_id`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"batch_id", "status", "attempts", "row_count", "latency_ms", "cost_usd", "error", "finished_at"}).
			AddRow(1, "succeeded", 1, 200, int64(800), 0.01, "", finished).
			AddRow(2, "failed", 3, 200, int64(1500), 0.0, "503", finished))

	batches, err := s.ListBatches(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, model.BatchFailed, batches[1].Status)
	assert.Equal(t, int64(1500), batches[1].LatencyMs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnError(errors.New("permission denied"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: migrate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/store"
	storemocks "github.com/sells-group/leadbatch/internal/store/mocks"
)

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func run(status model.RunStatus, age time.Duration, summary *model.RunResult) model.Run {
	return model.Run{
		ID:        string(status) + age.String(),
		Status:    status,
		Summary:   summary,
		CreatedAt: fixedNow.Add(-age),
		UpdatedAt: fixedNow.Add(-age),
	}
}

func newTestCollector(t *testing.T, runs []model.Run, err error) *Collector {
	t.Helper()
	st := storemocks.NewMockStore(t)
	st.On("ListRuns", mock.Anything, mock.MatchedBy(func(f store.RunFilter) bool {
		return f.CreatedAfter.Equal(fixedNow.Add(-24*time.Hour)) && f.Limit == 10000
	})).Return(runs, err)

	c := NewCollector(st, 6*time.Hour)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollect(t *testing.T) {
	c := newTestCollector(t, []model.Run{
		run(model.RunStatusComplete, time.Hour, &model.RunResult{RowsIn: 450, RowsOut: 449, FailedBatches: 1, CostUSD: 0.42}),
		run(model.RunStatusComplete, 2*time.Hour, &model.RunResult{RowsIn: 100, RowsOut: 100, CostUSD: 0.08}),
		run(model.RunStatusAborted, 3*time.Hour, &model.RunResult{RowsIn: 200, RowsOut: 200}),
		run(model.RunStatusFailed, 4*time.Hour, nil),
		run(model.RunStatusRunning, 30*time.Minute, nil),
		run(model.RunStatusRunning, 10*time.Hour, nil),
	}, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 6, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsAborted)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 2, snap.RunsRunning)
	assert.Equal(t, 1, snap.RunsStale)
	assert.Equal(t, 4, snap.Finished())
	assert.InDelta(t, 0.5, snap.FailRate, 1e-9)
	assert.Equal(t, 750, snap.RowsIn)
	assert.Equal(t, 749, snap.RowsOut)
	assert.Equal(t, 1, snap.FailedBatches)
	assert.InDelta(t, 0.50, snap.CostUSD, 1e-9)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollect_Empty(t *testing.T) {
	snap, err := newTestCollector(t, nil, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailRate)
}

func TestCollect_ListError(t *testing.T) {
	_, err := newTestCollector(t, nil, assert.AnError).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

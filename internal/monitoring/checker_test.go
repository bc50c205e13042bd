package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/model"
)

func TestChecker_Check(t *testing.T) {
	c := newTestCollector(t, []model.Run{
		run(model.RunStatusRunning, 12*time.Hour, nil),
	}, nil)
	cfg := testMonitoringConfig()
	checker := NewChecker(c, NewAlerter(cfg), cfg)

	snap, alerts := checker.Check(context.Background(), zap.NewNop())
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.RunsStale)
	assert.Equal(t, []AlertType{AlertStaleRuns}, alertTypes(alerts))
}

func TestChecker_CheckCollectError(t *testing.T) {
	c := newTestCollector(t, nil, assert.AnError)
	cfg := testMonitoringConfig()

	snap, alerts := NewChecker(c, NewAlerter(cfg), cfg).Check(context.Background(), zap.NewNop())
	assert.Nil(t, snap)
	assert.Nil(t, alerts)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := newTestCollector(t, nil, nil)
	cfg := testMonitoringConfig()
	cfg.CheckIntervalSecs = 1
	checker := NewChecker(c, NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker.Run did not return after context cancellation")
	}
}

package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadbatch/internal/config"
	"github.com/sells-group/leadbatch/internal/resilience"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold: 0.25,
		MinFinishedRuns:      4,
		CostThresholdUSD:     10,
		StaleRunHours:        6,
		LookbackWindowHours:  24,
	}
}

func fastAlerter(cfg config.MonitoringConfig) *Alerter {
	a := NewAlerter(cfg)
	a.retry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	return a
}

func alertTypes(alerts []Alert) []AlertType {
	out := make([]AlertType, len(alerts))
	for i, a := range alerts {
		out[i] = a.Type
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		snap MetricsSnapshot
		want []AlertType
	}{
		{
			name: "healthy",
			snap: MetricsSnapshot{RunsComplete: 10, CostUSD: 1},
			want: []AlertType{},
		},
		{
			name: "failure rate over threshold",
			snap: MetricsSnapshot{RunsComplete: 2, RunsAborted: 1, RunsFailed: 1, FailRate: 0.5},
			want: []AlertType{AlertRunFailureRate},
		},
		{
			name: "too few finished runs to judge",
			snap: MetricsSnapshot{RunsComplete: 1, RunsFailed: 2, FailRate: 0.67},
			want: []AlertType{},
		},
		{
			name: "cost overrun and stale",
			snap: MetricsSnapshot{RunsComplete: 5, CostUSD: 12.5, RunsRunning: 2, RunsStale: 1},
			want: []AlertType{AlertCostOverrun, AlertStaleRuns},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := NewAlerter(testMonitoringConfig()).Evaluate(&tt.snap)
			assert.Equal(t, tt.want, alertTypes(alerts))
		})
	}
}

func TestEvaluate_ZeroThresholdsDisableChecks(t *testing.T) {
	snap := &MetricsSnapshot{RunsComplete: 1, RunsFailed: 9, FailRate: 0.9, CostUSD: 1e6}
	assert.Empty(t, NewAlerter(config.MonitoringConfig{}).Evaluate(snap))
}

func TestSendAlerts(t *testing.T) {
	var got []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var a Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		got = append(got, a)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	a := fastAlerter(cfg)

	alerts := a.Evaluate(&MetricsSnapshot{RunsComplete: 5, CostUSD: 20, LookbackHours: 24})
	require.Len(t, alerts, 1)

	assert.Equal(t, 1, a.SendAlerts(context.Background(), alerts))
	require.Len(t, got, 1)
	assert.Equal(t, AlertCostOverrun, got[0].Type)
	assert.Contains(t, got[0].Message, "$20.00")
}

func TestSendAlerts_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL

	sent := fastAlerter(cfg).SendAlerts(context.Background(), []Alert{{Type: AlertStaleRuns}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendAlerts_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL

	sent := fastAlerter(cfg).SendAlerts(context.Background(), []Alert{{Type: AlertStaleRuns}})
	assert.Zero(t, sent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendAlerts_NoWebhook(t *testing.T) {
	assert.Zero(t, NewAlerter(config.MonitoringConfig{}).SendAlerts(context.Background(), []Alert{{Type: AlertStaleRuns}}))
}

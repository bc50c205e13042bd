package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/config"
	"github.com/sells-group/leadbatch/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertCostOverrun    AlertType = "cost_overrun"
	AlertStaleRuns      AlertType = "stale_runs"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.DefaultRetryConfig(),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	minFinished := a.cfg.MinFinishedRuns
	if minFinished <= 0 {
		minFinished = 5
	}
	finished := snap.Finished()
	if a.cfg.FailureRateThreshold > 0 && finished >= minFinished && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d aborted or failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsAborted+snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"fail_rate": snap.FailRate,
				"threshold": a.cfg.FailureRateThreshold,
				"aborted":   snap.RunsAborted,
				"failed":    snap.RunsFailed,
				"finished":  finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Enrichment cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"runs_total":    snap.RunsTotal,
			},
			Timestamp: now,
		})
	}

	if snap.RunsStale > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStaleRuns,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d run(s) still marked running after %dh without an update",
				snap.RunsStale, a.cfg.StaleRunHours,
			),
			Details: map[string]any{
				"stale":   snap.RunsStale,
				"running": snap.RunsRunning,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		_, err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return resilience.NewFatalError(eris.Wrap(err, "monitoring: create webhook request"), 0)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "monitoring: webhook request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return resilience.ClassifyHTTP(eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode), resp.StatusCode)
	}
	return nil
}

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

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStageFailureRate AlertType = "stage_failure_rate"
	AlertCircuitOpen      AlertType = "provider_circuit_open"
)

// Alert represents a single alert to be sent. Subject is the stage or the
// provider gate the alert is about.
type Alert struct {
	Type      AlertType      `json:"type"`
	Subject   string         `json:"subject"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Key identifies the condition an alert reports.
func (a Alert) Key() string { return string(a.Type) + ":" + a.Subject }

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Stages in pipeline order keep the output stable.
	for _, stage := range model.Stages {
		ss, ok := snap.Stages[stage]
		if !ok || ss.Units < a.cfg.MinUnits || ss.FailureRate <= a.cfg.FailureRateThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertStageFailureRate,
			Subject:  string(stage),
			Severity: "high",
			Message: fmt.Sprintf(
				"%s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d units)",
				stage, ss.FailureRate*100, a.cfg.FailureRateThreshold*100, ss.Failures, ss.Units,
			),
			Details: map[string]any{
				"stage":        string(stage),
				"failure_rate": ss.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failures":     ss.Failures,
				"units":        ss.Units,
			},
			Timestamp: now,
		})
	}

	for _, p := range snap.Providers {
		if p.Breaker != string(resilience.BreakerOpen) {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertCircuitOpen,
			Subject:  p.Name,
			Severity: "critical",
			Message:  fmt.Sprintf("circuit breaker open for %s (trip %d, %d failures / %d calls)", p.Name, p.Trips, p.Failures, p.Calls),
			Details: map[string]any{
				"provider": p.Name,
				"trips":    p.Trips,
				"failures": p.Failures,
				"calls":    p.Calls,
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
		if err := a.sendWebhook(ctx, alert); err != nil {
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
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Package monitoring raises alerts about finished imports and posts them
// to a webhook.
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

	"github.com/sells-group/credleak/internal/config"
	"github.com/sells-group/credleak/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertVIPCredentials AlertType = "vip_credentials"
	AlertQuarantineRate AlertType = "quarantine_rate"
	AlertFailedRows     AlertType = "failed_rows"
)

// minRowsForRate keeps tiny files from tripping the quarantine rate alert.
const minRowsForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	LeakID    int64          `json:"leak_id"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates import reports against configured thresholds and
// sends alerts via webhook.
type Alerter struct {
	cfg    config.AlertConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given alert config.
func NewAlerter(cfg config.AlertConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks a finished import and returns any alerts.
func (a *Alerter) Evaluate(r *model.ImportReport) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	var vips []string
	for _, rec := range r.Persisted {
		if model.IsTrue(rec.IsVIP) {
			vips = append(vips, rec.Email)
		}
	}
	if len(vips) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertVIPCredentials,
			Severity: "critical",
			Message:  fmt.Sprintf("%d VIP credential(s) found in leak %d", len(vips), r.LeakID),
			LeakID:   r.LeakID,
			Details: map[string]any{
				"emails": vips,
			},
			Timestamp: now,
		})
	}

	// Quarantine rate over the rows that reached an outcome.
	accounted := r.Counts.Accounted()
	if accounted >= minRowsForRate && a.cfg.QuarantineRateThreshold > 0 {
		rate := float64(r.Counts.Quarantined) / float64(accounted)
		if rate > a.cfg.QuarantineRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertQuarantineRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Quarantine rate %.1f%% exceeds threshold %.1f%% (%d of %d rows in leak %d)",
					rate*100, a.cfg.QuarantineRateThreshold*100, r.Counts.Quarantined, accounted, r.LeakID,
				),
				LeakID: r.LeakID,
				Details: map[string]any{
					"quarantine_rate": rate,
					"threshold":       a.cfg.QuarantineRateThreshold,
					"quarantined":     r.Counts.Quarantined,
					"rows":            accounted,
				},
				Timestamp: now,
			})
		}
	}

	if r.Counts.Failed > 0 {
		rows := make([]int, 0, len(r.Failed))
		for _, f := range r.Failed {
			rows = append(rows, f.Row)
		}
		alerts = append(alerts, Alert{
			Type:     AlertFailedRows,
			Severity: "high",
			Message:  fmt.Sprintf("%d row(s) of leak %d failed and need a retry", r.Counts.Failed, r.LeakID),
			LeakID:   r.LeakID,
			Details: map[string]any{
				"rows": rows,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Notify evaluates the report and sends whatever alerts it raises.
// Returns the number of alerts successfully sent.
func (a *Alerter) Notify(ctx context.Context, r *model.ImportReport) int {
	return a.SendAlerts(ctx, a.Evaluate(r))
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
			zap.Int64("leak_id", alert.LeakID),
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

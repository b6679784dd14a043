package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/config"
	"github.com/sells-group/credleak/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func persisted(email, password string, vip bool) model.Record {
	r := model.NewRecord(1)
	r.Email = email
	r.Password = password
	r.IsVIP = model.Flag(vip)
	return *r
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.AlertConfig{QuarantineRateThreshold: 0.2})

	report := &model.ImportReport{
		LeakID: 7,
		Counts: model.Counts{Total: 10, Persisted: 9, Quarantined: 1},
		Persisted: []model.Record{
			persisted("a@example.com", "pw", false),
		},
	}

	assert.Empty(t, a.Evaluate(report))
}

func TestAlerter_Evaluate_VIPCredentials(t *testing.T) {
	a := NewAlerter(config.AlertConfig{})

	report := &model.ImportReport{
		LeakID: 7,
		Counts: model.Counts{Total: 2, Persisted: 2},
		Persisted: []model.Record{
			persisted("boss@example.com", "s3cret-pw", true),
			persisted("staff@example.com", "other-pw", false),
		},
	}

	alerts := a.Evaluate(report)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertVIPCredentials, alerts[0].Type)
	assert.Equal(t, "critical", alerts[0].Severity)
	assert.Equal(t, int64(7), alerts[0].LeakID)
	assert.Equal(t, []string{"boss@example.com"}, alerts[0].Details["emails"])

	payload, err := json.Marshal(alerts[0])
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "s3cret-pw", "passwords never leave in alerts")
}

func TestAlerter_Evaluate_QuarantineRate(t *testing.T) {
	a := NewAlerter(config.AlertConfig{QuarantineRateThreshold: 0.25})

	report := &model.ImportReport{
		LeakID: 3,
		Counts: model.Counts{Total: 10, Persisted: 5, Quarantined: 5},
	}

	alerts := a.Evaluate(report)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertQuarantineRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "50.0%")
	assert.InDelta(t, 0.5, alerts[0].Details["quarantine_rate"], 0.0001)
}

func TestAlerter_Evaluate_QuarantineRateMinimumRows(t *testing.T) {
	a := NewAlerter(config.AlertConfig{QuarantineRateThreshold: 0.1})

	// Only 3 rows, below the minimum for a rate alert.
	report := &model.ImportReport{
		Counts: model.Counts{Total: 3, Persisted: 1, Quarantined: 2},
	}

	assert.Empty(t, a.Evaluate(report))
}

func TestAlerter_Evaluate_ZeroThresholdDisablesRate(t *testing.T) {
	a := NewAlerter(config.AlertConfig{QuarantineRateThreshold: 0})

	report := &model.ImportReport{
		Counts: model.Counts{Total: 10, Quarantined: 10},
	}

	assert.Empty(t, a.Evaluate(report))
}

func TestAlerter_Evaluate_FailedRows(t *testing.T) {
	a := NewAlerter(config.AlertConfig{})

	report := &model.ImportReport{
		LeakID: 9,
		Counts: model.Counts{Total: 4, Persisted: 2, Failed: 2},
		Failed: []model.RowError{
			{Row: 2, Stage: model.StageSink, Error: "database is locked"},
			{Row: 4, Stage: model.StageDedup, Error: "timeout"},
		},
	}

	alerts := a.Evaluate(report)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailedRows, alerts[0].Type)
	assert.Equal(t, []int{2, 4}, alerts[0].Details["rows"])
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.AlertConfig{QuarantineRateThreshold: 0.1})

	report := &model.ImportReport{
		Counts: model.Counts{Total: 10, Persisted: 4, Quarantined: 5, Failed: 1},
		Persisted: []model.Record{
			persisted("boss@example.com", "pw", true),
		},
		Failed: []model.RowError{{Row: 10, Stage: model.StageSink}},
	}

	alerts := a.Evaluate(report)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertVIPCredentials])
	assert.True(t, types[AlertQuarantineRate])
	assert.True(t, types[AlertFailedRows])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertVIPCredentials, Severity: "critical", Message: "test alert 1"},
		{Type: AlertFailedRows, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_Notify(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertConfig{WebhookURL: ts.URL})
	report := &model.ImportReport{
		Counts: model.Counts{Total: 1, Failed: 1},
		Failed: []model.RowError{{Row: 1, Stage: model.StageSink}},
	}

	assert.Equal(t, 1, a.Notify(context.Background(), report))
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.AlertConfig{WebhookURL: ""})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertFailedRows, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.AlertConfig{WebhookURL: "http://example.com"})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailedRows, Message: "test"}})
	assert.Equal(t, 0, sent)
}

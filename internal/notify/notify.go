// Package notify alerts the on-call counsellor when a student shares a session.
//
// Alerts carry identifiers and the risk level only. Transcript text never
// leaves the system through this channel.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/BTreeMap/CampusCare/internal/store"
)

// OutboxKind is the outbox message kind used for counsellor alerts.
const OutboxKind = "counsellor_alert"

// Alert describes one counsellor share.
type Alert struct {
	ShareID              string           `json:"share_id"`
	SessionID            string           `json:"session_id"`
	RiskLevel            models.RiskLevel `json:"risk_level"`
	RequiresIntervention bool             `json:"requires_intervention"`
	CreatedAt            time.Time        `json:"created_at"`
}

// AlertFromShare builds the alert for a saved share.
func AlertFromShare(sh models.CounsellorShare) Alert {
	return Alert{
		ShareID:              sh.ID,
		SessionID:            sh.SessionID,
		RiskLevel:            sh.RiskLevel,
		RequiresIntervention: sh.RequiresIntervention,
		CreatedAt:            sh.CreatedAt,
	}
}

// Body renders the SMS text for an alert.
func (a Alert) Body() string {
	intervention := "no"
	if a.RequiresIntervention {
		intervention = "YES"
	}
	return fmt.Sprintf("CampusCare: a student shared session %s with the counselling team. Risk level: %s. Intervention required: %s. Share ID: %s.",
		a.SessionID, a.RiskLevel, intervention, a.ShareID)
}

// Notifier delivers counsellor alerts.
type Notifier interface {
	NotifyCounsellor(ctx context.Context, alert Alert) error
}

// Enqueue writes an alert to the outbox. The share ID is the dedupe key, so
// retrying a share never double-alerts.
func Enqueue(repo store.OutboxRepo, alert Alert) (string, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return "", fmt.Errorf("failed to marshal alert: %w", err)
	}
	return repo.EnqueueOutboxMessage(alert.SessionID, OutboxKind, string(payload), "share:"+alert.ShareID)
}

// OutboxHandler adapts a Notifier to the outbox sender.
func OutboxHandler(n Notifier) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		if msg.Kind != OutboxKind {
			return fmt.Errorf("unsupported outbox kind %q", msg.Kind)
		}
		var alert Alert
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &alert); err != nil {
			return fmt.Errorf("invalid alert payload for %s: %w", msg.ID, err)
		}
		return n.NotifyCounsellor(ctx, alert)
	}
}

// LogNotifier records alerts in the log only. Used when no SMS provider is configured.
type LogNotifier struct{}

// NotifyCounsellor logs the alert at warn level and never fails.
func (LogNotifier) NotifyCounsellor(ctx context.Context, alert Alert) error {
	slog.Warn("LogNotifier.NotifyCounsellor: no SMS provider configured, alert logged only",
		"session_id", alert.SessionID, "share_id", alert.ShareID, "risk_level", alert.RiskLevel,
		"requires_intervention", alert.RequiresIntervention)
	return nil
}

// MockNotifier records alerts for tests.
type MockNotifier struct {
	mu     sync.Mutex
	Alerts []Alert
	Err    error
}

// NewMockNotifier creates a MockNotifier with no recorded alerts.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Alerts: []Alert{}}
}

// NotifyCounsellor records the alert, or returns Err when it is set.
func (m *MockNotifier) NotifyCounsellor(ctx context.Context, alert Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Alerts = append(m.Alerts, alert)
	return nil
}

// Sent returns a copy of the recorded alerts.
func (m *MockNotifier) Sent() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.Alerts...)
}

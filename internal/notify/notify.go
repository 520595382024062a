package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	EventGuardrailAlert  = "guardrail.alert"
	EventRollbackFailed  = "rollback.failed"
	EventExecutionFailed = "execution.failed"
)

// Alert is one operator-facing notification.
type Alert struct {
	Event       string         `json:"event"`
	Severity    string         `json:"severity"`
	DecisionID  string         `json:"decision_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	CampaignID  string         `json:"campaign_id,omitempty"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	At          time.Time      `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. It is the fallback when no webhook is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(ctx context.Context, alert Alert) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger.Warn("alert",
		zap.String("event", alert.Event),
		zap.String("severity", alert.Severity),
		zap.String("decision_id", alert.DecisionID),
		zap.String("execution_id", alert.ExecutionID),
		zap.String("campaign_id", alert.CampaignID),
		zap.String("message", alert.Message),
		zap.Any("details", alert.Details),
	)
	return nil
}

// Multi fans an alert out to every notifier and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BestEffort sends with its own short deadline and logs failures instead of returning them.
func BestEffort(n Notifier, logger *zap.Logger, alert Alert) {
	if n == nil {
		return
	}
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Notify(ctx, alert); err != nil && logger != nil {
		logger.Warn("notify failed", zap.String("event", alert.Event), zap.Error(err))
	}
}

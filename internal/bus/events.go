package bus

import (
	"context"
	"time"

	"visionhealth-backend/internal/logger"
	"visionhealth-backend/internal/monitor"
)

type publisher interface {
	Publish(subject string, payload any) error
}

type AlertEvent struct {
	AlertID        string     `json:"alert_id"`
	OrgID          string     `json:"org_id"`
	RuleID         string     `json:"rule_id"`
	ServiceName    string     `json:"service_name"`
	MetricName     string     `json:"metric_name"`
	CurrentValue   float64    `json:"current_value"`
	ThresholdValue float64    `json:"threshold_value"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

type RuleEvent struct {
	OrgID    string `json:"org_id"`
	RuleID   string `json:"rule_id"`
	IsActive bool   `json:"is_active"`
}

// AlertNotifier publishes alert transitions. Publish failures are logged;
// the alert state in the store is already authoritative.
type AlertNotifier struct {
	pub publisher
}

func NewAlertNotifier(pub publisher) *AlertNotifier {
	return &AlertNotifier{pub: pub}
}

func (n *AlertNotifier) AlertFired(_ context.Context, alert monitor.ActiveAlert) {
	n.publish(SubjectAlertFiring, alert)
}

func (n *AlertNotifier) AlertResolved(_ context.Context, alert monitor.ActiveAlert) {
	n.publish(SubjectAlertResolved, alert)
}

func (n *AlertNotifier) publish(subject string, alert monitor.ActiveAlert) {
	evt := AlertEvent{
		AlertID:        alert.ID,
		OrgID:          alert.OrgID,
		RuleID:         alert.RuleID,
		ServiceName:    alert.ServiceName,
		MetricName:     alert.MetricName,
		CurrentValue:   alert.CurrentValue,
		ThresholdValue: alert.ThresholdValue,
		Severity:       string(alert.Severity),
		Status:         string(alert.Status),
		StartedAt:      alert.StartedAt,
		ResolvedAt:     alert.ResolvedAt,
	}
	if err := n.pub.Publish(subject, evt); err != nil {
		logger.WithOrg("bus", alert.OrgID).Warn().Err(err).Str("subject", subject).Str("alert_id", alert.ID).Msg("publish alert event failed")
	}
}

// RuleEvents publishes rule administration changes.
type RuleEvents struct {
	pub publisher
}

func NewRuleEvents(pub publisher) *RuleEvents {
	return &RuleEvents{pub: pub}
}

func (r *RuleEvents) Publish(subject string, rule monitor.AlertRule) {
	if err := r.pub.Publish(subject, RuleEvent{OrgID: rule.OrgID, RuleID: rule.ID, IsActive: rule.IsActive}); err != nil {
		logger.WithOrg("bus", rule.OrgID).Warn().Err(err).Str("subject", subject).Str("rule_id", rule.ID).Msg("publish rule event failed")
	}
}

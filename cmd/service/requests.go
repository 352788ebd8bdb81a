package main

import (
	"strings"

	"visionhealth-backend/internal/monitor"
)

// monitorRequest is the body of the single health-monitor entrypoint.
type monitorRequest struct {
	Action string `json:"action"`
	OrgID  string `json:"orgId"`
}

type ruleRequest struct {
	RuleName        string   `json:"rule_name"`
	ServiceName     string   `json:"service_name"`
	MetricName      string   `json:"metric_name"`
	ConditionType   string   `json:"condition_type"`
	ThresholdValue  *float64 `json:"threshold_value"`
	DurationSeconds int      `json:"duration_seconds"`
	Severity        string   `json:"severity"`
	IsActive        *bool    `json:"is_active"`
}

// toRule builds the stored rule; a missing is_active keeps defaultActive.
func (req ruleRequest) toRule(orgID string, defaultActive bool) monitor.AlertRule {
	rule := monitor.AlertRule{
		OrgID:           orgID,
		RuleName:        strings.TrimSpace(req.RuleName),
		ServiceName:     strings.TrimSpace(req.ServiceName),
		MetricName:      strings.TrimSpace(req.MetricName),
		ConditionType:   monitor.ConditionType(strings.ToLower(strings.TrimSpace(req.ConditionType))),
		DurationSeconds: req.DurationSeconds,
		Severity:        monitor.Severity(strings.ToLower(strings.TrimSpace(req.Severity))),
		IsActive:        defaultActive,
	}
	if req.ThresholdValue != nil {
		rule.ThresholdValue = *req.ThresholdValue
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return rule
}

func (req ruleRequest) missingThreshold() *monitor.ValidationError {
	if req.ThresholdValue != nil {
		return nil
	}
	return &monitor.ValidationError{
		Code:    "RULE_INVALID",
		Message: "alert rule failed validation",
		Details: []monitor.ErrorDetail{{Field: "threshold_value", Problem: "missing", Hint: "Example: 30"}},
	}
}

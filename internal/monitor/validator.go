package monitor

import (
	"fmt"
	"regexp"
	"strings"
)

var identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.\-]*$`)

// MaxRuleWindowSeconds bounds duration_seconds to one day.
const MaxRuleWindowSeconds = 86400

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

type ValidationError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Problem)
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// ValidateRule checks an operator-supplied rule before it is stored.
func ValidateRule(rule AlertRule) *ValidationError {
	var details []ErrorDetail
	if strings.TrimSpace(rule.OrgID) == "" {
		details = append(details, ErrorDetail{Field: "org_id", Problem: "missing", Hint: "Provide the owning org"})
	}
	if strings.TrimSpace(rule.RuleName) == "" {
		details = append(details, ErrorDetail{Field: "rule_name", Problem: "missing", Hint: "Example: fusion queue saturated"})
	}
	if !identRegex.MatchString(rule.ServiceName) {
		details = append(details, ErrorDetail{Field: "service_name", Problem: "invalid", Hint: "Example: yolo-detection"})
	}
	if !identRegex.MatchString(rule.MetricName) {
		details = append(details, ErrorDetail{Field: "metric_name", Problem: "invalid", Hint: "Example: inference_latency_ms"})
	}
	switch rule.ConditionType {
	case ConditionGreater, ConditionLess, ConditionEqual:
	default:
		details = append(details, ErrorDetail{Field: "condition_type", Problem: "unsupported", Hint: "Use gt, lt, or eq"})
	}
	if rule.DurationSeconds <= 0 || rule.DurationSeconds > MaxRuleWindowSeconds {
		details = append(details, ErrorDetail{Field: "duration_seconds", Problem: "out of range", Hint: fmt.Sprintf("min 1, max %d", MaxRuleWindowSeconds)})
	}
	switch rule.Severity {
	case SeverityCritical, SeverityWarning, SeverityInfo:
	default:
		details = append(details, ErrorDetail{Field: "severity", Problem: "unsupported", Hint: "Use critical, warning, or info"})
	}
	if len(details) > 0 {
		return &ValidationError{Code: "RULE_INVALID", Message: "alert rule failed validation", Details: details}
	}
	return nil
}

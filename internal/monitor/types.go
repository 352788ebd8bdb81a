package monitor

import "time"

type MetricType string

const (
	MetricGauge     MetricType = "gauge"
	MetricCounter   MetricType = "counter"
	MetricHistogram MetricType = "histogram"
)

// Metric is one immutable sample of the per-org time series.
type Metric struct {
	OrgID       string            `json:"org_id"`
	ServiceName string            `json:"service_name"`
	MetricName  string            `json:"metric_name"`
	Value       float64           `json:"metric_value"`
	Type        MetricType        `json:"metric_type"`
	Labels      map[string]string `json:"labels,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ServiceStatus is the latest probe outcome for one service of one org.
type ServiceStatus struct {
	OrgID          string         `json:"org_id"`
	ServiceName    string         `json:"service_name"`
	Status         Status         `json:"status"`
	ResponseTimeMs int            `json:"response_time_ms"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	LastCheck      time.Time      `json:"last_check"`
}

type ConditionType string

const (
	ConditionGreater ConditionType = "gt"
	ConditionLess    ConditionType = "lt"
	ConditionEqual   ConditionType = "eq"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// AlertRule is operator configuration; the engine only reads it.
type AlertRule struct {
	ID              string        `json:"id"`
	OrgID           string        `json:"org_id"`
	RuleName        string        `json:"rule_name"`
	ServiceName     string        `json:"service_name"`
	MetricName      string        `json:"metric_name"`
	ConditionType   ConditionType `json:"condition_type"`
	ThresholdValue  float64       `json:"threshold_value"`
	DurationSeconds int           `json:"duration_seconds"`
	Severity        Severity      `json:"severity"`
	IsActive        bool          `json:"is_active"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Window is the trailing interval the rule's metric is looked up in.
func (r AlertRule) Window() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

type AlertStatus string

const (
	AlertFiring   AlertStatus = "firing"
	AlertResolved AlertStatus = "resolved"
)

type ActiveAlert struct {
	ID             string      `json:"id"`
	OrgID          string      `json:"org_id"`
	RuleID         string      `json:"rule_id"`
	ServiceName    string      `json:"service_name"`
	MetricName     string      `json:"metric_name"`
	CurrentValue   float64     `json:"current_value"`
	ThresholdValue float64     `json:"threshold_value"`
	Severity       Severity    `json:"severity"`
	Status         AlertStatus `json:"status"`
	StartedAt      time.Time   `json:"started_at"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}

// ProbeTarget is one service endpoint checked on every collect cycle.
type ProbeTarget struct {
	ServiceName string `json:"service_name" yaml:"service_name"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	TimeoutMs   int    `json:"timeout_ms" yaml:"timeout_ms"`
	// Kind is http (default) or a database type understood by dbconnector.
	Kind string `json:"kind,omitempty" yaml:"kind"`
}

// Timeout returns the per-probe deadline, falling back to DefaultProbeTimeout.
func (t ProbeTarget) Timeout() time.Duration {
	if t.TimeoutMs <= 0 {
		return DefaultProbeTimeout
	}
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

const DefaultProbeTimeout = 5 * time.Second

type CollectSummary struct {
	MetricsCollected int       `json:"metrics_collected"`
	ServicesChecked  int       `json:"services_checked"`
	Timestamp        time.Time `json:"timestamp"`
}

type EvaluationReport struct {
	RulesEvaluated int `json:"rules_evaluated"`
	AlertsCreated  int `json:"alerts_created"`
	AlertsResolved int `json:"alerts_resolved"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
}

type HealthSnapshot struct {
	Status       Status          `json:"status"`
	Services     []ServiceStatus `json:"services"`
	ActiveAlerts []ActiveAlert   `json:"active_alerts"`
	LastUpdated  time.Time       `json:"last_updated"`
}

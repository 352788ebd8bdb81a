package monitor

import (
	"context"
	"time"
)

type MetricsStore interface {
	Append(ctx context.Context, orgID string, metrics []Metric) error
	// LatestInWindow returns the newest sample no older than window, or nil.
	LatestInWindow(ctx context.Context, orgID, serviceName, metricName string, window time.Duration) (*Metric, error)
}

type ServiceStatusStore interface {
	Upsert(ctx context.Context, status ServiceStatus) error
	ListByOrg(ctx context.Context, orgID string) ([]ServiceStatus, error)
}

type AlertRuleStore interface {
	ListActive(ctx context.Context, orgID string) ([]AlertRule, error)
}

type ActiveAlertStore interface {
	// FindFiring returns the firing alert of a rule, or nil.
	FindFiring(ctx context.Context, ruleID string) (*ActiveAlert, error)
	// Insert stores a firing alert unless one already fires for the same
	// rule, in which case it returns ErrAlertAlreadyFiring.
	Insert(ctx context.Context, alert ActiveAlert) error
	ListFiring(ctx context.Context, orgID string) ([]ActiveAlert, error)
	Resolve(ctx context.Context, alertID string, resolvedAt time.Time) error
}

// Stores groups the persistence collaborators of the engine.
type Stores struct {
	Metrics  MetricsStore
	Statuses ServiceStatusStore
	Rules    AlertRuleStore
	Alerts   ActiveAlertStore
}

// Prober checks a single target. Implementations never return errors:
// failures are expressed through the returned status.
type Prober interface {
	Check(ctx context.Context, target ProbeTarget) ServiceStatus
}

// MetricSource produces the metric batch of one collect cycle.
type MetricSource interface {
	Collect(ctx context.Context, orgID string, now time.Time) ([]Metric, error)
}

// StatusMetricSource derives the metric batch from the probe results of the
// same cycle. The engine probes first for such sources so each target is
// checked once per cycle.
type StatusMetricSource interface {
	MetricSource
	MetricsFromStatuses(orgID string, statuses []ServiceStatus, now time.Time) []Metric
}

// Notifier receives alert lifecycle transitions.
type Notifier interface {
	AlertFired(ctx context.Context, alert ActiveAlert)
	AlertResolved(ctx context.Context, alert ActiveAlert)
}

type noopNotifier struct{}

func (noopNotifier) AlertFired(context.Context, ActiveAlert)    {}
func (noopNotifier) AlertResolved(context.Context, ActiveAlert) {}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"visionhealth-backend/internal/monitor"
)

// Repository implements every engine store plus rule administration on
// Postgres.
type Repository struct {
	Store *Store
	now   func() time.Time
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) Append(ctx context.Context, orgID string, metrics []monitor.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(metrics))
	for _, m := range metrics {
		labels, err := marshalJSON(m.Labels)
		if err != nil {
			return fmt.Errorf("encode labels: %w", err)
		}
		rows = append(rows, []any{orgID, m.ServiceName, m.MetricName, m.Value, string(m.Type), labels, m.Timestamp})
	}
	_, err := r.Store.Pool.CopyFrom(ctx,
		pgx.Identifier{"health_metrics"},
		[]string{"org_id", "service_name", "metric_name", "metric_value", "metric_type", "labels", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (r *Repository) LatestInWindow(ctx context.Context, orgID, serviceName, metricName string, window time.Duration) (*monitor.Metric, error) {
	cutoff := r.now().Add(-window)
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT org_id, service_name, metric_name, metric_value, metric_type, labels, recorded_at
		FROM health_metrics
		WHERE org_id=$1 AND service_name=$2 AND metric_name=$3 AND recorded_at >= $4
		ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		orgID, serviceName, metricName, cutoff,
	)
	var (
		m          monitor.Metric
		metricType string
		labels     []byte
	)
	if err := row.Scan(&m.OrgID, &m.ServiceName, &m.MetricName, &m.Value, &metricType, &labels, &m.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Type = monitor.MetricType(metricType)
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &m.Labels); err != nil {
			return nil, fmt.Errorf("decode labels: %w", err)
		}
	}
	return &m, nil
}

func (r *Repository) Upsert(ctx context.Context, status monitor.ServiceStatus) error {
	metadata, err := marshalJSON(status.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = r.Store.Pool.Exec(ctx, `
		INSERT INTO service_status (org_id, service_name, status, response_time_ms, error_message, metadata, last_check)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (org_id, service_name) DO UPDATE
		SET status=EXCLUDED.status, response_time_ms=EXCLUDED.response_time_ms, error_message=EXCLUDED.error_message,
			metadata=EXCLUDED.metadata, last_check=EXCLUDED.last_check`,
		status.OrgID, status.ServiceName, string(status.Status), status.ResponseTimeMs, status.ErrorMessage, metadata, status.LastCheck,
	)
	return err
}

func (r *Repository) ListByOrg(ctx context.Context, orgID string) ([]monitor.ServiceStatus, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT org_id, service_name, status, response_time_ms, error_message, metadata, last_check
		FROM service_status WHERE org_id=$1 ORDER BY service_name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []monitor.ServiceStatus{}
	for rows.Next() {
		var (
			st       monitor.ServiceStatus
			status   string
			metadata []byte
		)
		if err := rows.Scan(&st.OrgID, &st.ServiceName, &status, &st.ResponseTimeMs, &st.ErrorMessage, &metadata, &st.LastCheck); err != nil {
			return nil, err
		}
		st.Status = monitor.Status(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &st.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		results = append(results, st)
	}
	return results, rows.Err()
}

const ruleColumns = `id, org_id, rule_name, service_name, metric_name, condition_type, threshold_value, duration_seconds, severity, is_active, created_at, updated_at`

func (r *Repository) ListActive(ctx context.Context, orgID string) ([]monitor.AlertRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE org_id=$1 AND is_active ORDER BY created_at`, orgID)
}

func (r *Repository) ListRules(ctx context.Context, orgID string) ([]monitor.AlertRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE org_id=$1 ORDER BY created_at DESC`, orgID)
}

func (r *Repository) GetRule(ctx context.Context, orgID, id string) (monitor.AlertRule, error) {
	if !validID(id) {
		return monitor.AlertRule{}, monitor.ErrNotFound
	}
	rules, err := r.queryRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE org_id=$1 AND id=$2`, orgID, id)
	if err != nil {
		return monitor.AlertRule{}, err
	}
	if len(rules) == 0 {
		return monitor.AlertRule{}, monitor.ErrNotFound
	}
	return rules[0], nil
}

func (r *Repository) CreateRule(ctx context.Context, rule monitor.AlertRule) (monitor.AlertRule, error) {
	rule.ID = uuid.NewString()
	now := r.now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO alert_rules (`+ruleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rule.ID, rule.OrgID, rule.RuleName, rule.ServiceName, rule.MetricName, string(rule.ConditionType),
		rule.ThresholdValue, rule.DurationSeconds, string(rule.Severity), rule.IsActive, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return monitor.AlertRule{}, err
	}
	return rule, nil
}

func (r *Repository) UpdateRule(ctx context.Context, rule monitor.AlertRule) (monitor.AlertRule, error) {
	if !validID(rule.ID) {
		return monitor.AlertRule{}, monitor.ErrNotFound
	}
	rule.UpdatedAt = r.now()
	row := r.Store.Pool.QueryRow(ctx, `
		UPDATE alert_rules
		SET rule_name=$1, service_name=$2, metric_name=$3, condition_type=$4, threshold_value=$5,
			duration_seconds=$6, severity=$7, is_active=$8, updated_at=$9
		WHERE org_id=$10 AND id=$11
		RETURNING created_at`,
		rule.RuleName, rule.ServiceName, rule.MetricName, string(rule.ConditionType), rule.ThresholdValue,
		rule.DurationSeconds, string(rule.Severity), rule.IsActive, rule.UpdatedAt, rule.OrgID, rule.ID,
	)
	if err := row.Scan(&rule.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.AlertRule{}, monitor.ErrNotFound
		}
		return monitor.AlertRule{}, err
	}
	return rule, nil
}

func (r *Repository) SetRuleActive(ctx context.Context, orgID, id string, active bool) error {
	if !validID(id) {
		return monitor.ErrNotFound
	}
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE alert_rules SET is_active=$1, updated_at=$2 WHERE org_id=$3 AND id=$4`, active, r.now(), orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

func (r *Repository) queryRules(ctx context.Context, query string, args ...any) ([]monitor.AlertRule, error) {
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []monitor.AlertRule{}
	for rows.Next() {
		var (
			rule      monitor.AlertRule
			condition string
			severity  string
		)
		if err := rows.Scan(&rule.ID, &rule.OrgID, &rule.RuleName, &rule.ServiceName, &rule.MetricName, &condition,
			&rule.ThresholdValue, &rule.DurationSeconds, &severity, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rule.ConditionType = monitor.ConditionType(condition)
		rule.Severity = monitor.Severity(severity)
		results = append(results, rule)
	}
	return results, rows.Err()
}

const alertColumns = `id, org_id, rule_id, service_name, metric_name, current_value, threshold_value, severity, status, started_at, resolved_at`

func (r *Repository) FindFiring(ctx context.Context, ruleID string) (*monitor.ActiveAlert, error) {
	alerts, err := r.queryAlerts(ctx, `SELECT `+alertColumns+` FROM active_alerts WHERE rule_id=$1 AND status='firing'`, ruleID)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return &alerts[0], nil
}

// Insert relies on the partial unique index over firing alerts so that two
// concurrent evaluations of the same rule cannot both open an alert.
func (r *Repository) Insert(ctx context.Context, alert monitor.ActiveAlert) error {
	tag, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO active_alerts (`+alertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (rule_id) WHERE status = 'firing' DO NOTHING`,
		alert.ID, alert.OrgID, alert.RuleID, alert.ServiceName, alert.MetricName, alert.CurrentValue,
		alert.ThresholdValue, string(alert.Severity), string(alert.Status), alert.StartedAt, alert.ResolvedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrAlertAlreadyFiring
	}
	return nil
}

func (r *Repository) ListFiring(ctx context.Context, orgID string) ([]monitor.ActiveAlert, error) {
	return r.queryAlerts(ctx, `SELECT `+alertColumns+` FROM active_alerts WHERE org_id=$1 AND status='firing' ORDER BY started_at DESC`, orgID)
}

func (r *Repository) Resolve(ctx context.Context, alertID string, resolvedAt time.Time) error {
	if !validID(alertID) {
		return monitor.ErrNotFound
	}
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE active_alerts SET status='resolved', resolved_at=$1 WHERE id=$2 AND status='firing'`, resolvedAt, alertID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

func (r *Repository) queryAlerts(ctx context.Context, query string, args ...any) ([]monitor.ActiveAlert, error) {
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []monitor.ActiveAlert{}
	for rows.Next() {
		var (
			alert    monitor.ActiveAlert
			severity string
			status   string
		)
		if err := rows.Scan(&alert.ID, &alert.OrgID, &alert.RuleID, &alert.ServiceName, &alert.MetricName, &alert.CurrentValue,
			&alert.ThresholdValue, &severity, &status, &alert.StartedAt, &alert.ResolvedAt); err != nil {
			return nil, err
		}
		alert.Severity = monitor.Severity(severity)
		alert.Status = monitor.AlertStatus(status)
		results = append(results, alert)
	}
	return results, rows.Err()
}

// validID reports whether id can be bound to a UUID column. Anything else
// cannot name a stored row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func marshalJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]string:
		if t == nil {
			return []byte("{}"), nil
		}
	case map[string]any:
		if t == nil {
			return []byte("{}"), nil
		}
	}
	return json.Marshal(v)
}

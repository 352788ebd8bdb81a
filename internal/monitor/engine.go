package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"visionhealth-backend/internal/logger"
	"visionhealth-backend/internal/metrics"
)

// Options tune rule evaluation. The zero value keeps alerts firing until
// they are resolved externally and compares eq conditions exactly.
type Options struct {
	AutoResolve       bool
	EqualityTolerance float64
	Notifier          Notifier
	Now               func() time.Time
}

// Engine collects service health, persists it and evaluates alert rules
// for one org per call. It holds no state between calls.
type Engine struct {
	stores   Stores
	source   MetricSource
	prober   Prober
	targets  []ProbeTarget
	opts     Options
	notifier Notifier
	now      func() time.Time
}

func NewEngine(stores Stores, source MetricSource, prober Prober, targets []ProbeTarget, opts Options) (*Engine, error) {
	if stores.Metrics == nil || stores.Statuses == nil || stores.Rules == nil || stores.Alerts == nil {
		return nil, errors.New("all stores are required")
	}
	if source == nil {
		return nil, errors.New("metric source is required")
	}
	if prober == nil && len(targets) > 0 {
		return nil, errors.New("prober is required when probe targets are configured")
	}
	e := &Engine{
		stores:   stores,
		source:   source,
		prober:   prober,
		targets:  append([]ProbeTarget(nil), targets...),
		opts:     opts,
		notifier: opts.Notifier,
		now:      opts.Now,
	}
	if e.notifier == nil {
		e.notifier = noopNotifier{}
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e, nil
}

// Targets returns a copy of the configured probe targets.
func (e *Engine) Targets() []ProbeTarget {
	return append([]ProbeTarget(nil), e.targets...)
}

// Collect runs one full cycle for an org: ingest metrics, probe services,
// upsert their status and evaluate the org's alert rules.
func (e *Engine) Collect(ctx context.Context, orgID string) (CollectSummary, error) {
	if strings.TrimSpace(orgID) == "" {
		return CollectSummary{}, fmt.Errorf("%w: orgId is required", ErrInvalidRequest)
	}
	log := logger.WithOrg("engine", orgID)
	start := time.Now()
	summary, err := e.collect(ctx, orgID)
	metrics.CollectDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CollectCyclesTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("collect cycle failed")
		return CollectSummary{}, err
	}
	metrics.CollectCyclesTotal.WithLabelValues("ok").Inc()
	log.Info().
		Int("metrics_collected", summary.MetricsCollected).
		Int("services_checked", summary.ServicesChecked).
		Dur("duration", time.Since(start)).
		Msg("collect cycle completed")
	return summary, nil
}

func (e *Engine) collect(ctx context.Context, orgID string) (CollectSummary, error) {
	now := e.now()

	var (
		batch    []Metric
		statuses []ServiceStatus
		probed   bool
	)
	if derived, ok := e.source.(StatusMetricSource); ok {
		statuses, probed = e.probeAll(ctx, orgID), true
		batch = derived.MetricsFromStatuses(orgID, statuses, now)
	} else {
		var err error
		batch, err = e.source.Collect(ctx, orgID, now)
		if err != nil {
			return CollectSummary{}, fmt.Errorf("collect metrics: %w", err)
		}
	}
	for i := range batch {
		batch[i].OrgID = orgID
		if batch[i].Timestamp.IsZero() {
			batch[i].Timestamp = now
		}
	}
	if len(batch) > 0 {
		if err := e.stores.Metrics.Append(ctx, orgID, batch); err != nil {
			return CollectSummary{}, fmt.Errorf("%w: append metrics: %w", ErrPersistence, err)
		}
		metrics.MetricsIngestedTotal.Add(float64(len(batch)))
	}

	if !probed {
		statuses = e.probeAll(ctx, orgID)
	}
	var upsertErrs []error
	for _, status := range statuses {
		if err := e.stores.Statuses.Upsert(ctx, status); err != nil {
			upsertErrs = append(upsertErrs, fmt.Errorf("%s: %w", status.ServiceName, err))
		}
	}
	if len(upsertErrs) > 0 {
		return CollectSummary{}, fmt.Errorf("%w: upsert service status: %w", ErrPersistence, errors.Join(upsertErrs...))
	}

	if _, err := e.EvaluateAlertRules(ctx, orgID); err != nil {
		logger.WithOrg("engine", orgID).Error().Err(err).Msg("alert rule evaluation failed")
	}

	return CollectSummary{
		MetricsCollected: len(batch),
		ServicesChecked:  len(statuses),
		Timestamp:        now,
	}, nil
}

// probeAll checks every target concurrently. Probes are detached from the
// caller's cancellation; each one is bounded by its own timeout.
func (e *Engine) probeAll(ctx context.Context, orgID string) []ServiceStatus {
	results := make([]ServiceStatus, len(e.targets))
	probeCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for i, target := range e.targets {
		wg.Add(1)
		go func(i int, target ProbeTarget) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.WithComponent("engine").Error().
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Str("service", target.ServiceName).
						Msg("probe panic recovered")
					metrics.PanicsRecovered.WithLabelValues("probe").Inc()
					msg := fmt.Sprintf("probe panic: %v", r)
					results[i] = ServiceStatus{Status: StatusUnhealthy, ErrorMessage: &msg}
				}
				results[i].OrgID = orgID
				results[i].ServiceName = target.ServiceName
				if results[i].LastCheck.IsZero() {
					results[i].LastCheck = e.now()
				}
			}()
			results[i] = e.prober.Check(probeCtx, target)
		}(i, target)
	}
	wg.Wait()
	return results
}

type ruleOutcome int

const (
	outcomeUnchanged ruleOutcome = iota
	outcomeNoData
	outcomeCreated
	outcomeResolved
)

// EvaluateAlertRules checks every active rule of the org against the newest
// sample inside the rule's window. A failing rule is logged and counted but
// never stops the remaining rules.
func (e *Engine) EvaluateAlertRules(ctx context.Context, orgID string) (EvaluationReport, error) {
	var report EvaluationReport
	if strings.TrimSpace(orgID) == "" {
		return report, fmt.Errorf("%w: orgId is required", ErrInvalidRequest)
	}
	log := logger.WithOrg("engine", orgID)
	rules, err := e.stores.Rules.ListActive(ctx, orgID)
	if err != nil {
		return report, fmt.Errorf("list active rules: %w", err)
	}
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		report.RulesEvaluated++
		outcome, err := e.evaluateRule(ctx, orgID, rule)
		if err != nil {
			report.Failed++
			metrics.RuleEvaluationFailures.Inc()
			log.Warn().Err(err).Str("rule_id", rule.ID).Str("rule_name", rule.RuleName).Msg("rule evaluation failed")
			continue
		}
		switch outcome {
		case outcomeCreated:
			report.AlertsCreated++
		case outcomeResolved:
			report.AlertsResolved++
		case outcomeNoData:
			report.Skipped++
		}
	}
	log.Debug().
		Int("rules", report.RulesEvaluated).
		Int("created", report.AlertsCreated).
		Int("resolved", report.AlertsResolved).
		Int("failed", report.Failed).
		Msg("alert rules evaluated")
	return report, nil
}

func (e *Engine) evaluateRule(ctx context.Context, orgID string, rule AlertRule) (ruleOutcome, error) {
	latest, err := e.stores.Metrics.LatestInWindow(ctx, orgID, rule.ServiceName, rule.MetricName, rule.Window())
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("latest metric: %w", err)
	}
	if latest == nil {
		return outcomeNoData, nil
	}
	hit, err := EvaluateCondition(rule.ConditionType, latest.Value, rule.ThresholdValue, e.opts.EqualityTolerance)
	if err != nil {
		return outcomeUnchanged, err
	}

	existing, err := e.stores.Alerts.FindFiring(ctx, rule.ID)
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("find firing alert: %w", err)
	}

	if hit {
		if existing != nil {
			return outcomeUnchanged, nil
		}
		alert := ActiveAlert{
			ID:             uuid.NewString(),
			OrgID:          orgID,
			RuleID:         rule.ID,
			ServiceName:    rule.ServiceName,
			MetricName:     rule.MetricName,
			CurrentValue:   latest.Value,
			ThresholdValue: rule.ThresholdValue,
			Severity:       rule.Severity,
			Status:         AlertFiring,
			StartedAt:      e.now(),
		}
		if err := e.stores.Alerts.Insert(ctx, alert); err != nil {
			if errors.Is(err, ErrAlertAlreadyFiring) {
				return outcomeUnchanged, nil
			}
			return outcomeUnchanged, fmt.Errorf("insert alert: %w", err)
		}
		metrics.AlertsCreatedTotal.WithLabelValues(string(rule.Severity)).Inc()
		logger.WithOrg("engine", orgID).Info().
			Str("rule_id", rule.ID).
			Str("service", rule.ServiceName).
			Str("metric", rule.MetricName).
			Float64("value", latest.Value).
			Str("limit", LimitExpr(rule.ConditionType, rule.ThresholdValue)).
			Msg("alert firing")
		e.notifier.AlertFired(ctx, alert)
		return outcomeCreated, nil
	}

	if !e.opts.AutoResolve || existing == nil {
		return outcomeUnchanged, nil
	}
	resolvedAt := e.now()
	if err := e.stores.Alerts.Resolve(ctx, existing.ID, resolvedAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			return outcomeUnchanged, nil
		}
		return outcomeUnchanged, fmt.Errorf("resolve alert: %w", err)
	}
	existing.Status = AlertResolved
	existing.ResolvedAt = &resolvedAt
	metrics.AlertsResolvedTotal.Inc()
	logger.WithOrg("engine", orgID).Info().
		Str("rule_id", rule.ID).
		Str("alert_id", existing.ID).
		Float64("value", latest.Value).
		Msg("alert resolved")
	e.notifier.AlertResolved(ctx, *existing)
	return outcomeResolved, nil
}

// ResolveAlert closes a firing alert on operator request.
func (e *Engine) ResolveAlert(ctx context.Context, orgID, alertID string) error {
	firing, err := e.stores.Alerts.ListFiring(ctx, orgID)
	if err != nil {
		return fmt.Errorf("list firing alerts: %w", err)
	}
	for _, alert := range firing {
		if alert.ID != alertID {
			continue
		}
		resolvedAt := e.now()
		if err := e.stores.Alerts.Resolve(ctx, alert.ID, resolvedAt); err != nil {
			return err
		}
		alert.Status = AlertResolved
		alert.ResolvedAt = &resolvedAt
		metrics.AlertsResolvedTotal.Inc()
		e.notifier.AlertResolved(ctx, alert)
		return nil
	}
	return ErrNotFound
}

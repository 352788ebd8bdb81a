package storage

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"visionhealth-backend/internal/monitor"
)

// MemoryStore keeps all health data in process. It backs local development
// and the test suites; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	metrics  map[seriesKey][]monitor.Metric
	statuses map[string]map[string]monitor.ServiceStatus
	rules    map[string]monitor.AlertRule
	alerts   map[string]monitor.ActiveAlert
	firing   map[string]string // rule id -> alert id
}

type seriesKey struct {
	org, service, metric string
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:      now,
		metrics:  make(map[seriesKey][]monitor.Metric),
		statuses: make(map[string]map[string]monitor.ServiceStatus),
		rules:    make(map[string]monitor.AlertRule),
		alerts:   make(map[string]monitor.ActiveAlert),
		firing:   make(map[string]string),
	}
}

// Stores exposes the memory store as every engine collaborator.
func (s *MemoryStore) Stores() monitor.Stores {
	return monitor.Stores{Metrics: s, Statuses: s, Rules: s, Alerts: s}
}

func (s *MemoryStore) Append(_ context.Context, orgID string, metrics []monitor.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metrics {
		m.OrgID = orgID
		m.Labels = maps.Clone(m.Labels)
		key := seriesKey{orgID, m.ServiceName, m.MetricName}
		s.metrics[key] = append(s.metrics[key], m)
	}
	return nil
}

func (s *MemoryStore) LatestInWindow(_ context.Context, orgID, serviceName, metricName string, window time.Duration) (*monitor.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-window)
	var latest *monitor.Metric
	for _, m := range s.metrics[seriesKey{orgID, serviceName, metricName}] {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		if latest == nil || !m.Timestamp.Before(latest.Timestamp) {
			latest = &m
		}
	}
	return latest, nil
}

// SeriesLen reports how many samples were appended for a series.
func (s *MemoryStore) SeriesLen(orgID, serviceName, metricName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics[seriesKey{orgID, serviceName, metricName}])
}

func (s *MemoryStore) Upsert(_ context.Context, status monitor.ServiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byService, ok := s.statuses[status.OrgID]
	if !ok {
		byService = make(map[string]monitor.ServiceStatus)
		s.statuses[status.OrgID] = byService
	}
	status.Metadata = maps.Clone(status.Metadata)
	byService[status.ServiceName] = status
	return nil
}

func (s *MemoryStore) ListByOrg(_ context.Context, orgID string) ([]monitor.ServiceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]monitor.ServiceStatus, 0, len(s.statuses[orgID]))
	for _, st := range s.statuses[orgID] {
		results = append(results, st)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ServiceName < results[j].ServiceName })
	return results, nil
}

func (s *MemoryStore) ListActive(ctx context.Context, orgID string) ([]monitor.AlertRule, error) {
	rules, err := s.ListRules(ctx, orgID)
	if err != nil {
		return nil, err
	}
	active := rules[:0]
	for _, rule := range rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	return active, nil
}

func (s *MemoryStore) ListRules(_ context.Context, orgID string) ([]monitor.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := []monitor.AlertRule{}
	for _, rule := range s.rules {
		if rule.OrgID == orgID {
			results = append(results, rule)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

func (s *MemoryStore) GetRule(_ context.Context, orgID, id string) (monitor.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok || rule.OrgID != orgID {
		return monitor.AlertRule{}, monitor.ErrNotFound
	}
	return rule, nil
}

// CreateRule stores the rule, keeping a caller-supplied id if present.
func (s *MemoryStore) CreateRule(_ context.Context, rule monitor.AlertRule) (monitor.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := s.now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *MemoryStore) UpdateRule(_ context.Context, rule monitor.AlertRule) (monitor.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[rule.ID]
	if !ok || existing.OrgID != rule.OrgID {
		return monitor.AlertRule{}, monitor.ErrNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now()
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *MemoryStore) SetRuleActive(_ context.Context, orgID, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok || rule.OrgID != orgID {
		return monitor.ErrNotFound
	}
	rule.IsActive = active
	rule.UpdatedAt = s.now()
	s.rules[id] = rule
	return nil
}

func (s *MemoryStore) FindFiring(_ context.Context, ruleID string) (*monitor.ActiveAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.firing[ruleID]
	if !ok {
		return nil, nil
	}
	alert := s.alerts[id]
	return &alert, nil
}

func (s *MemoryStore) Insert(_ context.Context, alert monitor.ActiveAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.Status == monitor.AlertFiring {
		if _, ok := s.firing[alert.RuleID]; ok {
			return monitor.ErrAlertAlreadyFiring
		}
		s.firing[alert.RuleID] = alert.ID
	}
	s.alerts[alert.ID] = alert
	return nil
}

func (s *MemoryStore) ListFiring(_ context.Context, orgID string) ([]monitor.ActiveAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := []monitor.ActiveAlert{}
	for _, id := range s.firing {
		if alert := s.alerts[id]; alert.OrgID == orgID {
			results = append(results, alert)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].StartedAt.After(results[j].StartedAt) })
	return results, nil
}

func (s *MemoryStore) Resolve(_ context.Context, alertID string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok || alert.Status != monitor.AlertFiring {
		return monitor.ErrNotFound
	}
	alert.Status = monitor.AlertResolved
	alert.ResolvedAt = &resolvedAt
	s.alerts[alertID] = alert
	delete(s.firing, alert.RuleID)
	return nil
}

// Alerts returns every alert of an org, firing or resolved.
func (s *MemoryStore) Alerts(orgID string) []monitor.ActiveAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := []monitor.ActiveAlert{}
	for _, alert := range s.alerts {
		if alert.OrgID == orgID {
			results = append(results, alert)
		}
	}
	return results
}

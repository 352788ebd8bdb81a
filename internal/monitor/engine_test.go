package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionhealth-backend/internal/monitor"
	"visionhealth-backend/internal/storage"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

// valueSource returns one sample of a single series with a mutable value.
type valueSource struct {
	mu      sync.Mutex
	service string
	metric  string
	value   float64
}

func (s *valueSource) set(v float64) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

func (s *valueSource) Collect(_ context.Context, orgID string, now time.Time) ([]monitor.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []monitor.Metric{{
		OrgID: orgID, ServiceName: s.service, MetricName: s.metric,
		Value: s.value, Type: monitor.MetricGauge, Timestamp: now,
	}}, nil
}

type stubProber struct {
	statuses map[string]monitor.Status
}

func (p stubProber) Check(ctx context.Context, target monitor.ProbeTarget) monitor.ServiceStatus {
	if err := ctx.Err(); err != nil {
		msg := err.Error()
		return monitor.ServiceStatus{Status: monitor.StatusUnhealthy, ErrorMessage: &msg}
	}
	status, ok := p.statuses[target.ServiceName]
	if !ok {
		status = monitor.StatusHealthy
	}
	return monitor.ServiceStatus{Status: status, ResponseTimeMs: 3}
}

type recordingNotifier struct {
	mu       sync.Mutex
	fired    []monitor.ActiveAlert
	resolved []monitor.ActiveAlert
}

func (n *recordingNotifier) AlertFired(_ context.Context, a monitor.ActiveAlert) {
	n.mu.Lock()
	n.fired = append(n.fired, a)
	n.mu.Unlock()
}

func (n *recordingNotifier) AlertResolved(_ context.Context, a monitor.ActiveAlert) {
	n.mu.Lock()
	n.resolved = append(n.resolved, a)
	n.mu.Unlock()
}

type failingMetrics struct{ *storage.MemoryStore }

func (failingMetrics) Append(context.Context, string, []monitor.Metric) error {
	return errors.New("disk full")
}

type failingStatuses struct{ *storage.MemoryStore }

func (failingStatuses) Upsert(context.Context, monitor.ServiceStatus) error {
	return errors.New("connection reset")
}

var targets = []monitor.ProbeTarget{
	{ServiceName: "fusion", Endpoint: "http://fusion:8080/health"},
	{ServiceName: "mediamtx", Endpoint: "http://mediamtx:9997/v3/paths/list"},
}

func saturationRule(orgID string) monitor.AlertRule {
	return monitor.AlertRule{
		ID:              "rule-fusion",
		OrgID:           orgID,
		RuleName:        "fusion queue saturated",
		ServiceName:     "fusion",
		MetricName:      "queue_saturation_duration_seconds",
		ConditionType:   monitor.ConditionGreater,
		ThresholdValue:  30,
		DurationSeconds: 300,
		Severity:        monitor.SeverityCritical,
		IsActive:        true,
	}
}

type fixture struct {
	store    *storage.MemoryStore
	source   *valueSource
	notifier *recordingNotifier
	engine   *monitor.Engine
}

func newFixture(t *testing.T, opts monitor.Options, value float64) *fixture {
	t.Helper()
	store := storage.NewMemoryStore(clock)
	source := &valueSource{service: "fusion", metric: "queue_saturation_duration_seconds", value: value}
	notifier := &recordingNotifier{}
	opts.Notifier = notifier
	opts.Now = clock
	engine, err := monitor.NewEngine(store.Stores(), source, stubProber{}, targets, opts)
	require.NoError(t, err)
	return &fixture{store: store, source: source, notifier: notifier, engine: engine}
}

func TestCollectCreatesAlertWhenThresholdBreached(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)

	summary, err := f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MetricsCollected)
	assert.Equal(t, 2, summary.ServicesChecked)
	assert.Equal(t, testNow, summary.Timestamp)

	firing, err := f.store.ListFiring(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, firing, 1)
	alert := firing[0]
	assert.Equal(t, "rule-fusion", alert.RuleID)
	assert.Equal(t, 45.0, alert.CurrentValue)
	assert.Equal(t, 30.0, alert.ThresholdValue)
	assert.Equal(t, monitor.SeverityCritical, alert.Severity)
	assert.Equal(t, monitor.AlertFiring, alert.Status)
	assert.Equal(t, "org-1", alert.OrgID)
	assert.Len(t, f.notifier.fired, 1)
}

func TestCollectBelowThresholdCreatesNothing(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 10)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)

	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	firing, err := f.store.ListFiring(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, firing)
	assert.Empty(t, f.notifier.fired)
}

func TestConsecutiveCollectsKeepOneFiringAlert(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)

	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)
	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	assert.Len(t, f.store.Alerts("org-1"), 1)
	assert.Equal(t, 2, f.store.SeriesLen("org-1", "fusion", "queue_saturation_duration_seconds"))
	statuses, err := f.store.ListByOrg(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, statuses, 2, "status is upserted, not appended")
}

func TestConcurrentEvaluationsOpenOneAlert(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)
	require.NoError(t, f.store.Append(ctx, "org-1", []monitor.Metric{{
		ServiceName: "fusion", MetricName: "queue_saturation_duration_seconds", Value: 45, Timestamp: testNow,
	}}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.EvaluateAlertRules(ctx, "org-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.store.Alerts("org-1"), 1)
}

func TestAutoResolveClosesAlertWhenConditionClears(t *testing.T) {
	f := newFixture(t, monitor.Options{AutoResolve: true}, 45)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)

	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	f.source.set(10)
	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	firing, err := f.store.ListFiring(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, firing)

	alerts := f.store.Alerts("org-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, monitor.AlertResolved, alerts[0].Status)
	require.NotNil(t, alerts[0].ResolvedAt)
	assert.Equal(t, testNow, *alerts[0].ResolvedAt)
	assert.Len(t, f.notifier.resolved, 1)
}

func TestWithoutAutoResolveAlertKeepsFiring(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)

	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)
	f.source.set(10)
	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	firing, err := f.store.ListFiring(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, firing, 1)
	assert.Empty(t, f.notifier.resolved)
}

func TestEvaluateSkipsRulesWithoutData(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	rule := saturationRule("org-1")
	rule.MetricName = "never_reported"
	_, err := f.store.CreateRule(ctx, rule)
	require.NoError(t, err)

	report, err := f.engine.EvaluateAlertRules(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.RulesEvaluated)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.AlertsCreated)
}

func TestEvaluateIgnoresStaleSamples(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)
	require.NoError(t, f.store.Append(ctx, "org-1", []monitor.Metric{{
		ServiceName: "fusion", MetricName: "queue_saturation_duration_seconds", Value: 99, Timestamp: testNow.Add(-10 * time.Minute),
	}}))

	report, err := f.engine.EvaluateAlertRules(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, f.store.Alerts("org-1"))
}

func TestEvaluateIsolatesFailingRules(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	broken := saturationRule("org-1")
	broken.ID = "rule-broken"
	broken.ConditionType = "between"
	_, err := f.store.CreateRule(ctx, broken)
	require.NoError(t, err)
	_, err = f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)
	inactive := saturationRule("org-1")
	inactive.ID = "rule-off"
	inactive.IsActive = false
	_, err = f.store.CreateRule(ctx, inactive)
	require.NoError(t, err)

	require.NoError(t, f.store.Append(ctx, "org-1", []monitor.Metric{{
		ServiceName: "fusion", MetricName: "queue_saturation_duration_seconds", Value: 45, Timestamp: testNow,
	}}))

	report, err := f.engine.EvaluateAlertRules(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.RulesEvaluated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.AlertsCreated)

	firing, err := f.store.FindFiring(ctx, "rule-fusion")
	require.NoError(t, err)
	assert.NotNil(t, firing)
}

type brokenSeriesMetrics struct {
	*storage.MemoryStore
	metric string
}

func (m brokenSeriesMetrics) LatestInWindow(ctx context.Context, orgID, serviceName, metricName string, window time.Duration) (*monitor.Metric, error) {
	if metricName == m.metric {
		return nil, errors.New("canceling statement due to statement timeout")
	}
	return m.MemoryStore.LatestInWindow(ctx, orgID, serviceName, metricName, window)
}

type brokenRuleAlerts struct {
	*storage.MemoryStore
	ruleID string
}

func (a brokenRuleAlerts) FindFiring(ctx context.Context, ruleID string) (*monitor.ActiveAlert, error) {
	if ruleID == a.ruleID {
		return nil, errors.New("connection reset by peer")
	}
	return a.MemoryStore.FindFiring(ctx, ruleID)
}

func TestEvaluateIsolatesStoreFailures(t *testing.T) {
	latency := saturationRule("org-1")
	latency.ID = "rule-latency"
	latency.ServiceName = "yolo-detection"
	latency.MetricName = "inference_latency_ms"
	latency.ThresholdValue = 100

	tests := []struct {
		name string
		wrap func(*storage.MemoryStore) monitor.Stores
	}{
		{
			name: "latest sample query fails",
			wrap: func(store *storage.MemoryStore) monitor.Stores {
				stores := store.Stores()
				stores.Metrics = brokenSeriesMetrics{MemoryStore: store, metric: "inference_latency_ms"}
				return stores
			},
		},
		{
			name: "firing lookup fails",
			wrap: func(store *storage.MemoryStore) monitor.Stores {
				stores := store.Stores()
				stores.Alerts = brokenRuleAlerts{MemoryStore: store, ruleID: "rule-latency"}
				return stores
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemoryStore(clock)
			_, err := store.CreateRule(ctx, latency)
			require.NoError(t, err)
			_, err = store.CreateRule(ctx, saturationRule("org-1"))
			require.NoError(t, err)
			require.NoError(t, store.Append(ctx, "org-1", []monitor.Metric{
				{ServiceName: "yolo-detection", MetricName: "inference_latency_ms", Value: 250, Timestamp: testNow},
				{ServiceName: "fusion", MetricName: "queue_saturation_duration_seconds", Value: 45, Timestamp: testNow},
			}))

			engine, err := monitor.NewEngine(tt.wrap(store), monitor.StaticSource(nil), stubProber{}, nil, monitor.Options{Now: clock})
			require.NoError(t, err)

			report, err := engine.EvaluateAlertRules(ctx, "org-1")
			require.NoError(t, err)
			assert.Equal(t, 2, report.RulesEvaluated)
			assert.Equal(t, 1, report.Failed)
			assert.Equal(t, 1, report.AlertsCreated)

			firing, err := store.FindFiring(ctx, "rule-fusion")
			require.NoError(t, err)
			assert.NotNil(t, firing)
			latencyAlert, err := store.FindFiring(ctx, "rule-latency")
			require.NoError(t, err)
			assert.Nil(t, latencyAlert)
		})
	}
}

func TestRulesOfOtherOrgsAreNotEvaluated(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-2"))
	require.NoError(t, err)

	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	assert.Empty(t, f.store.Alerts("org-1"))
	assert.Empty(t, f.store.Alerts("org-2"))
}

func TestCollectAbortsWhenMetricsAppendFails(t *testing.T) {
	store := storage.NewMemoryStore(clock)
	stores := store.Stores()
	stores.Metrics = failingMetrics{store}
	engine, err := monitor.NewEngine(stores, &valueSource{service: "fusion", metric: "queue_depth"}, stubProber{}, targets, monitor.Options{Now: clock})
	require.NoError(t, err)

	_, err = engine.Collect(context.Background(), "org-1")
	require.ErrorIs(t, err, monitor.ErrPersistence)

	statuses, err := store.ListByOrg(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Empty(t, statuses, "probes must not run after a failed append")
}

func TestCollectFailsWhenStatusUpsertFails(t *testing.T) {
	store := storage.NewMemoryStore(clock)
	_, err := store.CreateRule(context.Background(), saturationRule("org-1"))
	require.NoError(t, err)
	stores := store.Stores()
	stores.Statuses = failingStatuses{store}
	source := &valueSource{service: "fusion", metric: "queue_saturation_duration_seconds", value: 45}
	engine, err := monitor.NewEngine(stores, source, stubProber{}, targets, monitor.Options{Now: clock})
	require.NoError(t, err)

	_, err = engine.Collect(context.Background(), "org-1")
	require.ErrorIs(t, err, monitor.ErrPersistence)
	assert.Contains(t, err.Error(), "fusion")
	assert.Contains(t, err.Error(), "mediamtx")
	assert.Empty(t, store.Alerts("org-1"), "rules are not evaluated after a failed upsert")
}

func TestCollectRejectsEmptyOrg(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 1)
	_, err := f.engine.Collect(context.Background(), "  ")
	assert.ErrorIs(t, err, monitor.ErrInvalidRequest)
	_, err = f.engine.HealthSnapshot(context.Background(), "")
	assert.ErrorIs(t, err, monitor.ErrInvalidRequest)
}

func TestProbesSurviveCallerCancellation(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	statuses, err := f.store.ListByOrg(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, monitor.StatusHealthy, st.Status, st.ServiceName)
		assert.Equal(t, "org-1", st.OrgID)
		assert.Equal(t, testNow, st.LastCheck)
	}
}

type panickingProber struct{}

func (panickingProber) Check(context.Context, monitor.ProbeTarget) monitor.ServiceStatus {
	panic("boom")
}

func TestProbePanicBecomesUnhealthy(t *testing.T) {
	store := storage.NewMemoryStore(clock)
	engine, err := monitor.NewEngine(store.Stores(), monitor.StaticSource(nil), panickingProber{}, targets[:1], monitor.Options{Now: clock})
	require.NoError(t, err)

	_, err = engine.Collect(context.Background(), "org-1")
	require.NoError(t, err)

	statuses, err := store.ListByOrg(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, monitor.StatusUnhealthy, statuses[0].Status)
	require.NotNil(t, statuses[0].ErrorMessage)
	assert.Contains(t, *statuses[0].ErrorMessage, "boom")
}

func TestHealthSnapshot(t *testing.T) {
	store := storage.NewMemoryStore(clock)
	prober := stubProber{statuses: map[string]monitor.Status{"mediamtx": monitor.StatusDegraded}}
	source := &valueSource{service: "fusion", metric: "queue_saturation_duration_seconds", value: 45}
	engine, err := monitor.NewEngine(store.Stores(), source, prober, targets, monitor.Options{Now: clock})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)

	snapshot, err := engine.HealthSnapshot(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusHealthy, snapshot.Status)
	assert.NotNil(t, snapshot.Services)
	assert.NotNil(t, snapshot.ActiveAlerts)

	_, err = engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	snapshot, err = engine.HealthSnapshot(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusDegraded, snapshot.Status)
	assert.Len(t, snapshot.Services, 2)
	assert.Len(t, snapshot.ActiveAlerts, 1)
	assert.Equal(t, testNow, snapshot.LastUpdated)
}

func TestResolveAlert(t *testing.T) {
	f := newFixture(t, monitor.Options{}, 45)
	ctx := context.Background()
	_, err := f.store.CreateRule(ctx, saturationRule("org-1"))
	require.NoError(t, err)
	_, err = f.engine.Collect(ctx, "org-1")
	require.NoError(t, err)

	firing, err := f.store.ListFiring(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, firing, 1)

	assert.ErrorIs(t, f.engine.ResolveAlert(ctx, "org-2", firing[0].ID), monitor.ErrNotFound)
	require.NoError(t, f.engine.ResolveAlert(ctx, "org-1", firing[0].ID))
	assert.ErrorIs(t, f.engine.ResolveAlert(ctx, "org-1", firing[0].ID), monitor.ErrNotFound)
	assert.Len(t, f.notifier.resolved, 1)
}

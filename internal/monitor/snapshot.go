package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OverallStatus reduces per-service statuses: any unhealthy service makes
// the org unhealthy, otherwise any non-healthy one makes it degraded. No
// services at all counts as healthy.
func OverallStatus(services []ServiceStatus) Status {
	degraded := false
	for _, s := range services {
		switch s.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusHealthy:
		default:
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// HealthSnapshot reads the current service statuses and firing alerts of an
// org. It never probes or writes.
func (e *Engine) HealthSnapshot(ctx context.Context, orgID string) (HealthSnapshot, error) {
	if strings.TrimSpace(orgID) == "" {
		return HealthSnapshot{}, fmt.Errorf("%w: orgId is required", ErrInvalidRequest)
	}
	services, err := e.stores.Statuses.ListByOrg(ctx, orgID)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("list service statuses: %w", err)
	}
	alerts, err := e.stores.Alerts.ListFiring(ctx, orgID)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("list firing alerts: %w", err)
	}
	if services == nil {
		services = []ServiceStatus{}
	}
	if alerts == nil {
		alerts = []ActiveAlert{}
	}
	return HealthSnapshot{
		Status:       OverallStatus(services),
		Services:     services,
		ActiveAlerts: alerts,
		LastUpdated:  lastUpdated(services, e.now),
	}, nil
}

func lastUpdated(services []ServiceStatus, now func() time.Time) time.Time {
	var newest time.Time
	for _, s := range services {
		if s.LastCheck.After(newest) {
			newest = s.LastCheck
		}
	}
	if newest.IsZero() {
		return now()
	}
	return newest
}

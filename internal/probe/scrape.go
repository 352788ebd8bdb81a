package probe

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"visionhealth-backend/internal/monitor"
)

// ScrapeSource derives metrics from the probe responses themselves: the
// response time, an up gauge and every numeric top-level field of the
// returned metadata.
type ScrapeSource struct {
	prober      monitor.Prober
	targets     []monitor.ProbeTarget
	concurrency int
}

func NewScrapeSource(prober monitor.Prober, targets []monitor.ProbeTarget) *ScrapeSource {
	return &ScrapeSource{prober: prober, targets: targets, concurrency: 8}
}

// Collect probes every target on its own. The engine calls
// MetricsFromStatuses instead and reuses the statuses of its own fan-out.
func (s *ScrapeSource) Collect(ctx context.Context, orgID string, now time.Time) ([]monitor.Metric, error) {
	probeCtx := context.WithoutCancel(ctx)
	perTarget := make([][]monitor.Metric, len(s.targets))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, target := range s.targets {
		g.Go(func() error {
			status := s.prober.Check(probeCtx, target)
			perTarget[i] = scrapeMetrics(orgID, target.ServiceName, status, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var batch []monitor.Metric
	for _, metrics := range perTarget {
		batch = append(batch, metrics...)
	}
	return batch, nil
}

func (s *ScrapeSource) MetricsFromStatuses(orgID string, statuses []monitor.ServiceStatus, now time.Time) []monitor.Metric {
	var batch []monitor.Metric
	for _, status := range statuses {
		batch = append(batch, scrapeMetrics(orgID, status.ServiceName, status, now)...)
	}
	return batch
}

func scrapeMetrics(orgID, service string, status monitor.ServiceStatus, now time.Time) []monitor.Metric {
	labels := map[string]string{"source": "scrape"}
	up := 0.0
	if status.Status == monitor.StatusHealthy {
		up = 1
	}
	metrics := []monitor.Metric{
		{OrgID: orgID, ServiceName: service, MetricName: "up", Value: up, Type: monitor.MetricGauge, Labels: labels, Timestamp: now},
		{OrgID: orgID, ServiceName: service, MetricName: "response_time_ms", Value: float64(status.ResponseTimeMs), Type: monitor.MetricGauge, Labels: labels, Timestamp: now},
	}
	for key, raw := range status.Metadata {
		value, ok := raw.(float64)
		if !ok {
			continue
		}
		metrics = append(metrics, monitor.Metric{
			OrgID: orgID, ServiceName: service, MetricName: key, Value: value,
			Type: monitor.MetricGauge, Labels: labels, Timestamp: now,
		})
	}
	return metrics
}

package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	dbconnector "visionhealth-backend"
	"visionhealth-backend/internal/logger"
	"visionhealth-backend/internal/metrics"
	"visionhealth-backend/internal/monitor"
)

const (
	KindHTTP = "http"
)

// Multi dispatches a target to the HTTP or database probe by its kind and
// records probe metrics.
type Multi struct {
	HTTP     monitor.Prober
	Database monitor.Prober
}

func NewMulti(targets Targets) *Multi {
	m := &Multi{HTTP: NewHTTPProbe()}
	if len(targets.Databases) > 0 {
		m.Database = NewDatabaseProbe(targets.Databases)
	}
	return m
}

func (m *Multi) Check(ctx context.Context, target monitor.ProbeTarget) monitor.ServiceStatus {
	start := time.Now()
	var status monitor.ServiceStatus
	kind := normalizeKind(target.Kind)
	switch {
	case kind == KindHTTP:
		status = m.HTTP.Check(ctx, target)
	case dbconnector.SupportedType(kind):
		if m.Database == nil {
			status = unhealthy("database probing is not configured", 0)
			break
		}
		status = m.Database.Check(ctx, target)
	default:
		status = unhealthy(fmt.Sprintf("unsupported probe kind %q", target.Kind), 0)
	}

	metrics.ProbeDuration.WithLabelValues(target.ServiceName).Observe(time.Since(start).Seconds())
	metrics.ProbeResultsTotal.WithLabelValues(target.ServiceName, string(status.Status)).Inc()
	if status.Status != monitor.StatusHealthy {
		event := logger.WithComponent("probe").Warn().
			Str("service", target.ServiceName).
			Str("status", string(status.Status)).
			Int("response_time_ms", status.ResponseTimeMs)
		if status.ErrorMessage != nil {
			event = event.Str("error", *status.ErrorMessage)
		}
		event.Msg("service not healthy")
	}
	return status
}

func normalizeKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || kind == "https" {
		return KindHTTP
	}
	return kind
}

package probe

import (
	"context"
	"fmt"
	"time"

	dbconnector "visionhealth-backend"
	"visionhealth-backend/internal/monitor"
)

// DatabaseProbe checks a database dependency by opening a one-shot
// connection, pinging it and reading the server version.
type DatabaseProbe struct {
	Configs map[string]dbconnector.ConnectionConfig
	connect func(dbconnector.ConnectionConfig) (dbconnector.DbConnector, error)
}

func NewDatabaseProbe(configs map[string]dbconnector.ConnectionConfig) *DatabaseProbe {
	return &DatabaseProbe{Configs: configs, connect: dbconnector.NewConnector}
}

func (p *DatabaseProbe) Check(ctx context.Context, target monitor.ProbeTarget) monitor.ServiceStatus {
	cfg, ok := p.Configs[target.ServiceName]
	if !ok {
		return unhealthy(fmt.Sprintf("no connection config for %q", target.ServiceName), 0)
	}
	ctx, cancel := context.WithTimeout(ctx, target.Timeout())
	defer cancel()

	start := time.Now()
	conn, err := p.connect(cfg)
	if err != nil {
		return unhealthy(err.Error(), time.Since(start))
	}
	defer conn.Close()

	if err := conn.TestConnection(ctx); err != nil {
		return unhealthy(err.Error(), time.Since(start))
	}
	elapsed := time.Since(start)
	metadata := map[string]any{"target": conn.Describe()}
	version, err := conn.ServerVersion(ctx)
	if err != nil {
		msg := err.Error()
		return monitor.ServiceStatus{
			Status:         monitor.StatusDegraded,
			ResponseTimeMs: int(elapsed.Milliseconds()),
			ErrorMessage:   &msg,
			Metadata:       metadata,
		}
	}
	metadata["version"] = version
	return monitor.ServiceStatus{
		Status:         monitor.StatusHealthy,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		Metadata:       metadata,
	}
}

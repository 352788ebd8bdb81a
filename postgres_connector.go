// file: postgres_connector.go
package dbconnector

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
)

type PostgresConnector struct {
	baseConnector
}

func newPostgresConnector(cfg ConnectionConfig) (*PostgresConnector, error) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	db, err := openDatabase("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	return &PostgresConnector{baseConnector{cfg: cfg, db: db}}, nil
}

func postgresDSN(cfg ConnectionConfig) string {
	sslMode := normalizeSSLMode(cfg.SSLMode)
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=5", cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
}

func (c *PostgresConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (c *PostgresConnector) ServerVersion(ctx context.Context) (string, error) {
	return c.queryVersion(ctx, "SHOW server_version", "postgres")
}

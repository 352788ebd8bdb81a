// file: connector.go
package dbconnector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DbConnector is a short-lived connection to a database dependency of the
// analytics platform. The health monitor opens one per probe.
type DbConnector interface {
	TestConnection(ctx context.Context) error

	ServerVersion(ctx context.Context) (string, error)

	Describe() string

	Close() error
}

type ConnectionConfig struct {
	Type     string `json:"type" yaml:"type"` // mysql | postgres | mssql
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"sslMode" yaml:"ssl_mode"`
}

var ErrEmptyVersion = errors.New("server returned empty version")

type baseConnector struct {
	cfg ConnectionConfig
	db  *sql.DB
}

func (b *baseConnector) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Describe renders the target without credentials, suitable for logs and
// probe metadata.
func (b *baseConnector) Describe() string {
	return DescribeConfig(b.cfg)
}

func (b *baseConnector) queryVersion(ctx context.Context, query string, label string) (string, error) {
	var version string
	if err := b.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("query %s version: %w", label, err)
	}
	version = firstLine(version)
	if version == "" {
		return "", ErrEmptyVersion
	}
	return version, nil
}

// DescribeConfig renders a connection target without credentials.
func DescribeConfig(cfg ConnectionConfig) string {
	dbType := strings.ToLower(strings.TrimSpace(cfg.Type))
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "localhost"
	}
	target := fmt.Sprintf("%s://%s", dbType, host)
	if cfg.Port != 0 {
		target = fmt.Sprintf("%s:%d", target, cfg.Port)
	}
	if db := strings.TrimSpace(cfg.Database); db != "" {
		target += "/" + db
	}
	return target
}

// firstLine trims multi-line banners such as the one returned by SQL Server.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func normalizeSSLMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

// file: mssql_connector.go
package dbconnector

import (
	"context"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"
)

type MSSQLConnector struct {
	baseConnector
}

func newMSSQLConnector(cfg ConnectionConfig) (*MSSQLConnector, error) {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	db, err := openDatabase("sqlserver", mssqlDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mssql connection: %w", err)
	}
	return &MSSQLConnector{baseConnector{cfg: cfg, db: db}}, nil
}

func mssqlDSN(cfg ConnectionConfig) string {
	user := url.QueryEscape(cfg.User)
	pass := url.QueryEscape(cfg.Password)
	encrypt := "true"
	if normalizeSSLMode(cfg.SSLMode) == "disable" {
		encrypt = "disable"
	}
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s&dial+timeout=5", user, pass, cfg.Host, cfg.Port, url.QueryEscape(cfg.Database), encrypt)
}

func (c *MSSQLConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mssql: %w", err)
	}
	return nil
}

func (c *MSSQLConnector) ServerVersion(ctx context.Context) (string, error) {
	return c.queryVersion(ctx, "SELECT @@VERSION", "mssql")
}

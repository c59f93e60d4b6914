package mysql

import (
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// NormalizeDSN parses a go-sql-driver DSN and enforces the settings the store relies on:
// parseTime for TIMESTAMP columns and UTC as the connection location.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("netq mysql: parse dsn failed: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	return cfg.FormatDSN(), nil
}

// DatabaseName returns the schema selected by dsn.
func DatabaseName(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("netq mysql: parse dsn failed: %w", err)
	}

	return cfg.DBName, nil
}

package mysql

import (
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// NormalizeDSN returns dsn with parseTime enabled. Without it the driver
// returns DATETIME columns as bytes and every claim fails to scan.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mailqueue mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true

	return cfg.FormatDSN(), nil
}

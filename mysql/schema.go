package mysql

import (
	"fmt"

	"github.com/AdewaleAdeniji/mailqueue/internal/sqlident"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BINARY(16) NOT NULL,
	payload JSON NOT NULL,
	sent TINYINT(1) NOT NULL DEFAULT 0,
	claimed TINYINT(1) NOT NULL DEFAULT 0,
	retry_count INT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	sent_at TIMESTAMP(6) NULL,
	PRIMARY KEY (id),
	INDEX idx_eligible (sent, claimed, retry_count, id),
	INDEX idx_sent_at (sent, sent_at)
)`

// Schema returns the CREATE TABLE statement for a queue table.
func Schema(table string) (string, error) {
	name, err := sqlident.TableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name), nil
}

package postgres

import (
	"fmt"
	"strings"

	"github.com/AdewaleAdeniji/mailqueue/internal/sqlident"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	id UUID PRIMARY KEY,
	payload JSONB NOT NULL,
	sent BOOLEAN NOT NULL DEFAULT FALSE,
	claimed BOOLEAN NOT NULL DEFAULT FALSE,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	sent_at TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS %[2]s_eligible_idx ON %[1]s (id) WHERE NOT sent AND NOT claimed;
CREATE INDEX IF NOT EXISTS %[2]s_sent_at_idx ON %[1]s (sent_at) WHERE sent`

// Schema returns the DDL for a queue table and its partial indexes.
func Schema(table string) (string, error) {
	name, err := sqlident.TableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name, indexPrefix(name)), nil
}

// indexPrefix drops the schema qualifier, since index names live in the table's schema.
func indexPrefix(table string) string {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[i+1:]
	}

	return table
}

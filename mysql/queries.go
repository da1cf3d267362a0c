package mysql

import "fmt"

const (
	entryColumns  = "id, payload, sent, claimed, retry_count, last_error, created_at, updated_at, sent_at"
	eligibleWhere = "sent = 0 AND claimed = 0 AND retry_count < ?"
)

type queries struct {
	insert         string
	selectEligible string
	claim          string
	setSent        string
	setUnclaimed   string
	countEligible  string
	selectByID     string
	exists         string
	deleteSent     string
}

func newQueries(table string) queries {
	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (id, payload, sent, claimed, retry_count, created_at, updated_at) VALUES (?, ?, 0, 0, 0, ?, ?)",
			table,
		),
		selectEligible: fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s ORDER BY id ASC LIMIT 1 FOR UPDATE SKIP LOCKED",
			entryColumns,
			table,
			eligibleWhere,
		),
		claim: fmt.Sprintf(
			"UPDATE %s SET claimed = 1, retry_count = retry_count + 1, updated_at = ? WHERE id = ?",
			table,
		),
		setSent: fmt.Sprintf(
			"UPDATE %s SET sent = 1, sent_at = COALESCE(sent_at, ?), updated_at = ? WHERE id = ?",
			table,
		),
		setUnclaimed: fmt.Sprintf(
			"UPDATE %s SET claimed = 0, last_error = ?, updated_at = ? WHERE id = ?",
			table,
		),
		countEligible: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, eligibleWhere),
		selectByID:    fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", entryColumns, table),
		exists:        fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table),
		deleteSent: fmt.Sprintf(
			"DELETE FROM %s WHERE sent = 1 AND sent_at IS NOT NULL AND sent_at <= ? ORDER BY id LIMIT ?",
			table,
		),
	}
}

package postgres

import "fmt"

const (
	entryColumns  = "id::text, payload, sent, claimed, retry_count, last_error, created_at, updated_at, sent_at"
	eligibleWhere = "NOT sent AND NOT claimed AND retry_count < $1"
)

type queries struct {
	insert        string
	claim         string
	setSent       string
	setUnclaimed  string
	countEligible string
	selectByID    string
	deleteSent    string
}

func newQueries(table string) queries {
	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (id, payload, created_at, updated_at) VALUES ($1::uuid, $2, $3, $3)",
			table,
		),
		claim: fmt.Sprintf(
			`UPDATE %[1]s SET claimed = TRUE, retry_count = retry_count + 1, updated_at = $2
WHERE id = (SELECT id FROM %[1]s WHERE %[2]s ORDER BY id ASC LIMIT 1 FOR UPDATE SKIP LOCKED)
RETURNING %[3]s`,
			table,
			eligibleWhere,
			entryColumns,
		),
		setSent: fmt.Sprintf(
			"UPDATE %s SET sent = TRUE, sent_at = COALESCE(sent_at, $2), updated_at = $2 WHERE id = $1::uuid",
			table,
		),
		setUnclaimed: fmt.Sprintf(
			"UPDATE %s SET claimed = FALSE, last_error = NULLIF($2, ''), updated_at = $3 WHERE id = $1::uuid",
			table,
		),
		countEligible: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, eligibleWhere),
		selectByID:    fmt.Sprintf("SELECT %s FROM %s WHERE id = $1::uuid", entryColumns, table),
		deleteSent: fmt.Sprintf(
			"DELETE FROM %s WHERE sent AND sent_at IS NOT NULL AND sent_at <= $1",
			table,
		),
	}
}

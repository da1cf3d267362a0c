// Package mysql provides a MySQL 8.0+ mailqueue store.
//
// A claim runs in a short transaction that uses:
//   - READ COMMITTED isolation (to avoid gap locks)
//   - SELECT ... FOR UPDATE SKIP LOCKED
//   - ORDER BY id ASC (UUID v7 time ordering)
//
// The DSN must enable parseTime; NormalizeDSN turns it on. See Schema for
// the table layout and CleanupMaintainer for periodic removal of sent rows.
package mysql

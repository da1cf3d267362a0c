package mysql

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("mailqueue mysql: db is required")
	// ErrCleanupBeforeRequired is returned when cleanup cutoff is missing.
	ErrCleanupBeforeRequired = errors.New("mailqueue mysql: cleanup before time is required")
	// ErrCleanupLimitInvalid is returned when cleanup limit is negative.
	ErrCleanupLimitInvalid = errors.New("mailqueue mysql: cleanup limit must be non-negative")
	// ErrCleanupRetentionInvalid is returned when cleanup retention is not positive.
	ErrCleanupRetentionInvalid = errors.New("mailqueue mysql: cleanup retention must be positive")
)

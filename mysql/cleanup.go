package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AdewaleAdeniji/mailqueue"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "mailqueue:cleanup:"
)

// CleanupOptions defines which sent rows to delete. Unsent rows, including
// exhausted ones, are never deleted.
type CleanupOptions struct {
	// Before removes rows sent at or before this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per call (0 uses the default).
	Limit int
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Sent int64
}

// CleanupMaintainerConfig controls periodic cleanup of sent rows.
type CleanupMaintainerConfig struct {
	// Table is the queue table name. Use schema.table for non-default schema.
	Table string
	// Retention removes rows sent before now-retention (required).
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// LockName is the advisory lock name. Defaults to mailqueue:cleanup:<table>.
	LockName string
	Clock    mailqueue.Clock
	Logger   mailqueue.Logger
}

// CleanupMaintainer runs periodic cleanup, serialised across processes by GET_LOCK.
type CleanupMaintainer struct {
	store *Store
	cfg   CleanupMaintainerConfig
}

// Cleanup removes sent rows older than opts.Before.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultCleanupLimit
	}
	if limit < 0 {
		return CleanupResult{}, ErrCleanupLimitInvalid
	}

	res, err := s.db.ExecContext(ctx, s.queries.deleteSent, cutoff(opts.Before), limit)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("mailqueue mysql: cleanup delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("mailqueue mysql: cleanup rows failed: %w", err)
	}

	return CleanupResult{Sent: affected}, nil
}

// NewCleanupMaintainer creates a new cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = mailqueue.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = mailqueue.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	store, err := NewStore(db, WithTable(cfg.Table))
	if err != nil {
		return nil, err
	}
	cfg.Table = store.table
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run periodically deletes old sent rows until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	m.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *CleanupMaintainer) runOnce(ctx context.Context) {
	result, err := m.Ensure(ctx)
	if err != nil {
		m.cfg.Logger.Warn("mailqueue cleanup failed", "err", err)

		return
	}
	if result.Sent > 0 {
		m.cfg.Logger.Info("mailqueue cleanup removed sent entries", "count", result.Sent)
	}
}

// Ensure executes a single cleanup pass. It is a no-op when another session holds the lock.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("mailqueue mysql: cleanup conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return CleanupResult{}, err
	}
	if !locked {
		m.cfg.Logger.Debug("mailqueue cleanup lock held by another session")

		return CleanupResult{}, nil
	}
	defer m.releaseLock(ctx, conn)

	return m.store.Cleanup(ctx, CleanupOptions{
		Before: m.cfg.Clock.Now().Add(-m.cfg.Retention),
		Limit:  m.cfg.Limit,
	})
}

func (m *CleanupMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.cfg.LockName).Scan(&got); err != nil {
		return false, fmt.Errorf("mailqueue mysql: acquire cleanup lock failed: %w", err)
	}

	return got.Valid && got.Int64 == 1, nil
}

func (m *CleanupMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.cfg.LockName).Scan(&released); err != nil {
		m.cfg.Logger.Warn("mailqueue cleanup release lock failed", "err", err)
	}
}

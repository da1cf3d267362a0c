package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/sqlident"
)

const errDuplicateEntry = 1062

type rowScanner interface {
	Scan(dest ...any) error
}

// Store implements a MySQL-backed mail queue.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var (
	_ mailqueue.Store  = (*Store)(nil)
	_ mailqueue.Lookup = (*Store)(nil)
)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sqlident.TableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Migrate creates the queue table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema, err := Schema(s.table)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("mailqueue mysql: migrate failed: %w", err)
	}

	return nil
}

// Insert implements mailqueue.Store.
func (s *Store) Insert(ctx context.Context, payload mailqueue.Payload) (mailqueue.ID, error) {
	id, err := s.cfg.Generator.New()
	if err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue mysql: generate id failed: %w", err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue mysql: encode payload failed: %w", err)
	}

	now := s.cfg.Clock.Now()
	if _, err := s.db.ExecContext(ctx, s.queries.insert, id, raw, now, now); err != nil {
		if isDuplicateEntry(err) {
			return mailqueue.ID{}, mailqueue.ErrDuplicateID
		}

		return mailqueue.ID{}, mailqueue.NewStoreError("mysql insert", err)
	}

	return id, nil
}

// ClaimOneEligible locks the oldest eligible row with SKIP LOCKED and claims it in the same transaction.
func (s *Store) ClaimOneEligible(ctx context.Context, eligibility mailqueue.Eligibility) (mailqueue.Entry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mailqueue.Entry{}, mailqueue.NewStoreError("mysql begin tx", err)
	}

	entry, err := scanEntry(tx.QueryRowContext(ctx, s.queries.selectEligible, eligibility.MaxRetries))
	if err != nil {
		rollbackErr := tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return mailqueue.Entry{}, mailqueue.ErrNoEligibleEntries
		}

		return mailqueue.Entry{}, errors.Join(mailqueue.NewStoreError("mysql select eligible", err), rollbackErr)
	}

	now := s.cfg.Clock.Now()
	if _, err := tx.ExecContext(ctx, s.queries.claim, now, entry.ID); err != nil {
		rollbackErr := tx.Rollback()

		return mailqueue.Entry{}, errors.Join(mailqueue.NewStoreError("mysql claim", err), rollbackErr)
	}
	if err := tx.Commit(); err != nil {
		return mailqueue.Entry{}, mailqueue.NewStoreError("mysql commit claim", err)
	}

	entry.Claimed = true
	entry.RetryCount++
	entry.UpdatedAt = now

	return entry, nil
}

// SetSent implements mailqueue.Store.
func (s *Store) SetSent(ctx context.Context, id mailqueue.ID) error {
	now := s.cfg.Clock.Now()
	res, err := s.db.ExecContext(ctx, s.queries.setSent, now, now, id)
	if err != nil {
		return mailqueue.NewStoreError("mysql set sent", err)
	}

	return s.requireAffected(ctx, res, id)
}

// SetUnclaimed implements mailqueue.Store.
func (s *Store) SetUnclaimed(ctx context.Context, id mailqueue.ID, lastError string) error {
	res, err := s.db.ExecContext(ctx, s.queries.setUnclaimed, nullableString(lastError), s.cfg.Clock.Now(), id)
	if err != nil {
		return mailqueue.NewStoreError("mysql set unclaimed", err)
	}

	return s.requireAffected(ctx, res, id)
}

// CountEligible implements mailqueue.Store.
func (s *Store) CountEligible(ctx context.Context, eligibility mailqueue.Eligibility) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countEligible, eligibility.MaxRetries).Scan(&count); err != nil {
		return 0, mailqueue.NewStoreError("mysql count eligible", err)
	}

	return count, nil
}

// Get implements mailqueue.Lookup.
func (s *Store) Get(ctx context.Context, id mailqueue.ID) (mailqueue.Entry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx, s.queries.selectByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mailqueue.Entry{}, mailqueue.ErrEntryNotFound
		}

		return mailqueue.Entry{}, mailqueue.NewStoreError("mysql get", err)
	}

	return entry, nil
}

// requireAffected tells an unknown id apart from an update that changed nothing,
// since MySQL reports only changed rows by default.
func (s *Store) requireAffected(ctx context.Context, res sql.Result, id mailqueue.ID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return mailqueue.NewStoreError("mysql rows affected", err)
	}
	if affected > 0 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, s.queries.exists, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return mailqueue.ErrEntryNotFound
	}
	if err != nil {
		return mailqueue.NewStoreError("mysql exists", err)
	}

	return nil
}

func scanEntry(row rowScanner) (mailqueue.Entry, error) {
	var (
		entry     mailqueue.Entry
		payload   []byte
		lastError sql.NullString
		sentAt    sql.NullTime
	)
	if err := row.Scan(
		&entry.ID,
		&payload,
		&entry.Sent,
		&entry.Claimed,
		&entry.RetryCount,
		&lastError,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&sentAt,
	); err != nil {
		return mailqueue.Entry{}, err
	}
	if err := json.Unmarshal(payload, &entry.Payload); err != nil {
		return mailqueue.Entry{}, fmt.Errorf("mailqueue mysql: decode payload failed: %w", err)
	}
	entry.LastError = lastError.String
	if sentAt.Valid {
		t := sentAt.Time
		entry.SentAt = &t
	}

	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}

	return value
}

func isDuplicateEntry(err error) bool {
	var myErr *mysqldriver.MySQLError

	return errors.As(err, &myErr) && myErr.Number == errDuplicateEntry
}

func cutoff(before time.Time) time.Time {
	return before.UTC()
}

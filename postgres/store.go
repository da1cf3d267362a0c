package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/sqlident"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store uses. *pgx.Conn and pgx.Tx satisfy it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrDBRequired is returned when a nil pool is provided.
var ErrDBRequired = errors.New("mailqueue postgres: db is required")

var (
	_ mailqueue.Store  = (*Store)(nil)
	_ mailqueue.Lookup = (*Store)(nil)
)

// Store is a PostgreSQL implementation of mailqueue.Store.
// The caller owns the pool lifecycle.
type Store struct {
	db      DB
	cfg     Config
	queries queries
	table   string
}

// NewStore constructs a PostgreSQL store with validated configuration.
func NewStore(db DB, opts ...Option) (*Store, error) {
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

// Migrate creates the queue table and indexes when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema, err := Schema(s.table)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("mailqueue postgres: migrate: %w", err)
	}

	return nil
}

// Insert implements mailqueue.Store.
func (s *Store) Insert(ctx context.Context, payload mailqueue.Payload) (mailqueue.ID, error) {
	id, err := s.cfg.Generator.New()
	if err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue postgres: generate id: %w", err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue postgres: encode payload: %w", err)
	}

	if _, err := s.db.Exec(ctx, s.queries.insert, id.String(), raw, s.cfg.Clock.Now()); err != nil {
		if isUniqueViolation(err) {
			return mailqueue.ID{}, mailqueue.ErrDuplicateID
		}

		return mailqueue.ID{}, mailqueue.NewStoreError("postgres insert", err)
	}

	return id, nil
}

// ClaimOneEligible implements mailqueue.Store.
func (s *Store) ClaimOneEligible(ctx context.Context, eligibility mailqueue.Eligibility) (mailqueue.Entry, error) {
	row := s.db.QueryRow(ctx, s.queries.claim, eligibility.MaxRetries, s.cfg.Clock.Now())
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mailqueue.Entry{}, mailqueue.ErrNoEligibleEntries
		}

		return mailqueue.Entry{}, mailqueue.NewStoreError("postgres claim", err)
	}

	return entry, nil
}

// SetSent implements mailqueue.Store.
func (s *Store) SetSent(ctx context.Context, id mailqueue.ID) error {
	tag, err := s.db.Exec(ctx, s.queries.setSent, id.String(), s.cfg.Clock.Now())
	if err != nil {
		return mailqueue.NewStoreError("postgres set sent", err)
	}
	if tag.RowsAffected() == 0 {
		return mailqueue.ErrEntryNotFound
	}

	return nil
}

// SetUnclaimed implements mailqueue.Store.
func (s *Store) SetUnclaimed(ctx context.Context, id mailqueue.ID, lastError string) error {
	tag, err := s.db.Exec(ctx, s.queries.setUnclaimed, id.String(), lastError, s.cfg.Clock.Now())
	if err != nil {
		return mailqueue.NewStoreError("postgres set unclaimed", err)
	}
	if tag.RowsAffected() == 0 {
		return mailqueue.ErrEntryNotFound
	}

	return nil
}

// CountEligible implements mailqueue.Store.
func (s *Store) CountEligible(ctx context.Context, eligibility mailqueue.Eligibility) (int, error) {
	var count int64
	if err := s.db.QueryRow(ctx, s.queries.countEligible, eligibility.MaxRetries).Scan(&count); err != nil {
		return 0, mailqueue.NewStoreError("postgres count eligible", err)
	}

	return int(count), nil
}

// Get implements mailqueue.Lookup.
func (s *Store) Get(ctx context.Context, id mailqueue.ID) (mailqueue.Entry, error) {
	entry, err := scanEntry(s.db.QueryRow(ctx, s.queries.selectByID, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mailqueue.Entry{}, mailqueue.ErrEntryNotFound
		}

		return mailqueue.Entry{}, mailqueue.NewStoreError("postgres get", err)
	}

	return entry, nil
}

// DeleteSentBefore removes rows sent at or before cutoff. Unsent rows are kept.
func (s *Store) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, s.queries.deleteSent, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mailqueue postgres: delete sent: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (mailqueue.Entry, error) {
	var (
		entry     mailqueue.Entry
		id        string
		payload   []byte
		lastError *string
	)
	if err := row.Scan(
		&id,
		&payload,
		&entry.Sent,
		&entry.Claimed,
		&entry.RetryCount,
		&lastError,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.SentAt,
	); err != nil {
		return mailqueue.Entry{}, err
	}

	parsed, err := mailqueue.ParseID(id)
	if err != nil {
		return mailqueue.Entry{}, fmt.Errorf("mailqueue postgres: parse id %q: %w", id, err)
	}
	entry.ID = parsed
	if err := json.Unmarshal(payload, &entry.Payload); err != nil {
		return mailqueue.Entry{}, fmt.Errorf("mailqueue postgres: decode payload: %w", err)
	}
	if lastError != nil {
		entry.LastError = *lastError
	}

	return entry, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/sqlident"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("expected %d columns, got %d", len(r.values), len(dest))
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *bool:
			*d = v.(bool)
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case **string:
			if v != nil {
				s := v.(string)
				*d = &s
			}
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			if v != nil {
				ts := v.(time.Time)
				*d = &ts
			}
		default:
			return fmt.Errorf("unexpected destination %T", dest[i])
		}
	}

	return nil
}

type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	tag      pgconn.CommandTag
	execErr  error
	row      fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)

	return f.tag, f.execErr
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

type fixedGenerator struct {
	id mailqueue.ID
}

func (g fixedGenerator) New() (mailqueue.ID, error) {
	return g.id, nil
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil); err != ErrDBRequired {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
	if _, err := NewStore(&fakeDB{}, WithTable("drop table")); !errors.Is(err, sqlident.ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
}

func TestClaimQuerySkipsLockedRows(t *testing.T) {
	q := newQueries("email_queue")
	for _, part := range []string{
		"retry_count = retry_count + 1",
		"ORDER BY id ASC LIMIT 1 FOR UPDATE SKIP LOCKED",
		"NOT sent AND NOT claimed AND retry_count < $1",
		"RETURNING id::text",
	} {
		if !strings.Contains(q.claim, part) {
			t.Fatalf("expected %q in %q", part, q.claim)
		}
	}
}

func TestSchemaIndexNamesDropSchema(t *testing.T) {
	schema, err := Schema("mail.email_queue")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS mail.email_queue") {
		t.Fatalf("expected qualified table in schema")
	}
	if !strings.Contains(schema, "email_queue_eligible_idx ON mail.email_queue") {
		t.Fatalf("expected unqualified index name, got %s", schema)
	}
}

func TestInsertUsesGeneratedID(t *testing.T) {
	id := mailqueue.ID{0x01, 0x90}
	db := &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")}
	store, err := NewStore(db, WithGenerator(fixedGenerator{id: id}))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	got, err := store.Insert(context.Background(), mailqueue.Payload{To: "a@example.com"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
	if len(db.execArgs) != 1 || db.execArgs[0][0] != id.String() {
		t.Fatalf("expected id as first argument, got %v", db.execArgs)
	}
	if !strings.Contains(string(db.execArgs[0][1].([]byte)), `"to":"a@example.com"`) {
		t.Fatalf("expected json payload, got %s", db.execArgs[0][1])
	}
}

func TestInsertDuplicateID(t *testing.T) {
	db := &fakeDB{execErr: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"})}
	store, _ := NewStore(db)

	if _, err := store.Insert(context.Background(), mailqueue.Payload{To: "a@example.com"}); !errors.Is(err, mailqueue.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestInsertStoreError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection reset")}
	store, _ := NewStore(db)

	_, err := store.Insert(context.Background(), mailqueue.Payload{To: "a@example.com"})
	if !errors.Is(err, mailqueue.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSetSentUnknownID(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	store, _ := NewStore(db)

	if err := store.SetSent(context.Background(), mailqueue.ID{0x09}); !errors.Is(err, mailqueue.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if err := store.SetUnclaimed(context.Background(), mailqueue.ID{0x09}, "x"); !errors.Is(err, mailqueue.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestClaimNoRows(t *testing.T) {
	store, _ := NewStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	_, err := store.ClaimOneEligible(context.Background(), mailqueue.Eligibility{MaxRetries: 3})
	if !errors.Is(err, mailqueue.ErrNoEligibleEntries) {
		t.Fatalf("expected ErrNoEligibleEntries, got %v", err)
	}
}

func TestClaimReturnsEntry(t *testing.T) {
	id, err := mailqueue.UUIDv7Generator{}.New()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store, _ := NewStore(&fakeDB{row: fakeRow{values: []any{
		id.String(), []byte(`{"to":"a@example.com","subject":"s","body":"b"}`),
		false, true, 1, nil, now, now, nil,
	}}})

	entry, err := store.ClaimOneEligible(context.Background(), mailqueue.Eligibility{MaxRetries: 3})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if entry.ID != id || !entry.Claimed || entry.RetryCount != 1 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Payload.Subject != "s" || entry.LastError != "" || entry.SentAt != nil {
		t.Fatalf("unexpected entry fields %+v", entry)
	}
}

func TestGetNotFound(t *testing.T) {
	store, _ := NewStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	if _, err := store.Get(context.Background(), mailqueue.ID{0x01}); !errors.Is(err, mailqueue.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestCountEligible(t *testing.T) {
	store, _ := NewStore(&fakeDB{row: fakeRow{values: []any{int64(7)}}})

	n, err := store.CountEligible(context.Background(), mailqueue.Eligibility{MaxRetries: 3})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}
}

package mysql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

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
		case *mailqueue.ID:
			if err := d.Scan(v); err != nil {
				return err
			}
		case *[]byte:
			*d = v.([]byte)
		case *bool:
			*d = v.(bool)
		case *int:
			*d = v.(int)
		case *sql.NullString:
			if err := d.Scan(v); err != nil {
				return err
			}
		case *sql.NullTime:
			if err := d.Scan(v); err != nil {
				return err
			}
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("unexpected destination %T", dest[i])
		}
	}

	return nil
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil); err != ErrDBRequired {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithTable("bad name")); !errors.Is(err, sqlident.ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}

	store, err := NewStore(&sql.DB{})
	if err != nil {
		t.Fatalf("expected store, got %v", err)
	}
	if store.table != defaultTable {
		t.Fatalf("expected default table, got %q", store.table)
	}
}

func TestMustNewStorePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil db")
		}
	}()
	MustNewStore(nil)
}

func TestQueriesUseTable(t *testing.T) {
	q := newQueries("mail.email_queue")
	for name, query := range map[string]string{
		"insert":         q.insert,
		"selectEligible": q.selectEligible,
		"claim":          q.claim,
		"setSent":        q.setSent,
		"setUnclaimed":   q.setUnclaimed,
		"countEligible":  q.countEligible,
		"selectByID":     q.selectByID,
		"exists":         q.exists,
		"deleteSent":     q.deleteSent,
	} {
		if !strings.Contains(query, "mail.email_queue") {
			t.Fatalf("%s: expected table name, got %q", name, query)
		}
	}
}

func TestSelectEligibleClaimsOldestWithoutBlocking(t *testing.T) {
	q := newQueries("email_queue")
	for _, part := range []string{
		"sent = 0 AND claimed = 0 AND retry_count < ?",
		"ORDER BY id ASC LIMIT 1",
		"FOR UPDATE SKIP LOCKED",
	} {
		if !strings.Contains(q.selectEligible, part) {
			t.Fatalf("expected %q in %q", part, q.selectEligible)
		}
	}
	if !strings.Contains(q.claim, "retry_count = retry_count + 1") {
		t.Fatalf("expected claim to increment retry_count: %q", q.claim)
	}
	if !strings.Contains(q.setSent, "COALESCE(sent_at, ?)") {
		t.Fatalf("expected set sent to keep the first sent_at: %q", q.setSent)
	}
	if !strings.Contains(q.deleteSent, "sent = 1") {
		t.Fatalf("expected cleanup to only touch sent rows: %q", q.deleteSent)
	}
}

func TestScanEntry(t *testing.T) {
	id := mailqueue.ID{0x01, 0x02}
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sentAt := created.Add(time.Minute)

	entry, err := scanEntry(fakeRow{values: []any{
		id[:],
		[]byte(`{"to":"a@example.com","subject":"hi","body":"there"}`),
		true,
		true,
		2,
		"smtp 451",
		created,
		sentAt,
		sentAt,
	}})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if entry.ID != id {
		t.Fatalf("expected id %s, got %s", id, entry.ID)
	}
	if entry.Payload.To != "a@example.com" || entry.Payload.Subject != "hi" || entry.Payload.Body != "there" {
		t.Fatalf("unexpected payload %+v", entry.Payload)
	}
	if !entry.Sent || !entry.Claimed || entry.RetryCount != 2 {
		t.Fatalf("unexpected flags %+v", entry)
	}
	if entry.LastError != "smtp 451" {
		t.Fatalf("expected last error, got %q", entry.LastError)
	}
	if entry.SentAt == nil || !entry.SentAt.Equal(sentAt) {
		t.Fatalf("expected sent_at %v, got %v", sentAt, entry.SentAt)
	}
}

func TestScanEntryNullColumns(t *testing.T) {
	id := mailqueue.ID{0x03}
	now := time.Now()
	entry, err := scanEntry(fakeRow{values: []any{
		id[:], []byte(`{"to":"a@example.com"}`), false, false, 0, nil, now, now, nil,
	}})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if entry.LastError != "" {
		t.Fatalf("expected empty last error, got %q", entry.LastError)
	}
	if entry.SentAt != nil {
		t.Fatalf("expected nil sent_at, got %v", entry.SentAt)
	}
}

func TestScanEntryBadPayload(t *testing.T) {
	id := mailqueue.ID{0x04}
	now := time.Now()
	_, err := scanEntry(fakeRow{values: []any{
		id[:], []byte(`{`), false, false, 0, nil, now, now, nil,
	}})
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestScanEntryPassesThroughNoRows(t *testing.T) {
	if _, err := scanEntry(fakeRow{err: sql.ErrNoRows}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestIsDuplicateEntry(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	if !isDuplicateEntry(dup) {
		t.Fatalf("expected duplicate entry to be detected")
	}
	if isDuplicateEntry(&mysqldriver.MySQLError{Number: 1213}) {
		t.Fatalf("deadlock is not a duplicate entry")
	}
	if isDuplicateEntry(errors.New("boom")) {
		t.Fatalf("plain error is not a duplicate entry")
	}
}

func TestNullableString(t *testing.T) {
	if nullableString("") != nil {
		t.Fatalf("expected nil for empty string")
	}
	if nullableString("x") != "x" {
		t.Fatalf("expected value passthrough")
	}
}

package mailqueue

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

const idRawLength = 16

// ID is a UUID v7 entry identifier. Its byte order follows creation time, so
// sorting IDs ties break entries created within the same clock tick.
//
//nolint:recvcheck // Scan requires a pointer receiver, Value uses value receiver for driver.Valuer.
type ID [idRawLength]byte

// IsZero reports whether the ID is all zeros.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String returns the canonical UUID text form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}

// Scan implements sql.Scanner for BINARY(16) and textual UUID columns.
// NULL is treated as ErrInvalidID.
func (id *ID) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		return ErrInvalidID
	case []byte:
		if len(value) == idRawLength {
			copy(id[:], value)

			return nil
		}

		return id.UnmarshalText(value)
	case string:
		return id.UnmarshalText([]byte(value))
	case [idRawLength]byte:
		*id = value

		return nil
	default:
		return fmt.Errorf("mailqueue: unsupported id type %T: %w", src, ErrInvalidID)
	}
}

// Value implements driver.Valuer as 16 raw bytes.
func (id ID) Value() (driver.Value, error) {
	return id[:], nil
}

// ParseID parses the canonical or 32-hex UUID form.
func ParseID(value string) (ID, error) {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return ID{}, ErrInvalidID
	}

	return ID(parsed), nil
}

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (ID, error)
}

// UUIDv7Generator produces UUID v7 identifiers that increase monotonically within the process.
type UUIDv7Generator struct{}

// New creates a new UUID v7 identifier.
func (UUIDv7Generator) New() (ID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return ID{}, fmt.Errorf("mailqueue: generate id failed: %w", err)
	}

	return ID(u), nil
}

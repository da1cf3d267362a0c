// Package sqlident validates table names that are interpolated into SQL text.
package sqlident

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("mailqueue: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("mailqueue: invalid table name")
)

// TableName accepts name or schema.name built from ASCII letters, digits and underscores.
func TableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}

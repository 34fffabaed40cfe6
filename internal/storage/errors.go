// internal/storage/errors.go
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Specific errors for record table operations
var (
	ErrRecordNotFound      = errors.New("record not found")
	ErrTableNotFound       = errors.New("table not found")
	ErrColumnNotFound      = errors.New("column not found")
	ErrTypeMismatch        = errors.New("datatype mismatch")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrWriteConflict       = errors.New("write conflict: database stayed locked")
)

// classify maps common SQLite failures to storage errors. Errors it does not
// recognise are wrapped with op so the driver error stays inspectable.
func classify(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return ErrTableNotFound
	case strings.Contains(msg, "has no column named"), strings.Contains(msg, "no such column"):
		return fmt.Errorf("%w: %s", ErrColumnNotFound, msg)
	case strings.Contains(msg, "datatype mismatch"):
		return ErrTypeMismatch
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", ErrConstraintViolation, msg)
	}
	return fmt.Errorf("database error during %s: %w", op, err)
}

// IsContention reports whether err is SQLite refusing the write because another
// connection holds the lock.
func IsContention(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

var (
	ErrModelNotFound         = errors.New("model not found")
	ErrTableMissing          = errors.New("table does not exist")
	ErrAccessDenied          = errors.New("access denied by security rules")
	ErrRecordNotFound        = errors.New("record not found")
	ErrBatchTooLarge         = errors.New("batch exceeds the maximum of 1000 records")
	ErrMalformedInput        = errors.New("malformed input")
	ErrSoftDeleteUnsupported = errors.New("model does not support soft deletes")
)

// ValidationError carries per-field messages for a rejected write.
type ValidationError struct {
	Errors map[string][]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// storageError maps storage sentinels onto engine errors for table.
func storageError(table string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, storage.ErrTableNotFound):
		return fmt.Errorf("%w: %s", ErrTableMissing, table)
	}
	return err
}

// internal/storage/schema.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

// Querier is the subset of *sql.DB and *sql.Tx the record functions need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QuoteIdent quotes a table or column name for SQLite.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableExists reports whether table is present.
func TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("database error checking table: %w", err)
	}
	return true, nil
}

// CreateTableSQL renders the CREATE TABLE IF NOT EXISTS statement for a model.
func CreateTableSQL(model *domain.Model) string {
	cols := []string{QuoteIdent(domain.ColumnID) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, f := range model.Fields {
		if isSystemColumn(f.Name) {
			continue
		}
		cols = append(cols, QuoteIdent(f.Name)+" "+f.Type.ColumnType())
	}
	if model.HasTimestamps {
		cols = append(cols, QuoteIdent(domain.ColumnCreatedAt)+" TEXT", QuoteIdent(domain.ColumnUpdatedAt)+" TEXT")
	}
	if model.HasSoftDeletes {
		cols = append(cols, QuoteIdent(domain.ColumnDeletedAt)+" TEXT")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);", QuoteIdent(model.TableName), strings.Join(cols, ",\n\t"))
}

// EnsureTable creates the record table for model when it is missing.
// Existing tables are left untouched.
func EnsureTable(ctx context.Context, q Querier, model *domain.Model) error {
	createSQL := CreateTableSQL(model)
	if _, err := q.ExecContext(ctx, createSQL); err != nil {
		customLog.Warnf("Storage: Failed to execute CREATE TABLE: %v\nSQL: %s", err, createSQL)
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func isSystemColumn(name string) bool {
	switch name {
	case domain.ColumnID, domain.ColumnCreatedAt, domain.ColumnUpdatedAt, domain.ColumnDeletedAt:
		return true
	}
	return false
}

// internal/storage/records.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/record"
)

// --- Record CRUD Operations ---

// InsertRecord writes the values of rec as a new row and returns its id.
func InsertRecord(ctx context.Context, q Querier, table string, rec *record.Record) (int64, error) {
	keys := rec.Keys()
	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	values := make([]any, len(keys))
	for i, k := range keys {
		v, _ := rec.Get(k)
		cols[i] = QuoteIdent(k)
		placeholders[i] = "?"
		values[i] = v.Storage()
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", QuoteIdent(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if len(keys) == 0 {
		insertSQL = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", QuoteIdent(table))
	}

	result, err := q.ExecContext(ctx, insertSQL, values...)
	if err != nil {
		customLog.Warnf("Storage: Failed INSERT: %v\nSQL: %s", err, insertSQL)
		return 0, classify("insert", err)
	}
	lastID, err := result.LastInsertId()
	if err != nil {
		customLog.Warnf("Storage: Failed to get LastInsertId after INSERT: %v", err)
		return 0, fmt.Errorf("failed to retrieve ID after insert: %w", err)
	}
	return lastID, nil
}

// UpdateRecord writes the values of rec onto the row with recordID.
func UpdateRecord(ctx context.Context, q Querier, table string, recordID int64, rec *record.Record) error {
	keys := rec.Keys()
	if len(keys) == 0 {
		return nil
	}
	sets := make([]string, len(keys))
	values := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		v, _ := rec.Get(k)
		sets[i] = QuoteIdent(k) + " = ?"
		values = append(values, v.Storage())
	}
	values = append(values, recordID)

	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", QuoteIdent(table), strings.Join(sets, ", "), QuoteIdent(domain.ColumnID))
	return execAffecting(ctx, q, "update", updateSQL, values...)
}

// SoftDeleteRecord stamps deleted_at (and updated_at when touch is set) on the row.
func SoftDeleteRecord(ctx context.Context, q Querier, table string, recordID int64, at string, touch bool) error {
	rec := record.New()
	rec.Set(domain.ColumnDeletedAt, record.String(at))
	if touch {
		rec.Set(domain.ColumnUpdatedAt, record.String(at))
	}
	return UpdateRecord(ctx, q, table, recordID, rec)
}

// RestoreRecord clears deleted_at on the row.
func RestoreRecord(ctx context.Context, q Querier, table string, recordID int64, at string, touch bool) error {
	rec := record.New()
	rec.Set(domain.ColumnDeletedAt, record.Null{})
	if touch {
		rec.Set(domain.ColumnUpdatedAt, record.String(at))
	}
	return UpdateRecord(ctx, q, table, recordID, rec)
}

// DeleteRecord purges the row with recordID.
func DeleteRecord(ctx context.Context, q Querier, table string, recordID int64) error {
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", QuoteIdent(table), QuoteIdent(domain.ColumnID))
	return execAffecting(ctx, q, "delete", deleteSQL, recordID)
}

func execAffecting(ctx context.Context, q Querier, op, stmt string, args ...any) error {
	result, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		customLog.Warnf("Storage: Failed %s: %v\nSQL: %s", strings.ToUpper(op), err, stmt)
		return classify(op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		customLog.Warnf("Storage: Failed getting RowsAffected after %s: %v", strings.ToUpper(op), err)
		return fmt.Errorf("failed confirming %s: %w", op, err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound // No rows matched the WHERE clause
	}
	return nil
}

// FindRecord loads one row by id. Soft-deleted rows are only returned with withTrashed.
func FindRecord(ctx context.Context, q Querier, model *domain.Model, recordID int64, withTrashed bool) (*record.Record, error) {
	selectSQL := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", QuoteIdent(model.TableName), QuoteIdent(domain.ColumnID))
	if model.HasSoftDeletes && !withTrashed {
		selectSQL += fmt.Sprintf(" AND %s IS NULL", QuoteIdent(domain.ColumnDeletedAt))
	}
	selectSQL += " LIMIT 1"

	records, err := SelectRecords(ctx, q, model, selectSQL, recordID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	return records[0], nil
}

// SelectRecords runs a SELECT and converts each row using the model's field types.
func SelectRecords(ctx context.Context, q Querier, model *domain.Model, query string, args ...any) ([]*record.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		customLog.Warnf("Storage: Failed SELECT: %v\nSQL: %s", err, query)
		return nil, classify("select", err)
	}
	defer rows.Close()
	return scanRecords(rows, model)
}

// CountRecords runs a COUNT query and returns its single value.
func CountRecords(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	var total int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		customLog.Warnf("Storage: Failed COUNT: %v\nSQL: %s", err, query)
		return 0, classify("count", err)
	}
	return total, nil
}

func scanRecords(rows *sql.Rows, model *domain.Model) ([]*record.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed processing results: %w", err)
	}
	types := make([]domain.FieldType, len(columns))
	for i, col := range columns {
		if col == domain.ColumnID {
			types[i] = domain.TypeInteger
			continue
		}
		if f, ok := model.Field(col); ok {
			types[i] = f.Type
		}
	}

	results := make([]*record.Record, 0)
	for rows.Next() {
		scanArgs := make([]any, len(columns))
		values := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed reading record data: %w", err)
		}

		rec := record.New()
		for i, col := range columns {
			rec.Set(col, record.FromStorage(values[i], types[i]))
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed processing all records: %w", err)
	}
	return results, nil
}

// UniquenessChecker answers uniqueness lookups against live record tables.
type UniquenessChecker struct {
	DB Querier
}

// ValueExists reports whether any row other than excludeID holds value in column.
func (u UniquenessChecker) ValueExists(ctx context.Context, table, column string, value any, excludeID int64) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", QuoteIdent(table), QuoteIdent(column))
	args := []any{value}
	if excludeID > 0 {
		query += fmt.Sprintf(" AND %s != ?", QuoteIdent(domain.ColumnID))
		args = append(args, excludeID)
	}
	query += " LIMIT 1"

	var one int
	err := u.DB.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		customLog.Warnf("Storage: Failed uniqueness check on '%s.%s': %v", table, column, err)
		return false, classify("uniqueness check", err)
	}
	return true, nil
}

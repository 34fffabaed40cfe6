// internal/engine/write.go
package engine

import (
	"context"
	"database/sql"

	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/record"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

// Create validates input and inserts it as a new record.
func (s *Service) Create(ctx context.Context, ident auth.Identity, table string, input map[string]any) (*record.Record, error) {
	model, _, err := s.resolve(ident, table, domain.ActionCreate)
	if err != nil {
		return nil, err
	}
	if !allowed(model.CreateRule, ident, nil) {
		return nil, ErrAccessDenied
	}
	if err := s.validate(ctx, model, input, false, 0); err != nil {
		return nil, err
	}

	row := s.buildRow(model, input, false)
	var id int64
	err = s.tx.RunAtomic(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = storage.InsertRecord(ctx, tx, model.TableName, row)
		return err
	})
	if err != nil {
		customLog.Errorf("Engine: Create on %s failed: %v", model.TableName, err)
		return nil, storageError(model.TableName, err)
	}
	s.invalidate(model)

	created := s.shape(ctx, model, s.reread(ctx, model, id, withID(id, row)))
	s.notify(ctx, model, domain.EventCreated, created.Map())
	return created, nil
}

// withID returns a copy of row keyed by id first.
func withID(id int64, row *record.Record) *record.Record {
	out := record.New()
	out.Set(domain.ColumnID, record.Int(id))
	for _, k := range row.Keys() {
		v, _ := row.Get(k)
		out.Set(k, v)
	}
	return out
}

// reread loads a just-committed row. When that fails the write still stands,
// so fallback is returned in its place.
func (s *Service) reread(ctx context.Context, model *domain.Model, id int64, fallback *record.Record) *record.Record {
	rec, err := storage.FindRecord(ctx, s.db, model, id, true)
	if err != nil {
		customLog.Warnf("Engine: Re-read of %s/%d after commit failed, using written values: %v", model.TableName, id, err)
		return fallback
	}
	return rec
}

// BulkCreate inserts every row or none. It returns the number of rows written.
func (s *Service) BulkCreate(ctx context.Context, ident auth.Identity, table string, rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, ErrMalformedInput
	}
	if len(rows) > MaxBatchSize {
		return 0, ErrBatchTooLarge
	}

	model, _, err := s.resolve(ident, table, domain.ActionCreate)
	if err != nil {
		return 0, err
	}
	if !allowed(model.CreateRule, ident, nil) {
		return 0, ErrAccessDenied
	}

	errs, err := s.validator.ValidateBatch(ctx, model, rows)
	if err != nil {
		return 0, storageError(model.TableName, err)
	}
	if len(errs) > 0 {
		return 0, &ValidationError{Errors: errs}
	}

	built := make([]*record.Record, len(rows))
	for i, input := range rows {
		built[i] = s.buildRow(model, input, false)
	}

	ids := make([]int64, len(built))
	err = s.tx.RunAtomic(ctx, func(tx *sql.Tx) error {
		for i, row := range built {
			id, err := storage.InsertRecord(ctx, tx, model.TableName, row)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		customLog.Errorf("Engine: Bulk create of %d rows on %s failed: %v", len(built), model.TableName, err)
		return 0, storageError(model.TableName, err)
	}
	customLog.Printf("Engine: Bulk created %d rows on %s", len(built), model.TableName)

	s.invalidate(model)
	for i, row := range built {
		s.notify(ctx, model, domain.EventCreated, s.shape(ctx, model, withID(ids[i], row)).Map())
	}
	return len(built), nil
}

// Update writes the declared fields present in input onto a live record.
func (s *Service) Update(ctx context.Context, ident auth.Identity, table string, id int64, input map[string]any) (*record.Record, error) {
	model, _, err := s.resolve(ident, table, domain.ActionUpdate)
	if err != nil {
		return nil, err
	}

	existing, err := storage.FindRecord(ctx, s.db, model, id, false)
	if err != nil {
		return nil, storageError(model.TableName, err)
	}
	if !allowed(model.UpdateRule, ident, existing) {
		return nil, ErrAccessDenied
	}
	if err := s.validate(ctx, model, input, true, id); err != nil {
		return nil, err
	}

	row := s.buildRow(model, input, true)
	err = s.tx.RunAtomic(ctx, func(tx *sql.Tx) error {
		return storage.UpdateRecord(ctx, tx, model.TableName, id, row)
	})
	if err != nil {
		customLog.Errorf("Engine: Update of %s/%d failed: %v", model.TableName, id, err)
		return nil, storageError(model.TableName, err)
	}
	s.invalidate(model)

	merged := existing.Clone()
	for _, k := range row.Keys() {
		v, _ := row.Get(k)
		merged.Set(k, v)
	}
	updated := s.shape(ctx, model, s.reread(ctx, model, id, merged))
	s.notify(ctx, model, domain.EventUpdated, updated.Map())
	return updated, nil
}

func isTrashed(rec *record.Record) bool {
	v, ok := rec.Get(domain.ColumnDeletedAt)
	return ok && !record.IsNull(v) && v.String() != ""
}

// Delete soft-deletes the record, or purges it when force is set or the model
// has no soft deletes. Deleting an already trashed record changes nothing.
func (s *Service) Delete(ctx context.Context, ident auth.Identity, table string, id int64, force bool) error {
	model, _, err := s.resolve(ident, table, domain.ActionDelete)
	if err != nil {
		return err
	}

	existing, err := storage.FindRecord(ctx, s.db, model, id, true)
	if err != nil {
		return storageError(model.TableName, err)
	}
	if !allowed(model.DeleteRule, ident, existing) {
		return ErrAccessDenied
	}

	soft := model.HasSoftDeletes && !force
	if soft && isTrashed(existing) {
		return nil
	}

	err = s.tx.RunAtomic(ctx, func(tx *sql.Tx) error {
		if soft {
			return storage.SoftDeleteRecord(ctx, tx, model.TableName, id, s.timestamp(), model.HasTimestamps)
		}
		return storage.DeleteRecord(ctx, tx, model.TableName, id)
	})
	if err != nil {
		customLog.Errorf("Engine: Delete of %s/%d failed: %v", model.TableName, id, err)
		return storageError(model.TableName, err)
	}

	s.invalidate(model)
	s.notify(ctx, model, domain.EventDeleted, s.shape(ctx, model, existing).Map())
	return nil
}

// Restore clears deleted_at on a trashed record.
func (s *Service) Restore(ctx context.Context, ident auth.Identity, table string, id int64) (*record.Record, error) {
	model, _, err := s.resolve(ident, table, domain.ActionDelete)
	if err != nil {
		return nil, err
	}
	if !model.HasSoftDeletes {
		return nil, ErrSoftDeleteUnsupported
	}

	existing, err := storage.FindRecord(ctx, s.db, model, id, true)
	if err != nil {
		return nil, storageError(model.TableName, err)
	}
	if !allowed(model.DeleteRule, ident, existing) {
		return nil, ErrAccessDenied
	}

	trashed := isTrashed(existing)
	if !trashed {
		return s.shape(ctx, model, existing), nil
	}

	at := s.timestamp()
	err = s.tx.RunAtomic(ctx, func(tx *sql.Tx) error {
		return storage.RestoreRecord(ctx, tx, model.TableName, id, at, model.HasTimestamps)
	})
	if err != nil {
		customLog.Errorf("Engine: Restore of %s/%d failed: %v", model.TableName, id, err)
		return nil, storageError(model.TableName, err)
	}
	s.invalidate(model)

	fallback := existing.Clone()
	fallback.Set(domain.ColumnDeletedAt, record.Null{})
	if model.HasTimestamps {
		fallback.Set(domain.ColumnUpdatedAt, record.String(at))
	}
	restored := s.shape(ctx, model, s.reread(ctx, model, id, fallback))
	s.notify(ctx, model, domain.EventRestored, restored.Map())
	return restored, nil
}

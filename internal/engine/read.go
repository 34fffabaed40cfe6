// internal/engine/read.go
package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Annany2002/nebula-dataapi/internal/access"
	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/core"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/query"
	"github.com/Annany2002/nebula-dataapi/internal/record"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

// Meta is the pagination block of a list response.
type Meta struct {
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
}

// ListResult is one page of records.
type ListResult struct {
	Data []*record.Record `json:"data"`
	Meta Meta             `json:"meta"`
}

// List returns a page of records matching the filters, search and sort in params.
func (s *Service) List(ctx context.Context, ident auth.Identity, table string, params url.Values) (*ListResult, error) {
	model, catalog, err := s.resolve(ident, table, domain.ActionList)
	if err != nil {
		return nil, err
	}
	if !allowed(model.ListRule, ident, nil) {
		return nil, ErrAccessDenied
	}

	exists, err := storage.TableExists(ctx, s.db, model.TableName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableMissing, model.TableName)
	}

	opts := core.ParseListQueryOptions(params)
	var owner *query.Ownership
	if field, ok := access.OwnershipField(model.ListRule); ok && !ident.Anonymous() {
		owner = &query.Ownership{Field: field, Value: ident.UserID}
	}
	plan := query.Build(model, opts, owner)

	countSQL, countArgs := plan.CountSQL()
	total, err := storage.CountRecords(ctx, s.db, countSQL, countArgs...)
	if err != nil {
		return nil, storageError(model.TableName, err)
	}
	selectSQL, selectArgs := plan.SelectSQL()
	rows, err := storage.SelectRecords(ctx, s.db, model, selectSQL, selectArgs...)
	if err != nil {
		return nil, storageError(model.TableName, err)
	}

	// rules mixing field checks with other terms cannot be pushed into SQL
	if owner == nil && access.DependsOnRecord(model.ListRule) {
		kept := rows[:0]
		for _, rec := range rows {
			if allowed(model.ListRule, ident, rec) {
				kept = append(kept, rec)
			}
		}
		rows = kept
	}

	relations := query.Resolve(catalog, model)
	if err := relations.Load(ctx, s.db, relations.Keys(opts.Include), rows); err != nil {
		return nil, storageError(model.TableName, err)
	}
	for _, rec := range rows {
		s.shape(ctx, model, rec)
	}

	return &ListResult{
		Data: rows,
		Meta: Meta{
			CurrentPage: opts.Page,
			LastPage:    query.LastPage(total, opts.PerPage),
			PerPage:     opts.PerPage,
			Total:       total,
		},
	}, nil
}

// Get returns one live record with the requested relations loaded.
func (s *Service) Get(ctx context.Context, ident auth.Identity, table string, id int64, include []string) (*record.Record, error) {
	model, catalog, err := s.resolve(ident, table, domain.ActionView)
	if err != nil {
		return nil, err
	}

	rec, err := storage.FindRecord(ctx, s.db, model, id, false)
	if err != nil {
		return nil, storageError(model.TableName, err)
	}
	if !allowed(model.ViewRule, ident, rec) {
		return nil, ErrAccessDenied
	}

	relations := query.Resolve(catalog, model)
	if err := relations.Load(ctx, s.db, relations.Keys(include), []*record.Record{rec}); err != nil {
		return nil, storageError(model.TableName, err)
	}
	return s.shape(ctx, model, rec), nil
}

// ModelInfo describes a model in the schema response.
type ModelInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	TableName      string `json:"table_name"`
	Description    string `json:"description"`
	HasTimestamps  bool   `json:"has_timestamps"`
	HasSoftDeletes bool   `json:"has_soft_deletes"`
}

// Endpoint is one entry of the generated endpoint catalogue.
type Endpoint struct {
	Name        string `json:"name"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Schema is the self-description of a model's API.
type Schema struct {
	Model     ModelInfo          `json:"model"`
	Fields    []domain.Field     `json:"fields"`
	Relations []query.Capability `json:"relations"`
	Endpoints []Endpoint         `json:"endpoints"`
}

// Schema describes the fields, relations and endpoints of a model.
func (s *Service) Schema(_ context.Context, ident auth.Identity, table string) (*Schema, error) {
	model, catalog, err := s.resolve(ident, table, domain.ActionList)
	if err != nil {
		return nil, err
	}
	if !allowed(model.ListRule, ident, nil) {
		return nil, ErrAccessDenied
	}

	base := "/api/v1/data/" + model.TableName
	endpoints := []Endpoint{
		{"list", "GET", base, "List records with pagination, search, filters and includes"},
		{"create", "POST", base, "Create a new record"},
		{"bulk", "POST", base + "/bulk", "Create up to 1000 records atomically"},
		{"show", "GET", base + "/{id}", "Get a single record by ID"},
		{"update", "PUT", base + "/{id}", "Update a record by ID"},
		{"delete", "DELETE", base + "/{id}", "Delete a record by ID, ?force=1 purges"},
	}
	if model.HasSoftDeletes {
		endpoints = append(endpoints, Endpoint{"restore", "POST", base + "/{id}/restore", "Restore a soft-deleted record"})
	}

	return &Schema{
		Model: ModelInfo{
			Name:           model.Name,
			DisplayName:    model.DisplayName,
			TableName:      model.TableName,
			Description:    model.Description,
			HasTimestamps:  model.HasTimestamps,
			HasSoftDeletes: model.HasSoftDeletes,
		},
		Fields:    model.Fields,
		Relations: query.Resolve(catalog, model).Capabilities(),
		Endpoints: endpoints,
	}, nil
}

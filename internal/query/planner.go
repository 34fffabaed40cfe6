// Package query turns list parameters and relation metadata into bounded SQL.
package query

import (
	"fmt"
	"strings"

	"github.com/Annany2002/nebula-dataapi/internal/core"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

var customLog = logger.NewLogger()

// Ownership narrows a query to rows whose Field equals the caller's identity.
type Ownership struct {
	Field string
	Value string
}

// Plan is a parameterised list query over one model's table.
type Plan struct {
	table  string
	where  []string
	args   []any
	order  []string
	limit  int
	offset int
}

// sortableSystemColumns returns the system columns a model can always be sorted by.
func sortableSystemColumns(model *domain.Model) []string {
	cols := []string{domain.ColumnID}
	if model.HasTimestamps {
		cols = append(cols, domain.ColumnCreatedAt, domain.ColumnUpdatedAt)
	}
	return cols
}

// Build plans a list query. Filters on fields that are not filterable and sorts on
// fields that are not sortable are dropped silently.
func Build(model *domain.Model, opts *core.ListQueryOptions, owner *Ownership) *Plan {
	p := &Plan{
		table:  model.TableName,
		limit:  opts.PerPage,
		offset: opts.Offset(),
	}

	if model.HasSoftDeletes {
		p.where = append(p.where, storage.QuoteIdent(domain.ColumnDeletedAt)+" IS NULL")
	}

	if owner != nil && owner.Field != "" {
		p.where = append(p.where, storage.QuoteIdent(owner.Field)+" = ?")
		p.args = append(p.args, owner.Value)
	}

	for _, key := range opts.FilterKeys() {
		f, ok := model.Field(key)
		if !ok || !f.IsFilterable {
			continue
		}
		p.where = append(p.where, storage.QuoteIdent(f.Name)+" = ?")
		p.args = append(p.args, core.Cast(opts.Filters[key], f).Storage())
	}

	if opts.Search != "" {
		term := escapeLike(opts.Search) + "%"
		var ors []string
		for _, f := range model.Fields {
			if !f.IsSearchable {
				continue
			}
			ors = append(ors, storage.QuoteIdent(f.Name)+` LIKE ? ESCAPE '\'`)
			p.args = append(p.args, term)
		}
		if len(ors) > 0 {
			p.where = append(p.where, "("+strings.Join(ors, " OR ")+")")
		}
	}

	p.order = orderBy(model, opts)
	return p
}

func orderBy(model *domain.Model, opts *core.ListQueryOptions) []string {
	field, desc := domain.ColumnID, true
	if opts.SortField != "" && isSortable(model, opts.SortField) {
		field, desc = opts.SortField, opts.SortDesc
	} else if opts.SortField != "" {
		customLog.Debugf("Query: ignoring sort on '%s' for %s", opts.SortField, model.TableName)
	}

	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	order := []string{storage.QuoteIdent(field) + " " + dir}
	if field != domain.ColumnID {
		order = append(order, storage.QuoteIdent(domain.ColumnID)+" "+dir)
	}
	return order
}

func isSortable(model *domain.Model, name string) bool {
	for _, col := range sortableSystemColumns(model) {
		if col == name {
			return true
		}
	}
	f, ok := model.Field(name)
	return ok && f.IsSortable
}

// escapeLike escapes LIKE wildcards so the term only matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (p *Plan) whereClause() string {
	if len(p.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.where, " AND ")
}

// SelectSQL returns the paged SELECT and its arguments.
func (p *Plan) SelectSQL() (string, []any) {
	q := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s LIMIT %d OFFSET %d",
		storage.QuoteIdent(p.table), p.whereClause(), strings.Join(p.order, ", "), p.limit, p.offset)
	return q, append([]any(nil), p.args...)
}

// CountSQL returns the COUNT over the same filters, ignoring paging.
func (p *Plan) CountSQL() (string, []any) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", storage.QuoteIdent(p.table), p.whereClause())
	return q, append([]any(nil), p.args...)
}

// LastPage returns the page count for total rows, never less than one.
func LastPage(total int64, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

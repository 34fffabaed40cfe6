// internal/query/relations.go
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/record"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

// ModelSource resolves relation targets. The registry catalog implements it.
type ModelSource interface {
	ByID(id uint) (*domain.Model, bool)
}

// Relation is one resolvable relationship of a source model.
type Relation struct {
	Name       string
	Key        string
	Type       domain.RelationType
	Target     *domain.Model
	ForeignKey string
	LocalKey   string
}

// Capability describes a relation for the schema endpoint.
type Capability struct {
	Name       string              `json:"name"`
	Key        string              `json:"key"`
	Type       domain.RelationType `json:"type"`
	Target     string              `json:"target"`
	ForeignKey string              `json:"foreign_key"`
	LocalKey   string              `json:"local_key"`
}

// RelationContext holds the relations of one model for the lifetime of a request.
type RelationContext struct {
	source    *domain.Model
	relations []*Relation
	byName    map[string]*Relation
	byKey     map[string]*Relation
}

// RelationKey namespaces a relation name by its source table.
func RelationKey(sourceTable, name string) string {
	return sourceTable + "__" + name
}

// ForeignKeyFor derives the conventional foreign key column pointing at table.
func ForeignKeyFor(table string) string {
	return inflection.Singular(table) + "_id"
}

// Resolve builds the relation context for model. Relations whose target is
// missing or inactive are skipped.
func Resolve(models ModelSource, model *domain.Model) *RelationContext {
	rc := &RelationContext{
		source: model,
		byName: make(map[string]*Relation),
		byKey:  make(map[string]*Relation),
	}

	for _, rel := range model.Relationships {
		target, ok := models.ByID(rel.RelatedModelID)
		if !ok {
			customLog.Debugf("Query: skipping relation %s.%s, target %d unavailable", model.TableName, rel.Name, rel.RelatedModelID)
			continue
		}

		r := &Relation{
			Name:       rel.Name,
			Key:        RelationKey(model.TableName, rel.Name),
			Type:       rel.Type,
			Target:     target,
			ForeignKey: rel.ForeignKey,
			LocalKey:   rel.LocalKey,
		}
		if r.LocalKey == "" {
			r.LocalKey = domain.ColumnID
		}
		switch rel.Type {
		case domain.HasMany, domain.HasOne:
			if r.ForeignKey == "" {
				r.ForeignKey = ForeignKeyFor(model.TableName)
			}
		case domain.BelongsTo:
			if r.ForeignKey == "" {
				r.ForeignKey = ForeignKeyFor(target.TableName)
			}
		default:
			continue
		}

		rc.relations = append(rc.relations, r)
		rc.byName[r.Name] = r
		rc.byKey[r.Key] = r
	}
	return rc
}

// Keys maps requested relation names to namespaced keys, dropping unknown names.
func (rc *RelationContext) Keys(include []string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, name := range include {
		r, ok := rc.byName[strings.TrimSpace(name)]
		if !ok || seen[r.Key] {
			continue
		}
		seen[r.Key] = true
		keys = append(keys, r.Key)
	}
	return keys
}

// Capabilities lists the resolvable relations.
func (rc *RelationContext) Capabilities() []Capability {
	caps := make([]Capability, 0, len(rc.relations))
	for _, r := range rc.relations {
		caps = append(caps, Capability{
			Name:       r.Name,
			Key:        r.Key,
			Type:       r.Type,
			Target:     r.Target.TableName,
			ForeignKey: r.ForeignKey,
			LocalKey:   r.LocalKey,
		})
	}
	return caps
}

// Load eager-loads the relations named by keys onto records with one query per relation.
func (rc *RelationContext) Load(ctx context.Context, q storage.Querier, keys []string, records []*record.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, key := range keys {
		r, ok := rc.byKey[key]
		if !ok {
			continue
		}
		if err := rc.load(ctx, q, r, records); err != nil {
			return fmt.Errorf("failed to load relation %s: %w", r.Name, err)
		}
	}
	return nil
}

func (rc *RelationContext) load(ctx context.Context, q storage.Querier, r *Relation, records []*record.Record) error {
	// column on the parent records whose value we look up, and the matching column on the target
	parentCol, targetCol := r.LocalKey, r.ForeignKey
	if r.Type == domain.BelongsTo {
		parentCol, targetCol = r.ForeignKey, r.LocalKey
	}

	var args []any
	seen := make(map[string]bool)
	for _, rec := range records {
		v, ok := rec.Get(parentCol)
		if !ok || record.IsNull(v) || seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		args = append(args, v.Storage())
	}

	related := map[string][]*record.Record{}
	if len(args) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		selectSQL := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)",
			storage.QuoteIdent(r.Target.TableName), storage.QuoteIdent(targetCol), placeholders)
		if r.Target.HasSoftDeletes {
			selectSQL += fmt.Sprintf(" AND %s IS NULL", storage.QuoteIdent(domain.ColumnDeletedAt))
		}
		selectSQL += fmt.Sprintf(" ORDER BY %s", storage.QuoteIdent(domain.ColumnID))

		rows, err := storage.SelectRecords(ctx, q, r.Target, selectSQL, args...)
		if err != nil {
			return err
		}
		for _, row := range rows {
			v, _ := row.Get(targetCol)
			StripHidden(r.Target, row)
			related[v.String()] = append(related[v.String()], row)
		}
	}

	for _, rec := range records {
		var group []*record.Record
		if v, ok := rec.Get(parentCol); ok && !record.IsNull(v) {
			group = related[v.String()]
		}
		if r.Type == domain.HasMany {
			rec.AttachMany(r.Name, group)
			continue
		}
		var one *record.Record
		if len(group) > 0 {
			one = group[0]
		}
		rec.AttachOne(r.Name, one)
	}
	return nil
}

// StripHidden removes the model's hidden fields from rec.
func StripHidden(model *domain.Model, rec *record.Record) {
	for _, f := range model.Fields {
		if f.IsHidden {
			rec.Delete(f.Name)
		}
	}
}

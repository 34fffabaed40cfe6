// internal/registry/loader.go
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/Annany2002/nebula-dataapi/internal/core"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

// ErrInvalidModel is returned when a model document fails validation.
var ErrInvalidModel = errors.New("invalid model definition")

// Document is the YAML model file format.
type Document struct {
	Models []ModelDoc `yaml:"models"`
}

// ModelDoc declares one model. Pointer flags default to true when omitted.
type ModelDoc struct {
	Name           string            `yaml:"name"`
	TableName      string            `yaml:"table_name"`
	DisplayName    string            `yaml:"display_name"`
	Description    string            `yaml:"description"`
	IsActive       *bool             `yaml:"is_active"`
	HasTimestamps  *bool             `yaml:"has_timestamps"`
	HasSoftDeletes bool              `yaml:"has_soft_deletes"`
	GenerateAPI    *bool             `yaml:"generate_api"`
	Rules          RulesDoc          `yaml:"rules"`
	Fields         []FieldDoc        `yaml:"fields"`
	Relationships  []RelationshipDoc `yaml:"relationships"`
	Webhooks       []WebhookDoc      `yaml:"webhooks"`
}

// RulesDoc carries the five access rules of a model.
type RulesDoc struct {
	List   string `yaml:"list"`
	View   string `yaml:"view"`
	Create string `yaml:"create"`
	Update string `yaml:"update"`
	Delete string `yaml:"delete"`
}

type FieldDoc struct {
	Name            string   `yaml:"name"`
	DisplayName     string   `yaml:"display_name"`
	Type            string   `yaml:"type"`
	Description     string   `yaml:"description"`
	Required        bool     `yaml:"required"`
	Unique          bool     `yaml:"unique"`
	Searchable      bool     `yaml:"searchable"`
	Filterable      bool     `yaml:"filterable"`
	Sortable        bool     `yaml:"sortable"`
	Hidden          bool     `yaml:"hidden"`
	Default         *string  `yaml:"default"`
	Options         []string `yaml:"options"`
	ValidationRules string   `yaml:"validation_rules"`
}

type RelationshipDoc struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	ForeignKey string `yaml:"foreign_key"`
	LocalKey   string `yaml:"local_key"`
}

type WebhookDoc struct {
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url"`
	Secret   string            `yaml:"secret"`
	Events   []string          `yaml:"events"`
	Headers  map[string]string `yaml:"headers"`
	IsActive *bool             `yaml:"is_active"`
}

func boolOr(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}

// ParseDocument decodes a YAML model document.
func ParseDocument(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return &doc, nil
}

// LoadFile parses the YAML file at path and applies it.
func (r *Registry) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	doc, err := ParseDocument(f)
	if err != nil {
		return err
	}
	return r.Apply(ctx, doc)
}

// Apply upserts the models in doc, provisions their tables and reloads the snapshot.
// Fields and relationships of each listed model are replaced; webhooks are matched
// by name so delivery counters survive re-application.
func (r *Registry) Apply(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		saved := make(map[string]*domain.Model, len(doc.Models))
		for i := range doc.Models {
			m, err := upsertModel(tx, &doc.Models[i])
			if err != nil {
				return err
			}
			saved[strings.ToLower(m.Name)] = m
			saved[strings.ToLower(m.TableName)] = m
		}

		for i := range doc.Models {
			md := &doc.Models[i]
			if err := replaceRelationships(tx, saved[strings.ToLower(md.Name)], md.Relationships, saved); err != nil {
				return err
			}
		}

		for _, m := range uniqueModels(saved) {
			if err := storage.EnsureTable(ctx, tx.Statement.ConnPool, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		customLog.Warnf("Registry: Failed to apply model document: %v", err)
		return err
	}

	customLog.Printf("Registry: Applied %d model(s).", len(doc.Models))
	return r.Reload(ctx)
}

func uniqueModels(saved map[string]*domain.Model) []*domain.Model {
	seen := make(map[uint]bool)
	var out []*domain.Model
	for _, m := range saved {
		if !seen[m.ID] {
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	return out
}

func upsertModel(tx *gorm.DB, md *ModelDoc) (*domain.Model, error) {
	var m domain.Model
	err := tx.Where("name = ?", md.Name).First(&m).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up model %s: %w", md.Name, err)
	}

	m.Name = md.Name
	m.TableName = md.TableName
	if m.TableName == "" {
		m.TableName = md.Name
	}
	m.DisplayName = md.DisplayName
	m.Description = md.Description
	m.IsActive = boolOr(md.IsActive, true)
	m.HasTimestamps = boolOr(md.HasTimestamps, true)
	m.HasSoftDeletes = md.HasSoftDeletes
	m.GenerateAPI = boolOr(md.GenerateAPI, true)
	m.ListRule = md.Rules.List
	m.ViewRule = md.Rules.View
	m.CreateRule = md.Rules.Create
	m.UpdateRule = md.Rules.Update
	m.DeleteRule = md.Rules.Delete

	if err := tx.Omit("Fields", "Relationships", "Webhooks").Save(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to save model %s: %w", md.Name, err)
	}

	if err := tx.Where("model_id = ?", m.ID).Delete(&domain.Field{}).Error; err != nil {
		return nil, fmt.Errorf("failed to clear fields of %s: %w", md.Name, err)
	}
	m.Fields = make([]domain.Field, 0, len(md.Fields))
	for i, fd := range md.Fields {
		ft, _ := core.NormalizeAndValidateType(fd.Type)
		m.Fields = append(m.Fields, domain.Field{
			ModelID:         m.ID,
			Name:            fd.Name,
			DisplayName:     fd.DisplayName,
			Type:            ft,
			Description:     fd.Description,
			IsRequired:      fd.Required,
			IsUnique:        fd.Unique,
			IsSearchable:    fd.Searchable,
			IsFilterable:    fd.Filterable,
			IsSortable:      fd.Sortable,
			IsHidden:        fd.Hidden,
			DefaultValue:    fd.Default,
			Options:         fd.Options,
			ValidationRules: fd.ValidationRules,
			SortOrder:       i,
		})
	}
	if len(m.Fields) > 0 {
		if err := tx.Create(&m.Fields).Error; err != nil {
			return nil, fmt.Errorf("failed to save fields of %s: %w", md.Name, err)
		}
	}

	if err := upsertWebhooks(tx, &m, md.Webhooks); err != nil {
		return nil, err
	}
	return &m, nil
}

func upsertWebhooks(tx *gorm.DB, m *domain.Model, docs []WebhookDoc) error {
	for _, wd := range docs {
		var w domain.Webhook
		err := tx.Where("model_id = ? AND name = ?", m.ID, wd.Name).First(&w).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up webhook %s: %w", wd.Name, err)
		}
		w.ModelID = m.ID
		w.Name = wd.Name
		w.URL = wd.URL
		w.Secret = wd.Secret
		w.Events = wd.Events
		w.Headers = wd.Headers
		w.IsActive = boolOr(wd.IsActive, true)
		if w.IsActive && w.ID != 0 && w.FailureCount >= 10 {
			// re-declaring an auto-disabled webhook as active resets it
			w.FailureCount = 0
		}
		if err := tx.Save(&w).Error; err != nil {
			return fmt.Errorf("failed to save webhook %s: %w", wd.Name, err)
		}
	}
	return nil
}

func replaceRelationships(tx *gorm.DB, m *domain.Model, docs []RelationshipDoc, saved map[string]*domain.Model) error {
	if err := tx.Where("model_id = ?", m.ID).Delete(&domain.Relationship{}).Error; err != nil {
		return fmt.Errorf("failed to clear relationships of %s: %w", m.Name, err)
	}

	for _, rd := range docs {
		target, ok := saved[strings.ToLower(rd.Model)]
		if !ok {
			var existing domain.Model
			err := tx.Where("name = ? OR table_name = ?", rd.Model, rd.Model).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: relationship %s.%s targets unknown model %q", ErrInvalidModel, m.Name, rd.Name, rd.Model)
			}
			if err != nil {
				return fmt.Errorf("failed to look up model %s: %w", rd.Model, err)
			}
			target = &existing
		}

		rel := domain.Relationship{
			ModelID:        m.ID,
			RelatedModelID: target.ID,
			Name:           rd.Name,
			Type:           normalizeRelationType(rd.Type),
			ForeignKey:     rd.ForeignKey,
			LocalKey:       rd.LocalKey,
		}
		if err := tx.Create(&rel).Error; err != nil {
			return fmt.Errorf("failed to save relationship %s.%s: %w", m.Name, rd.Name, err)
		}
	}
	return nil
}

func normalizeRelationType(s string) domain.RelationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hasmany", "has_many":
		return domain.HasMany
	case "hasone", "has_one":
		return domain.HasOne
	case "belongsto", "belongs_to":
		return domain.BelongsTo
	}
	return domain.RelationType(s)
}

// Validate checks names, types and relationship kinds before anything is written.
func (d *Document) Validate() error {
	var problems []string
	seenModels := make(map[string]bool)

	for _, md := range d.Models {
		table := md.TableName
		if table == "" {
			table = md.Name
		}
		if !core.IsValidIdentifier(md.Name) || !core.IsValidIdentifier(table) {
			problems = append(problems, fmt.Sprintf("model %q: name and table_name must be identifiers", md.Name))
			continue
		}
		if seenModels[strings.ToLower(md.Name)] {
			problems = append(problems, fmt.Sprintf("model %q declared twice", md.Name))
		}
		seenModels[strings.ToLower(md.Name)] = true

		seenFields := make(map[string]bool)
		for _, fd := range md.Fields {
			switch {
			case !core.IsValidIdentifier(fd.Name):
				problems = append(problems, fmt.Sprintf("%s: field %q is not an identifier", md.Name, fd.Name))
			case core.IsSystemColumn(strings.ToLower(fd.Name)):
				problems = append(problems, fmt.Sprintf("%s: field %q is a system column", md.Name, fd.Name))
			case seenFields[strings.ToLower(fd.Name)]:
				problems = append(problems, fmt.Sprintf("%s: field %q declared twice", md.Name, fd.Name))
			}
			seenFields[strings.ToLower(fd.Name)] = true

			ft, ok := core.NormalizeAndValidateType(fd.Type)
			if !ok {
				problems = append(problems, fmt.Sprintf("%s.%s: unsupported type %q", md.Name, fd.Name, fd.Type))
			} else if ft.IsEnum() && len(fd.Options) == 0 {
				problems = append(problems, fmt.Sprintf("%s.%s: %s fields need options", md.Name, fd.Name, ft))
			}
		}

		seenRelations := make(map[string]bool)
		for _, rd := range md.Relationships {
			if !core.IsValidIdentifier(rd.Name) || seenRelations[rd.Name] {
				problems = append(problems, fmt.Sprintf("%s: relationship %q is invalid or duplicated", md.Name, rd.Name))
			}
			seenRelations[rd.Name] = true
			switch normalizeRelationType(rd.Type) {
			case domain.HasMany, domain.HasOne, domain.BelongsTo:
			default:
				problems = append(problems, fmt.Sprintf("%s.%s: unsupported relationship type %q", md.Name, rd.Name, rd.Type))
			}
			for _, key := range []string{rd.ForeignKey, rd.LocalKey} {
				if key != "" && !core.IsValidIdentifier(key) {
					problems = append(problems, fmt.Sprintf("%s.%s: key %q is not an identifier", md.Name, rd.Name, key))
				}
			}
		}

		for _, wd := range md.Webhooks {
			if wd.Name == "" || wd.URL == "" {
				problems = append(problems, fmt.Sprintf("%s: webhooks need a name and url", md.Name))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidModel, strings.Join(problems, "; "))
	}
	return nil
}

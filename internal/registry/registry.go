// Package registry holds the declared models and serves immutable snapshots of them.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
)

var customLog = logger.NewLogger()

// Catalog is an immutable view of every model, with fields and relationships loaded.
// Models handed out by a Catalog must not be modified.
type Catalog struct {
	models []*domain.Model
	byID   map[uint]*domain.Model
	byKey  map[string]*domain.Model
}

func newCatalog(models []domain.Model) *Catalog {
	c := &Catalog{
		byID:  make(map[uint]*domain.Model, len(models)),
		byKey: make(map[string]*domain.Model, len(models)*2),
	}
	for i := range models {
		m := &models[i]
		sort.SliceStable(m.Fields, func(a, b int) bool { return m.Fields[a].SortOrder < m.Fields[b].SortOrder })
		c.models = append(c.models, m)
		c.byID[m.ID] = m
		if m.IsActive && m.GenerateAPI {
			c.byKey[strings.ToLower(m.Name)] = m
			c.byKey[strings.ToLower(m.TableName)] = m
		}
	}
	return c
}

// Lookup finds an active, API-enabled model by name or table name.
func (c *Catalog) Lookup(name string) (*domain.Model, bool) {
	m, ok := c.byKey[strings.ToLower(name)]
	return m, ok
}

// ByID returns an active model by id. Relation targets resolve through it.
func (c *Catalog) ByID(id uint) (*domain.Model, bool) {
	m, ok := c.byID[id]
	if !ok || !m.IsActive {
		return nil, false
	}
	return m, true
}

// Models returns every model in the snapshot, including inactive ones.
func (c *Catalog) Models() []*domain.Model {
	return c.models
}

// Registry persists model metadata with gorm and publishes snapshots of it.
type Registry struct {
	db      *gorm.DB
	current atomic.Pointer[Catalog]
}

// New returns a registry with an empty snapshot. Call Migrate and Reload before serving.
func New(db *gorm.DB) *Registry {
	r := &Registry{db: db}
	r.current.Store(newCatalog(nil))
	return r
}

// DB exposes the metadata handle for collaborators that share it.
func (r *Registry) DB() *gorm.DB {
	return r.db
}

// Migrate creates or updates the metadata tables.
func (r *Registry) Migrate(ctx context.Context) error {
	err := r.db.WithContext(ctx).AutoMigrate(
		&domain.Model{},
		&domain.Field{},
		&domain.Relationship{},
		&domain.Webhook{},
		&domain.APIKey{},
		&domain.MediaItem{},
	)
	if err != nil {
		customLog.Warnf("Registry: Failed to migrate metadata tables: %v", err)
		return fmt.Errorf("failed to migrate metadata: %w", err)
	}
	customLog.Println("Registry: Metadata tables ensured.")
	return nil
}

// Reload reads every model from the database and swaps in a new snapshot.
// Readers holding the previous snapshot keep using it undisturbed.
func (r *Registry) Reload(ctx context.Context) error {
	var models []domain.Model
	err := r.db.WithContext(ctx).
		Preload("Fields").
		Preload("Relationships").
		Order("id").
		Find(&models).Error
	if err != nil {
		customLog.Warnf("Registry: Failed to load models: %v", err)
		return fmt.Errorf("failed to load models: %w", err)
	}

	r.current.Store(newCatalog(models))
	customLog.Printf("Registry: Loaded %d model(s).", len(models))
	return nil
}

// Catalog returns the current snapshot.
func (r *Registry) Catalog() *Catalog {
	return r.current.Load()
}

// Lookup is shorthand for Catalog().Lookup.
func (r *Registry) Lookup(name string) (*domain.Model, bool) {
	return r.Catalog().Lookup(name)
}

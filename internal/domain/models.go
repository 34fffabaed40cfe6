// internal/domain/models.go
package domain

import (
	"strings"
	"time"
)

// Model describes one operator-declared table and the rules guarding it.
type Model struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Name           string `gorm:"uniqueIndex;not null" json:"name"`
	TableName      string `gorm:"column:table_name;uniqueIndex;not null" json:"table_name"`
	DisplayName    string `json:"display_name"`
	Description    string `json:"description"`
	IsActive       bool   `gorm:"not null" json:"is_active"`
	HasTimestamps  bool   `gorm:"not null" json:"has_timestamps"`
	HasSoftDeletes bool   `gorm:"not null" json:"has_soft_deletes"`
	GenerateAPI    bool   `gorm:"column:generate_api;not null" json:"generate_api"`

	ListRule   string `json:"list_rule"`
	ViewRule   string `json:"view_rule"`
	CreateRule string `json:"create_rule"`
	UpdateRule string `json:"update_rule"`
	DeleteRule string `json:"delete_rule"`

	Fields        []Field        `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"fields"`
	Relationships []Relationship `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"relationships"`
	Webhooks      []Webhook      `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Field returns the declared field with the given name.
func (m *Model) Field(name string) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// RuleFor returns the access rule attached to an action.
func (m *Model) RuleFor(action Action) string {
	switch action {
	case ActionList:
		return m.ListRule
	case ActionView:
		return m.ViewRule
	case ActionCreate:
		return m.CreateRule
	case ActionUpdate:
		return m.UpdateRule
	case ActionDelete:
		return m.DeleteRule
	}
	return "false"
}

// Field is one typed column declaration of a Model.
type Field struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	ModelID         uint      `gorm:"uniqueIndex:idx_field_model_name;not null" json:"-"`
	Name            string    `gorm:"uniqueIndex:idx_field_model_name;not null" json:"name"`
	DisplayName     string    `json:"display_name"`
	Type            FieldType `gorm:"not null" json:"type"`
	Description     string    `json:"description,omitempty"`
	IsRequired      bool      `json:"is_required"`
	IsUnique        bool      `json:"is_unique"`
	IsSearchable    bool      `json:"is_searchable"`
	IsFilterable    bool      `json:"is_filterable"`
	IsSortable      bool      `json:"is_sortable"`
	IsHidden        bool      `json:"is_hidden"`
	DefaultValue    *string   `json:"default_value"`
	Options         []string  `gorm:"serializer:json" json:"options,omitempty"`
	ValidationRules string    `json:"validation_rules,omitempty"`
	SortOrder       int       `json:"-"`
}

// RelationType enumerates the supported relationship kinds.
type RelationType string

const (
	HasMany   RelationType = "hasMany"
	HasOne    RelationType = "hasOne"
	BelongsTo RelationType = "belongsTo"
)

// Relationship links a source Model to a related Model.
type Relationship struct {
	ID             uint         `gorm:"primaryKey" json:"-"`
	ModelID        uint         `gorm:"uniqueIndex:idx_relation_model_name;not null" json:"-"`
	RelatedModelID uint         `gorm:"not null" json:"-"`
	Name           string       `gorm:"uniqueIndex:idx_relation_model_name;not null" json:"name"`
	Type           RelationType `gorm:"not null" json:"type"`
	ForeignKey     string       `json:"foreign_key,omitempty"`
	LocalKey       string       `json:"local_key,omitempty"`
}

// Webhook is a subscriber notified on record mutations of its Model.
type Webhook struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	ModelID         uint              `gorm:"index;not null" json:"model_id"`
	Name            string            `json:"name"`
	URL             string            `gorm:"column:url;not null" json:"url"`
	Secret          string            `json:"-"`
	Events          []string          `gorm:"serializer:json" json:"events"`
	Headers         map[string]string `gorm:"serializer:json" json:"headers,omitempty"`
	IsActive        bool              `gorm:"not null" json:"is_active"`
	FailureCount    int               `gorm:"not null" json:"failure_count"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Subscribes reports whether the webhook listens for event.
func (w *Webhook) Subscribes(event string) bool {
	for _, e := range w.Events {
		if strings.EqualFold(e, event) {
			return true
		}
	}
	return false
}

// APIKey is a hashed credential scoped to actions and tables.
type APIKey struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"not null" json:"name"`
	KeyHash       string     `gorm:"uniqueIndex;not null" json:"-"`
	UserID        string     `gorm:"index;not null" json:"user_id"`
	Permissions   []string   `gorm:"serializer:json" json:"permissions"`
	AllowedTables []string   `gorm:"serializer:json" json:"allowed_tables"`
	IsActive      bool       `gorm:"not null" json:"is_active"`
	ExpiresAt     *time.Time `json:"expires_at"`
	LastUsedAt    *time.Time `json:"last_used_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (APIKey) TableName() string { return "api_keys" }

// Expired reports whether the key is past its expiry at t.
func (k *APIKey) Expired(t time.Time) bool {
	return k.ExpiresAt != nil && !t.Before(*k.ExpiresAt)
}

// Can reports whether the key grants action. An empty permission set grants everything.
func (k *APIKey) Can(action Action) bool {
	if len(k.Permissions) == 0 {
		return true
	}
	needed := action.Permission()
	for _, p := range k.Permissions {
		if p == "*" || strings.EqualFold(p, needed) {
			return true
		}
	}
	return false
}

// AllowsTable reports whether the key may touch table. An empty list allows every table.
func (k *APIKey) AllowsTable(table string) bool {
	if len(k.AllowedTables) == 0 {
		return true
	}
	for _, t := range k.AllowedTables {
		if t == "*" || strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

// MediaItem is an attachment stored by the media collaborator.
type MediaItem struct {
	ID         uint      `gorm:"primaryKey"`
	OwnerTable string    `gorm:"column:table_name;index:idx_media_owner;not null"`
	RecordID   int64     `gorm:"index:idx_media_owner;not null"`
	Collection string    `gorm:"index:idx_media_owner;not null"`
	URL        string    `gorm:"column:url;not null"`
	CreatedAt  time.Time
}

func (MediaItem) TableName() string { return "media_items" }

package domain

import "strings"

// FieldType is the declared type of a Field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeText      FieldType = "text"
	TypeRichText  FieldType = "richtext"
	TypeMarkdown  FieldType = "markdown"
	TypeEmail     FieldType = "email"
	TypeURL       FieldType = "url"
	TypePhone     FieldType = "phone"
	TypeSlug      FieldType = "slug"
	TypePassword  FieldType = "password"
	TypeColor     FieldType = "color"
	TypeEncrypted FieldType = "encrypted"
	TypeInteger   FieldType = "integer"
	TypeBigInt    FieldType = "bigint"
	TypeFloat     FieldType = "float"
	TypeDecimal   FieldType = "decimal"
	TypeMoney     FieldType = "money"
	TypeBoolean   FieldType = "boolean"
	TypeCheckbox  FieldType = "checkbox"
	TypeDate      FieldType = "date"
	TypeDateTime  FieldType = "datetime"
	TypeTimestamp FieldType = "timestamp"
	TypeTime      FieldType = "time"
	TypeJSON      FieldType = "json"
	TypeArray     FieldType = "array"
	TypeEnum      FieldType = "enum"
	TypeSelect    FieldType = "select"
	TypeUUID      FieldType = "uuid"
	TypeFile      FieldType = "file"
	TypeImage     FieldType = "image"
	TypePoint     FieldType = "point"
)

// Normalize lowercases the type name.
func (t FieldType) Normalize() FieldType {
	return FieldType(strings.ToLower(strings.TrimSpace(string(t))))
}

func (t FieldType) IsInteger() bool {
	switch t.Normalize() {
	case TypeInteger, TypeBigInt:
		return true
	}
	return false
}

func (t FieldType) IsFloat() bool {
	switch t.Normalize() {
	case TypeFloat, TypeDecimal, TypeMoney:
		return true
	}
	return false
}

func (t FieldType) IsBoolean() bool {
	switch t.Normalize() {
	case TypeBoolean, TypeCheckbox:
		return true
	}
	return false
}

func (t FieldType) IsJSON() bool {
	switch t.Normalize() {
	case TypeJSON, TypeArray:
		return true
	}
	return false
}

func (t FieldType) IsEnum() bool {
	switch t.Normalize() {
	case TypeEnum, TypeSelect:
		return true
	}
	return false
}

func (t FieldType) IsMedia() bool {
	switch t.Normalize() {
	case TypeFile, TypeImage:
		return true
	}
	return false
}

// ColumnType maps the declared type onto a sqlite column affinity.
func (t FieldType) ColumnType() string {
	switch {
	case t.IsInteger(), t.IsBoolean():
		return "INTEGER"
	case t.IsFloat():
		return "REAL"
	default:
		return "TEXT"
	}
}

// MediaCollections returns the collection an attachment of this type lives in,
// followed by the fallback collection.
func (t FieldType) MediaCollections() (primary, fallback string) {
	if t.Normalize() == TypeImage {
		return "images", "files"
	}
	return "files", "images"
}

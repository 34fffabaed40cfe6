// internal/core/validation.go
package core

import (
	"regexp"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
)

var (
	customLog = logger.NewLogger()

	// Regular expression for valid table/column/relation names (alphanumeric + underscore)
	nameValidationRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// KnownFieldTypes lists every declared field type the engine understands.
var KnownFieldTypes = map[domain.FieldType]bool{
	domain.TypeString: true, domain.TypeText: true, domain.TypeRichText: true, domain.TypeMarkdown: true,
	domain.TypeEmail: true, domain.TypeURL: true, domain.TypePhone: true, domain.TypeSlug: true,
	domain.TypePassword: true, domain.TypeColor: true, domain.TypeEncrypted: true,
	domain.TypeInteger: true, domain.TypeBigInt: true,
	domain.TypeFloat: true, domain.TypeDecimal: true, domain.TypeMoney: true,
	domain.TypeBoolean: true, domain.TypeCheckbox: true,
	domain.TypeDate: true, domain.TypeDateTime: true, domain.TypeTimestamp: true, domain.TypeTime: true,
	domain.TypeJSON: true, domain.TypeArray: true,
	domain.TypeEnum: true, domain.TypeSelect: true,
	domain.TypeUUID: true, domain.TypeFile: true, domain.TypeImage: true, domain.TypePoint: true,
}

// IsValidIdentifier checks if a string is a valid identifier (e.g., table_name, column_name)
// Applies basic format and length checks.
func IsValidIdentifier(name string) bool {
	return nameValidationRegex.MatchString(name) && len(name) > 0 && len(name) <= 64
}

// NormalizeAndValidateType checks if a declared field type is supported, returning the normalized version.
func NormalizeAndValidateType(fieldType string) (domain.FieldType, bool) {
	ft := domain.FieldType(fieldType).Normalize()
	return ft, KnownFieldTypes[ft]
}

// IsSystemColumn reports whether name is managed by the engine rather than declared.
func IsSystemColumn(name string) bool {
	switch name {
	case domain.ColumnID, domain.ColumnCreatedAt, domain.ColumnUpdatedAt, domain.ColumnDeletedAt:
		return true
	}
	return false
}

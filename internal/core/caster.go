// internal/core/caster.go
package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/record"
)

// Output layouts for date-like field types.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = domain.TimestampLayout
	TimeLayout     = "15:04:05"
)

// Layouts tried before falling back to the lenient parser.
var strictLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	DateTimeLayout,
	"2006-01-02 15:04",
	DateLayout,
	TimeLayout,
	"15:04",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"01/02/2006",
}

var lenient = &now.Config{
	TimeLocation: time.UTC,
	TimeFormats:  now.TimeFormats,
}

// ParseDate parses s with a best-effort list of layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	switch strings.ToLower(s) {
	case "now":
		return time.Now().UTC(), true
	case "today":
		return lenient.With(time.Now().UTC()).BeginningOfDay(), true
	case "tomorrow":
		return lenient.With(time.Now().UTC().AddDate(0, 0, 1)).BeginningOfDay(), true
	case "yesterday":
		return lenient.With(time.Now().UTC().AddDate(0, 0, -1)).BeginningOfDay(), true
	}
	for _, layout := range strictLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := lenient.Parse(s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ParseBool applies the permissive truthy parsing used for boolean fields.
func ParseBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}

// Cast coerces a raw request value into the storage-correct variant for field.
// Values that cannot be coerced are passed through unchanged.
func Cast(raw any, field *domain.Field) record.Value {
	if raw == nil {
		return record.Null{}
	}

	ft := field.Type.Normalize()
	switch {
	case ft.IsInteger():
		return castInteger(raw)
	case ft.IsFloat():
		return castFloat(raw)
	case ft.IsBoolean():
		return record.Bool(ParseBool(raw))
	case ft.IsJSON():
		return castJSON(raw)
	}

	switch ft {
	case domain.TypeDate:
		return castTime(raw, DateLayout)
	case domain.TypeDateTime, domain.TypeTimestamp:
		return castTime(raw, DateTimeLayout)
	case domain.TypeTime:
		return castTime(raw, TimeLayout)
	case domain.TypePassword:
		return castPassword(raw)
	}
	return record.FromNative(raw)
}

func castInteger(raw any) record.Value {
	switch v := raw.(type) {
	case float64:
		return record.Int(int64(math.Trunc(v)))
	case int:
		return record.Int(int64(v))
	case int64:
		return record.Int(v)
	case bool:
		if v {
			return record.Int(1)
		}
		return record.Int(0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return record.Int(i)
		}
		if f, err := v.Float64(); err == nil {
			return record.Int(int64(math.Trunc(f)))
		}
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return record.Int(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return record.Int(int64(math.Trunc(f)))
		}
	}
	return record.FromNative(raw)
}

func castFloat(raw any) record.Value {
	switch v := raw.(type) {
	case float64:
		return record.Float(v)
	case int:
		return record.Float(float64(v))
	case int64:
		return record.Float(float64(v))
	case bool:
		if v {
			return record.Float(1)
		}
		return record.Float(0)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return record.Float(f)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return record.Float(f)
		}
	}
	return record.FromNative(raw)
}

func castJSON(raw any) record.Value {
	if s, ok := raw.(string); ok {
		if json.Valid([]byte(s)) {
			return record.JSON{Raw: s}
		}
		return record.String(s)
	}
	return record.FromNative(raw)
}

func castTime(raw any, layout string) record.Value {
	switch v := raw.(type) {
	case time.Time:
		return record.Time{T: v.UTC(), Layout: layout}
	case string:
		if t, ok := ParseDate(v); ok {
			return record.Time{T: t, Layout: layout}
		}
	}
	return record.FromNative(raw)
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func castPassword(raw any) record.Value {
	s, ok := raw.(string)
	if !ok || s == "" || isBcryptHash(s) {
		return record.FromNative(raw)
	}
	hash, err := auth.HashPassword(s)
	if err != nil {
		customLog.Warnf("Core: refusing to store password field unhashed: %v", err)
		return record.Null{}
	}
	return record.String(hash)
}

// internal/record/value.go
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

// Value is a typed record value. The set of implementations is closed.
type Value interface {
	// Native returns the value as it should appear in JSON output.
	Native() any
	// Storage returns the value as a database/sql driver argument.
	Storage() any
	// String renders the value for string-wise comparisons.
	String() string

	value()
}

type (
	Null   struct{}
	Int    int64
	Float  float64
	Bool   bool
	String string

	// Time carries its own output layout (date, datetime or time of day).
	Time struct {
		T      time.Time
		Layout string
	}

	// JSON holds serialized JSON text.
	JSON struct {
		Raw string
	}
)

func (Null) value()   {}
func (Int) value()    {}
func (Float) value()  {}
func (Bool) value()   {}
func (String) value() {}
func (Time) value()   {}
func (JSON) value()   {}

func (Null) Native() any    { return nil }
func (Null) Storage() any   { return nil }
func (Null) String() string { return "" }

func (v Int) Native() any    { return int64(v) }
func (v Int) Storage() any   { return int64(v) }
func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

func (v Float) Native() any    { return float64(v) }
func (v Float) Storage() any   { return float64(v) }
func (v Float) String() string { return strconv.FormatFloat(float64(v), 'f', -1, 64) }

func (v Bool) Native() any { return bool(v) }
func (v Bool) Storage() any {
	if v {
		return int64(1)
	}
	return int64(0)
}
func (v Bool) String() string {
	if v {
		return "1"
	}
	return ""
}

func (v String) Native() any    { return string(v) }
func (v String) Storage() any   { return string(v) }
func (v String) String() string { return string(v) }

func (v Time) Native() any    { return v.String() }
func (v Time) Storage() any   { return v.String() }
func (v Time) String() string { return v.T.Format(v.Layout) }

func (v JSON) Native() any {
	if json.Valid([]byte(v.Raw)) {
		return json.RawMessage(v.Raw)
	}
	return v.Raw
}
func (v JSON) Storage() any   { return v.Raw }
func (v JSON) String() string { return v.Raw }

// IsNull reports whether v is absent or the Null variant.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// FromNative wraps a decoded JSON or Go value without any field-specific coercion.
func FromNative(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null{}
	case Value:
		return v
	case bool:
		return Bool(v)
	case string:
		return String(v)
	case []byte:
		return String(string(v))
	case int:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		return Int(int64(v))
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Int(i)
		}
		if f, err := v.Float64(); err == nil {
			return Float(f)
		}
		return String(v.String())
	case time.Time:
		return Time{T: v, Layout: domain.TimestampLayout}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return String(fmt.Sprint(v))
		}
		return JSON{Raw: string(b)}
	}
}

// FromStorage converts a scanned column value into the variant the field type calls for.
func FromStorage(raw any, ft domain.FieldType) Value {
	if raw == nil {
		return Null{}
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch {
	case ft.IsBoolean():
		switch v := raw.(type) {
		case int64:
			return Bool(v != 0)
		case float64:
			return Bool(v != 0)
		case bool:
			return Bool(v)
		case string:
			s := strings.ToLower(strings.TrimSpace(v))
			return Bool(s == "1" || s == "true")
		}
	case ft.IsInteger():
		switch v := raw.(type) {
		case int64:
			return Int(v)
		case float64:
			if v == math.Trunc(v) {
				return Int(int64(v))
			}
			return Float(v)
		case string:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				return Int(i)
			}
		}
	case ft.IsFloat():
		switch v := raw.(type) {
		case float64:
			return Float(v)
		case int64:
			return Float(float64(v))
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return Float(f)
			}
		}
	case ft.IsJSON():
		if s, ok := raw.(string); ok {
			return JSON{Raw: s}
		}
	}

	if t, ok := raw.(time.Time); ok {
		return Time{T: t, Layout: domain.TimestampLayout}
	}
	return FromNative(raw)
}

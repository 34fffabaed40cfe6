// internal/core/caster_test.go
package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/record"
)

func field(ft domain.FieldType) *domain.Field {
	return &domain.Field{Name: "f", Type: ft}
}

func TestCast(t *testing.T) {
	testCases := []struct {
		name string
		raw  any
		ft   domain.FieldType
		want record.Value
	}{
		{"null", nil, domain.TypeString, record.Null{}},
		{"integer from float", 12.9, domain.TypeInteger, record.Int(12)},
		{"integer from string", "42", domain.TypeBigInt, record.Int(42)},
		{"integer from json number", json.Number("7"), domain.TypeInteger, record.Int(7)},
		{"integer passthrough", "abc", domain.TypeInteger, record.String("abc")},
		{"float from int string", "3", domain.TypeMoney, record.Float(3)},
		{"float from float", 1.5, domain.TypeDecimal, record.Float(1.5)},
		{"bool true", true, domain.TypeBoolean, record.Bool(true)},
		{"bool yes", "Yes", domain.TypeBoolean, record.Bool(true)},
		{"bool on", "on", domain.TypeCheckbox, record.Bool(true)},
		{"bool number", 2.0, domain.TypeBoolean, record.Bool(true)},
		{"bool zero", "0", domain.TypeBoolean, record.Bool(false)},
		{"bool garbage", "nah", domain.TypeBoolean, record.Bool(false)},
		{"json object", map[string]any{"a": 1.0}, domain.TypeJSON, record.JSON{Raw: `{"a":1}`}},
		{"json array", []any{"x", "y"}, domain.TypeArray, record.JSON{Raw: `["x","y"]`}},
		{"json string kept", `{"k":true}`, domain.TypeJSON, record.JSON{Raw: `{"k":true}`}},
		{"json plain string kept", "not json", domain.TypeJSON, record.String("not json")},
		{"string", "hello", domain.TypeString, record.String("hello")},
		{"unknown type passes through", 5.0, domain.FieldType("weird"), record.Float(5)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Cast(tc.raw, field(tc.ft)))
		})
	}
}

func TestCastDates(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		ft   domain.FieldType
		want string
	}{
		{"date from iso", "2024-03-05T10:11:12Z", domain.TypeDate, "2024-03-05"},
		{"date plain", "2024-03-05", domain.TypeDate, "2024-03-05"},
		{"datetime from iso", "2024-03-05T10:11:12Z", domain.TypeDateTime, "2024-03-05 10:11:12"},
		{"timestamp from date", "2024-03-05", domain.TypeTimestamp, "2024-03-05 00:00:00"},
		{"time", "08:30", domain.TypeTime, "08:30:00"},
		{"datetime from words", "March 5, 2024", domain.TypeDateTime, "2024-03-05 00:00:00"},
		{"slash date is month first", "03/04/2020", domain.TypeDate, "2020-03-04"},
		{"slash date with day over twelve", "12/25/2020", domain.TypeDate, "2020-12-25"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Cast(tc.raw, field(tc.ft))
			require.IsType(t, record.Time{}, got)
			assert.Equal(t, tc.want, got.String())
		})
	}

	t.Run("unparseable passes through", func(t *testing.T) {
		assert.Equal(t, record.String("someday"), Cast("someday", field(domain.TypeDate)))
	})
}

func TestParseDateRelative(t *testing.T) {
	today, ok := ParseDate("today")
	require.True(t, ok)
	y, m, d := time.Now().UTC().Date()
	assert.Equal(t, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), today)

	tomorrow, ok := ParseDate("Tomorrow")
	require.True(t, ok)
	assert.Equal(t, today.AddDate(0, 0, 1), tomorrow)

	_, ok = ParseDate("")
	assert.False(t, ok)
}

func TestCastPassword(t *testing.T) {
	got := Cast("s3cret-pass", field(domain.TypePassword))
	hashed, ok := got.(record.String)
	require.True(t, ok)
	assert.NotEqual(t, "s3cret-pass", string(hashed))
	assert.True(t, auth.CheckPasswordHash("s3cret-pass", string(hashed)))

	// already hashed values are stored as they are
	assert.Equal(t, hashed, Cast(string(hashed), field(domain.TypePassword)))
	assert.Equal(t, record.String(""), Cast("", field(domain.TypePassword)))
}

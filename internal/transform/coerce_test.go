package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapipe/pkg/contracts/domain"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234", 1234, true},
		{"1,234.56", 1234.56, true},
		{"1.234,56", 1234.56, true},
		{"1 234 567", 1234567, true},
		{"12,5", 12.5, true},
		{"1,234", 1234, true},
		{"$1,234.50", 1234.5, true},
		{"€99", 99, true},
		{"(1.234,50)", -1234.5, true},
		{"(500)", -500, true},
		{"5%", 5, true},
		{"-42.7", -42.7, true},
		{"  18  ", 18, true},
		{"", 0, false},
		{"abc", 0, false},
		{"12a4", 0, false},
		{"2020-01-15", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, tt.in)
		}
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"true", "TRUE", "1", "yes", "Y", "on"}
	for _, in := range truthy {
		got, ok := ParseBool(in)
		require.True(t, ok, in)
		assert.True(t, got, in)
	}

	falsy := []string{"false", "0", "No", "n", "OFF"}
	for _, in := range falsy {
		got, ok := ParseBool(in)
		require.True(t, ok, in)
		assert.False(t, got, in)
	}

	for _, in := range []string{"", "maybe", "2"} {
		_, ok := ParseBool(in)
		assert.False(t, ok, in)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-15", "2024-03-15"},
		{"2024-03-15 10:30:00", "2024-03-15"},
		{"15/03/2024", "2024-03-15"},
		{"2024/03/15", "2024-03-15"},
		{"15-Mar-2024", "2024-03-15"},
		{"Mar 2024", "2024-03-01"},
		{"2024-03", "2024-03-01"},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want, got.Format("2006-01-02"), tt.in)
	}

	for _, in := range []string{"", "not a date", "13/13/2024"} {
		_, ok := ParseDate(in)
		assert.False(t, ok, in)
	}
}

func TestParseDate_DayFirstWinsAmbiguity(t *testing.T) {
	// 05/03 reads as 5 March, not 3 May.
	got, ok := ParseDate("05/03/2024")
	require.True(t, ok)
	assert.Equal(t, time.March, got.Month())
	assert.Equal(t, 5, got.Day())
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "1234.5", FormatNumber(1234.5))
	assert.Equal(t, "1000000", FormatNumber(1e6))
	assert.Equal(t, "-0.25", FormatNumber(-0.25))
	assert.Equal(t, "3", FormatNumber(3))
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		fieldType domain.FieldType
		want      string
		ok        bool
	}{
		{"number with separators", "1,234.50", domain.FieldTypeNumber, "1234.5", true},
		{"number bad", "n/a", domain.FieldTypeNumber, "n/a", false},
		{"date to canonical", "15/03/2024", domain.FieldTypeDate, "2024-03-15", true},
		{"date bad", "someday", domain.FieldTypeDate, "someday", false},
		{"bool yes", "yes", domain.FieldTypeBoolean, "true", true},
		{"bool bad", "maybe", domain.FieldTypeBoolean, "maybe", false},
		{"string passes through", " anything ", domain.FieldTypeString, " anything ", true},
		{"empty passes through", "   ", domain.FieldTypeNumber, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CoerceValue(tt.value, tt.fieldType)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

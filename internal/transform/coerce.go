package transform

import (
	"math"
	"strconv"
	"strings"
	"time"

	"schemapipe/pkg/contracts/domain"
)

// dateLayouts are tried in order. Day-first slash dates come before
// month-first because most provider exports are European.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
	"Jan 2006",
	"2006-01",
}

// currencyMarkers are stripped before numeric parsing.
var currencyMarkers = []string{"$", "€", "£", "¥", "USD", "EUR", "GBP", "SEK", "JPY"}

// ParseNumber parses a numeric-looking cell. It accepts currency symbols,
// percent signs, parentheses negatives, and comma, period or space used as
// thousands or decimal separators. "(1.234,50)" parses to -1234.5.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
		negative = true
	}

	for _, marker := range currencyMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.ReplaceAll(s, "%", "")
	s = strings.TrimSpace(s)

	s = normalizeSeparators(s)
	if negative {
		s = "-" + s
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}

// normalizeSeparators rewrites group and decimal separators into plain Go
// float syntax. When both comma and period appear, the one further right is
// the decimal separator. A lone comma is a decimal separator only when one
// or two digits follow it, otherwise it groups thousands.
func normalizeSeparators(s string) string {
	hasComma := strings.Contains(s, ",")
	hasPeriod := strings.Contains(s, ".")

	switch {
	case hasComma && hasPeriod:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		lastComma := strings.LastIndex(s, ",")
		decimals := len(s) - lastComma - 1
		if strings.Count(s, ",") == 1 && (decimals == 1 || decimals == 2) {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return strings.ReplaceAll(s, " ", "")
}

// ParseBool parses a boolean-looking cell.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true, true
	case "false", "0", "no", "n", "off":
		return false, true
	}
	return false, false
}

// ParseDate parses a date-looking cell against the fixed layout list.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatNumber renders a parsed number in canonical form, without group
// separators and with no trailing zero noise.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatDate renders a parsed date in canonical ISO form.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatBool renders a parsed boolean in canonical form.
func FormatBool(v bool) string {
	return strconv.FormatBool(v)
}

// CoerceValue coerces one cell to the canonical string form of the given
// field type. Empty cells pass through untouched; presence rules belong to
// the validator. The second return reports whether coercion succeeded.
func CoerceValue(value string, fieldType domain.FieldType) (string, bool) {
	if strings.TrimSpace(value) == "" {
		return "", true
	}
	switch fieldType {
	case domain.FieldTypeNumber:
		if v, ok := ParseNumber(value); ok {
			return FormatNumber(v), true
		}
	case domain.FieldTypeDate:
		if t, ok := ParseDate(value); ok {
			return FormatDate(t), true
		}
	case domain.FieldTypeBoolean:
		if v, ok := ParseBool(value); ok {
			return FormatBool(v), true
		}
	default:
		return value, true
	}
	return value, false
}

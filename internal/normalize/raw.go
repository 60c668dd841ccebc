// Package normalize converts raw, inconsistently-shaped upstream records
// into the canonical billing entities. Every function in this package is
// total: malformed input resolves to a zero value, never a panic or error.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RawRecord is a decoded upstream document. Upstream sources disagree on
// field names, so extraction goes through the prioritized helpers below
// instead of direct key access.
type RawRecord map[string]any

// Source tags the known upstream shapes. Each shape has its own entry
// point so the field-precedence rules stay auditable per shape.
type Source string

const (
	SourceInvoice     Source = "invoice"
	SourceSale        Source = "sale"
	SourceAppointment Source = "appointment"
)

// Has reports whether the key is present with a non-nil value.
func (r RawRecord) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// String returns the first defined candidate coerced to a string.
// Numeric values are formatted; anything else resolves to "".
func String(raw RawRecord, keys ...string) string {
	for _, key := range keys {
		if !raw.Has(key) {
			continue
		}
		switch v := raw[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return ""
}

// Amount extracts a numeric amount given a prioritized list of candidate
// field names: the first defined candidate wins and is coerced to a
// number; a defined but malformed value resolves to 0.
func Amount(raw RawRecord, keys ...string) float64 {
	for _, key := range keys {
		if !raw.Has(key) {
			continue
		}
		n, _ := Number(raw[key])
		return n
	}
	return 0
}

// Number coerces an arbitrary decoded value to a float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Time returns the first defined candidate parsed as a timestamp.
// Unparseable values resolve to the zero time.
func Time(raw RawRecord, keys ...string) time.Time {
	for _, key := range keys {
		if !raw.Has(key) {
			continue
		}
		switch v := raw[key].(type) {
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t
				}
			}
		case float64:
			// Unix milliseconds from JSON-decoded numbers.
			return time.UnixMilli(int64(v)).UTC()
		case time.Time:
			return v
		}
		return time.Time{}
	}
	return time.Time{}
}

// List returns the first defined candidate as a slice of nested records.
func List(raw RawRecord, keys ...string) []RawRecord {
	for _, key := range keys {
		if !raw.Has(key) {
			continue
		}
		items, ok := raw[key].([]any)
		if !ok {
			return nil
		}
		out := make([]RawRecord, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, RawRecord(m))
			}
		}
		return out
	}
	return nil
}

// Package field reads values out of loosely typed documents.
//
// Persisted items arrive as map[string]any after a JSON, protobuf Struct or
// Cypher round trip, so numbers may be float64, int64 or json.Number and
// lists may be []any. The helpers here coerce those shapes and fall back to a
// default instead of failing. All of them accept a nil map.
package field

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// String returns m[key] when it is a string, or defaultVal.
func String(m map[string]any, key, defaultVal string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return defaultVal
}

// First returns the first non-empty string among keys.
func First(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := String(m, k, ""); s != "" {
			return s
		}
	}
	return ""
}

// Float returns m[key] as a float64. Integer kinds, json.Number and numeric
// strings are converted; anything else yields defaultVal.
func Float(m map[string]any, key string, defaultVal float64) float64 {
	f, ok := ToFloat(m[key])
	if !ok {
		return defaultVal
	}
	return f
}

// ToFloat converts a decoded number to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns m[key] as an int, truncating floats.
func Int(m map[string]any, key string, defaultVal int) int {
	f, ok := ToFloat(m[key])
	if !ok {
		return defaultVal
	}
	return int(f)
}

// Map returns m[key] when it is a nested document, or nil.
func Map(m map[string]any, key string) map[string]any {
	nested, _ := m[key].(map[string]any)
	return nested
}

// Strings returns m[key] as a string list. A []any has its non-nil elements
// formatted, and a single string becomes a one-element list. A missing key
// yields nil.
func Strings(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

// Time parses m[key] as an RFC 3339 timestamp. Unix seconds are accepted too.
func Time(m map[string]any, key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		return t, err == nil
	default:
		secs, ok := ToFloat(v)
		if !ok {
			return time.Time{}, false
		}
		return time.Unix(int64(secs), 0).UTC(), true
	}
}

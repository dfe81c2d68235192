package tools

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Args wraps validated tool parameters with lenient typed getters. Models
// often quote numbers or wrap objects in JSON strings, so every getter
// accepts the common alternatives.
type Args map[string]any

// String returns the value for key as a string, or "".
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Float returns the value for key as a float64, or def.
func (a Args) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns the value for key as an int, or def.
func (a Args) Int(key string, def int) int {
	f := a.Float(key, float64(def))
	return int(f)
}

// Object returns the value for key as a JSON object. A JSON-encoded string
// is decoded. Missing or malformed values yield nil.
func (a Args) Object(key string) map[string]any {
	switch v := a[key].(type) {
	case map[string]any:
		return v
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(v), &m) == nil {
			return m
		}
	}
	return nil
}

// Objects returns the value for key as a list of JSON objects. A single
// object becomes a one-element list; non-object elements are dropped.
func (a Args) Objects(key string) []map[string]any {
	raw := a[key]
	if s, ok := raw.(string); ok {
		var decoded any
		if json.Unmarshal([]byte(s), &decoded) != nil {
			return nil
		}
		raw = decoded
	}
	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return v
	}
	return nil
}

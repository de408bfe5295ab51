// Package record holds the JSON-like record model shared by the cleaning
// pipeline. Raw API responses decode into Record values; every pipeline stage
// produces new Records and leaves its input untouched.
package record

import (
	"fmt"
	"strconv"
)

// Record is one entity instance as returned by the source API: an arbitrary
// mapping of field name to JSON value (scalar, nested mapping or array).
type Record map[string]any

// Clone returns a deep copy. Nested maps and slices are copied recursively so
// mutating the copy can never leak into the caller's data.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Record(val).Clone())
	case Record:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// String returns the field as a string. The second return is false when the
// field is absent or not a string.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

// Int returns the field as an int64. JSON decoding produces float64 for all
// numbers, so both representations are accepted.
func (r Record) Int(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Float returns the field as a float64.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Bool returns the field as a bool.
func (r Record) Bool(key string) (bool, bool) {
	v, ok := r[key].(bool)
	return v, ok
}

// Child returns a nested mapping field as a Record.
func (r Record) Child(key string) (Record, bool) {
	switch v := r[key].(type) {
	case map[string]any:
		return Record(v), true
	case Record:
		return v, true
	default:
		return nil, false
	}
}

// Children returns an array field as a slice of Records, skipping array
// entries that are not mappings.
func (r Record) Children(key string) []Record {
	arr, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(arr))
	for _, item := range arr {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, Record(v))
		case Record:
			out = append(out, v)
		}
	}
	return out
}

// Identity returns the record's stable identifier under the given key as a
// string: numeric ids are formatted without a decimal part, slugs pass
// through. The second return is false when the field is absent, empty, or of
// an unusable type.
func (r Record) Identity(key string) (string, bool) {
	if id, ok := r.Int(key); ok {
		return strconv.FormatInt(id, 10), true
	}
	if s, ok := r.String(key); ok && s != "" {
		return s, true
	}
	return "", false
}

// MissingIdentifierError reports a record whose stable subject or entity
// identifier is absent where one is required, e.g. for pseudonym derivation
// or URI construction. Processing the record must stop rather than continue
// with a placeholder, since a placeholder would collapse distinct subjects
// into one.
type MissingIdentifierError struct {
	Field string
}

func (e MissingIdentifierError) Error() string {
	return fmt.Sprintf("record is missing required identifier field %q", e.Field)
}

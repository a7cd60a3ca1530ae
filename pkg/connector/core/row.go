package core

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Row is one decoded API object. Numbers are json.Number so identifiers keep
// their literal form.
type Row map[string]interface{}

// ID returns the row's ID field as a string, or "" when absent
func (r Row) ID() string {
	s, _ := r.String("ID")
	return s
}

// String returns field formatted as a string. Numbers and booleans are
// rendered; objects, arrays and nulls report false.
func (r Row) String(field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	return scalarString(v)
}

// Array returns the objects held in an array field. Non-object elements are
// skipped.
func (r Row) Array(field string) []Row {
	items, ok := r[field].([]interface{})
	if !ok {
		return nil
	}
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]interface{}:
			rows = append(rows, Row(v))
		case Row:
			rows = append(rows, v)
		}
	}
	return rows
}

// Clone returns a deep copy of the row
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	return cloneMap(r)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case Row:
		return Row(cloneMap(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// SyntheticID joins a parent key and a child key for children without a
// natural unique identifier. The same inputs always give the same ID.
func SyntheticID(parentID string, childKey string) string {
	var sb strings.Builder
	sb.Grow(len(parentID) + len(childKey) + 1)
	sb.WriteString(parentID)
	sb.WriteByte('_')
	sb.WriteString(childKey)
	return sb.String()
}

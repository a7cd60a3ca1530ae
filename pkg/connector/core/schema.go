package core

import (
	"sort"

	json "github.com/goccy/go-json"
)

// Schema is the JSON Schema subset Singer catalogs use.
type Schema struct {
	Type                 JSONType           `json:"type,omitempty"`
	Format               string             `json:"format,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties interface{}        `json:"additionalProperties,omitempty"`
	Selected             bool               `json:"selected,omitempty"`
}

// Property returns the named property schema, or nil
func (s *Schema) Property(name string) *Schema {
	if s == nil {
		return nil
	}
	return s.Properties[name]
}

// PropertyNames returns property names in sorted order
func (s *Schema) PropertyNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBoolean reports whether the schema admits booleans
func (s *Schema) IsBoolean() bool {
	return s != nil && s.Type.Has("boolean")
}

// Closed reports whether additionalProperties is false, in which case only
// declared properties may appear in records
func (s *Schema) Closed() bool {
	if s == nil {
		return false
	}
	allowed, ok := s.AdditionalProperties.(bool)
	return ok && !allowed
}

// IsDate reports whether the schema is a date or date-time string
func (s *Schema) IsDate() bool {
	return s != nil && (s.Format == "date-time" || s.Format == "date")
}

// JSONType holds a schema "type", which may be a single name or a list.
type JSONType []string

// Has reports whether t includes name
func (t JSONType) Has(name string) bool {
	for _, v := range t {
		if v == name {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts "string" and ["null", "string"]
func (t *JSONType) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = JSONType{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

// MarshalJSON writes a single type as a plain string
func (t JSONType) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

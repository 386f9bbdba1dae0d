// Package mapping describes the field types of the documents produced by the
// grs pipeline, in the property-mapping form document stores accept.
package mapping

import (
	"encoding/json"
	"sort"

	"growthindex/internal/grs"
)

// Property is a single field mapping. Object fields carry nested Properties.
type Property struct {
	Type       grs.FieldType       `json:"type,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
}

// Mapping maps top-level document fields to their properties.
type Mapping map[string]Property

// ValuesField is the document field holding the per-date observations.
const ValuesField = "values"

// CustomDataMapping returns the mapping of grs documents. The argument is
// ignored; it exists so the function fits hook signatures that pass a receiver.
func CustomDataMapping(_ any) Mapping {
	values := make(map[string]Property, len(grs.FieldNames()))
	for _, f := range grs.Fields() {
		values[f.Name] = Property{Type: f.Type}
	}
	return Mapping{
		grs.ColumnDate: {Type: grs.TypeDate},
		"location":     {Type: grs.TypeKeyword},
		"lineage":      {Type: grs.TypeKeyword},
		ValuesField:    {Properties: values},
	}
}

// ValueFields returns the sorted names of the nested value properties.
func (m Mapping) ValueFields() []string {
	values := m[ValuesField].Properties
	out := make([]string, 0, len(values))
	for name := range values {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// JSON renders the mapping with stable key order.
func (m Mapping) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

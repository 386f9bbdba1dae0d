package grs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Observation is one dated entry of an entity's window. Missing values (NaN)
// are stored as 0; ±Inf from zero denominators is kept as is.
type Observation struct {
	Date   string
	values [numericCount]float64
}

func newObservation(row Row) Observation {
	obs := Observation{}
	if row.HasDate() {
		obs.Date = row.Date.Format(DateLayout)
	}
	for i, v := range row.values {
		if math.IsNaN(v) {
			v = 0
		}
		obs.values[i] = v
	}
	return obs
}

// Value returns a numeric field by name.
func (o Observation) Value(name string) (float64, bool) {
	i, ok := numericIndex[name]
	if !ok {
		return 0, false
	}
	return o.values[i], true
}

// Field returns any field by name: the date as a string, numbers as float64.
func (o Observation) Field(name string) (any, bool) {
	if name == ColumnDate {
		return o.Date, true
	}
	v, ok := o.Value(name)
	if !ok {
		return nil, false
	}
	return v, true
}

// MarshalJSON writes the observation as an object with keys in field order.
// Non-finite numbers are written as null.
func (o Observation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + numericCount*32)
	buf.WriteString(`{"date":`)
	date, err := json.Marshal(o.Date)
	if err != nil {
		return nil, err
	}
	buf.Write(date)
	for i, name := range numericNames {
		buf.WriteString(`,"`)
		buf.WriteString(name)
		buf.WriteString(`":`)
		v := o.values[i]
		if math.IsInf(v, 0) || math.IsNaN(v) {
			buf.WriteString("null")
			continue
		}
		buf.Write(strconv.AppendFloat(nil, v, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Record is the document emitted for one (location, lineage) pair.
type Record struct {
	ID       string        `json:"_id"`
	Location string        `json:"location"`
	Lineage  string        `json:"lineage"`
	Values   []Observation `json:"values"`
}

// RecordID builds the document identifier of an entity.
func RecordID(location, lineage string) string {
	return location + "_" + lineage
}

// FieldMap returns the field-major view of one field: position -> value.
// Unknown fields yield nil.
func (r Record) FieldMap(name string) map[int]any {
	if name != ColumnDate {
		if _, ok := numericIndex[name]; !ok {
			return nil
		}
	}
	out := make(map[int]any, len(r.Values))
	for pos, obs := range r.Values {
		v, _ := obs.Field(name)
		out[pos] = v
	}
	return out
}

// FieldMajor returns one position-keyed map per field, in field order.
func (r Record) FieldMajor() []map[int]any {
	names := FieldNames()
	out := make([]map[int]any, len(names))
	for i, name := range names {
		out[i] = r.FieldMap(name)
	}
	return out
}

// Latest returns the last observation of the window.
func (r Record) Latest() (Observation, bool) {
	if len(r.Values) == 0 {
		return Observation{}, false
	}
	return r.Values[len(r.Values)-1], true
}

func (r Record) String() string {
	return fmt.Sprintf("%s (%d observations)", r.ID, len(r.Values))
}

type entityKey struct {
	location string
	lineage  string
}

// group holds the rows of one entity in input order.
type group struct {
	key  entityKey
	rows []Row
}

func (g *group) record() Record {
	rec := Record{
		ID:       RecordID(g.key.location, g.key.lineage),
		Location: g.key.location,
		Lineage:  g.key.lineage,
		Values:   make([]Observation, len(g.rows)),
	}
	for i, row := range g.rows {
		rec.Values[i] = newObservation(row)
	}
	return rec
}

// groupRows partitions rows by (location, lineage), sorted by location then
// lineage. Rows missing either key are dropped.
func groupRows(rows []Row) []*group {
	index := make(map[entityKey]*group)
	var groups []*group
	for _, row := range rows {
		if row.Location == "" || row.Lineage == "" {
			continue
		}
		key := entityKey{location: row.Location, lineage: row.Lineage}
		g, ok := index[key]
		if !ok {
			g = &group{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].key.location != groups[j].key.location {
			return groups[i].key.location < groups[j].key.location
		}
		return groups[i].key.lineage < groups[j].key.lineage
	})
	return groups
}

// GroupRecords groups rows into records without applying a time window.
func GroupRecords(rows []Row) []Record {
	groups := groupRows(rows)
	out := make([]Record, len(groups))
	for i, g := range groups {
		out[i] = g.record()
	}
	return out
}

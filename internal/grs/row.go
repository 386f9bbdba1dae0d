package grs

import (
	"math"
	"time"
)

// DateLayout is the YYYY-MM-DD layout used for input and output dates.
const DateLayout = "2006-01-02"

// Row is one observation of the raw table together with its derived fields.
// Date is the zero time when the input cell was empty.
type Row struct {
	Date     time.Time
	Location string
	Lineage  string
	values   [numericCount]float64
}

// NewRow builds a derived row from raw numeric fields. Raw fields absent from
// raw are NaN, as an empty input cell would be; unknown names are ignored.
func NewRow(date time.Time, location, lineage string, raw map[string]float64) Row {
	r := Row{Date: date, Location: location, Lineage: lineage}
	for i := 0; i < rawNumericCount; i++ {
		r.values[i] = math.NaN()
		if v, ok := raw[numericNames[i]]; ok {
			r.values[i] = v
		}
	}
	r.Derive()
	return r
}

// Value returns a raw or derived numeric field by name.
func (r Row) Value(name string) (float64, bool) {
	i, ok := numericIndex[name]
	if !ok {
		return 0, false
	}
	return r.values[i], true
}

// HasDate reports whether the row carried a date.
func (r Row) HasDate() bool { return !r.Date.IsZero() }

// Derive computes the derived fields from the raw ones. Each field depends only
// on the same row; division by zero yields ±Inf or NaN rather than an error.
func (r *Row) Derive() {
	v := &r.values
	growth := math.Exp(v[idxG7])
	v[idxPrevalence7Pct] = v[idxPrevalence7] * 100
	v[idxDeltaPrevalence7Pct] = v[idxDeltaPrevalence7] * 100
	v[idxG7Linear] = (growth - 1) * 100
	v[idxDeltaG7Linear] = v[idxDeltaG7] * growth * 100
	v[idxSNR] = math.Abs(v[idxG7Linear] / v[idxDeltaG7Linear])
	v[idxInvDeltaG7] = 1 / math.Abs(v[idxDeltaG7])
	for i, level := range confidenceLevels {
		v[idxCI95+i] = v[idxDeltaG7] * growth * level.Z * 100
	}
}

// InWindow reports whether the row's date falls on or after now minus window.
// Rows without a date are never in the window.
func (r Row) InWindow(now time.Time, window time.Duration) bool {
	if !r.HasDate() {
		return false
	}
	return !r.Date.Before(now.Add(-window))
}

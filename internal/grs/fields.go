// Package grs turns the growth-rate dataset (grs.csv.gz) into one document per
// (location, lineage) pair covering a trailing time window.
//
// The field list in this file is shared by the transformer, the record views and
// the document mapping; adding a field here adds it everywhere.
package grs

// FieldType is the document-store type of a field.
type FieldType string

const (
	TypeDate    FieldType = "date"
	TypeDouble  FieldType = "double"
	TypeKeyword FieldType = "keyword"
)

// Column names read from the raw table.
const (
	ColumnIndex    = ""
	ColumnDate     = "date"
	ColumnLocation = "loc"
	ColumnLineage  = "lin"
)

// Positions of numeric fields within an observation. Raw columns come first,
// derived columns follow in the order they are computed.
const (
	idxN7 = iota
	idxDeltaN7
	idxNPrev7
	idxDeltaNPrev7
	idxPrevalence7
	idxDeltaPrevalence7
	idxG7
	idxDeltaG7
	idxPrevalence7Pct
	idxDeltaPrevalence7Pct
	idxG7Linear
	idxDeltaG7Linear
	idxSNR
	idxInvDeltaG7
	idxCI95
	idxCI80
	idxCI65
	idxCI50
	idxCI35
	idxCI20
	idxCI5
	numericCount
)

const rawNumericCount = idxDeltaG7 + 1

var numericNames = [numericCount]string{
	idxN7:                  "N_7",
	idxDeltaN7:             "deltaN_7",
	idxNPrev7:              "N_prev_7",
	idxDeltaNPrev7:         "deltaN_prev_7",
	idxPrevalence7:         "Prevalence_7",
	idxDeltaPrevalence7:    "deltaPrevalence_7",
	idxG7:                  "G_7",
	idxDeltaG7:             "deltaG_7",
	idxPrevalence7Pct:      "Prevalence_7_percentage",
	idxDeltaPrevalence7Pct: "deltaPrevalence_7_percentage",
	idxG7Linear:            "G_7_linear",
	idxDeltaG7Linear:       "deltaG_7_linear",
	idxSNR:                 "snr",
	idxInvDeltaG7:          "invDeltaG_7",
	idxCI95:                "confidenceInterval95",
	idxCI80:                "confidenceInterval80",
	idxCI65:                "confidenceInterval65",
	idxCI50:                "confidenceInterval50",
	idxCI35:                "confidenceInterval35",
	idxCI20:                "confidenceInterval20",
	idxCI5:                 "confidenceInterval5",
}

var numericIndex = func() map[string]int {
	m := make(map[string]int, numericCount)
	for i, name := range numericNames {
		m[name] = i
	}
	return m
}()

// ConfidenceLevel pairs a two-sided confidence level (percent) with its z multiplier.
type ConfidenceLevel struct {
	Percent int
	Z       float64
}

// confidenceLevels is ordered like idxCI95..idxCI5.
var confidenceLevels = [...]ConfidenceLevel{
	{Percent: 95, Z: 1.96},
	{Percent: 80, Z: 1.28},
	{Percent: 65, Z: 0.93},
	{Percent: 50, Z: 0.67},
	{Percent: 35, Z: 0.45},
	{Percent: 20, Z: 0.25},
	{Percent: 5, Z: 0.06},
}

// ConfidenceLevels returns the confidence levels emitted as confidenceIntervalK fields.
func ConfidenceLevels() []ConfidenceLevel {
	out := make([]ConfidenceLevel, len(confidenceLevels))
	copy(out, confidenceLevels[:])
	return out
}

// ZMultiplier returns the z multiplier for a confidence level percentage.
func ZMultiplier(percent int) (float64, bool) {
	for _, level := range confidenceLevels {
		if level.Percent == percent {
			return level.Z, true
		}
	}
	return 0, false
}

// Field describes one entry of an observation.
type Field struct {
	Name    string
	Type    FieldType
	Derived bool
}

// Fields returns every observation field in emission order, date first.
func Fields() []Field {
	out := make([]Field, 0, numericCount+1)
	out = append(out, Field{Name: ColumnDate, Type: TypeDate})
	for i, name := range numericNames {
		out = append(out, Field{Name: name, Type: TypeDouble, Derived: i >= rawNumericCount})
	}
	return out
}

// FieldNames returns the observation field names in emission order.
func FieldNames() []string {
	fields := Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// RequiredColumns lists the raw columns that must be present in the input table.
func RequiredColumns() []string {
	out := []string{ColumnDate, ColumnLocation, ColumnLineage}
	return append(out, numericNames[:rawNumericCount]...)
}

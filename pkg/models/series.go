// Package models defines the shared data structures for COT Monitor:
// weekly observation series, enriched (derived-metric) series, and the
// annotation payloads handed to presentation layers.
package models

import (
	"encoding/json"
	"time"
)

// Schema identifies the position-reporting format of a COT series.
type Schema string

const (
	// SchemaLegacy is the legacy report format (commercial /
	// non-commercial / non-reportable), published since 1968.
	SchemaLegacy Schema = "legacy"

	// SchemaDisaggregated is the disaggregated report format
	// (producer-merchant / money manager / swap dealer / other
	// reportables), published since 2009.
	SchemaDisaggregated Schema = "disaggregated"

	// SchemaUnknown means the column set matches neither known format.
	// Derivation proceeds with raw columns only; no net positions are
	// computed.
	SchemaUnknown Schema = "unknown"
)

// Observation is one weekly COT report row. Values maps column name to
// the reported figure; a missing value is an absent key, never a zero.
type Observation struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Value returns the observation's value for a column and whether it is
// present.
func (o Observation) Value(col string) (float64, bool) {
	v, ok := o.Values[col]
	return v, ok
}

// Series is an ordered weekly time series for one instrument. Dates are
// strictly increasing and unique by construction of the fetch layer; the
// derivation engine re-validates this before computing anything.
type Series struct {
	Name         string        `json:"name,omitempty"`          // e.g. "Copper Futures"
	ContractCode string        `json:"contract_code,omitempty"` // e.g. "085692"
	TypeCategory string        `json:"type_category,omitempty"` // e.g. "F_ALL"
	Columns      []string      `json:"columns"`                 // column order as delivered by the source
	Observations []Observation `json:"observations"`
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Observations) }

// HasColumn reports whether the series carries the named column.
func (s *Series) HasColumn(col string) bool {
	for _, c := range s.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// StartDate returns the first report date, or the zero time for an empty
// series.
func (s *Series) StartDate() time.Time {
	if len(s.Observations) == 0 {
		return time.Time{}
	}
	return s.Observations[0].Date
}

// EndDate returns the last report date, or the zero time for an empty
// series.
func (s *Series) EndDate() time.Time {
	if len(s.Observations) == 0 {
		return time.Time{}
	}
	return s.Observations[len(s.Observations)-1].Date
}

// EnrichedSeries is a Series after net-position derivation and
// change/rank computation. Columns lists raw plus derived net columns in
// order; the per-column metric fields live in each observation's Values
// map under suffixed keys (value_change, value_pct_1yr, ...). A metric
// that is not yet computable is an absent key.
type EnrichedSeries struct {
	Series
	Schema Schema `json:"schema"`
}

// OptFloat is a float that may be undefined. It distinguishes "not yet
// computable" from "computed as zero": undefined marshals to JSON null
// and prints as N/A.
type OptFloat struct {
	Value float64
	Valid bool
}

// Float wraps a defined value.
func Float(v float64) OptFloat { return OptFloat{Value: v, Valid: true} }

// Float unwraps the value in the comma-ok style.
func (f OptFloat) Float() (float64, bool) { return f.Value, f.Valid }

// MarshalJSON emits the value, or null when undefined.
func (f OptFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON accepts a number or null.
func (f *OptFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = OptFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Annotation is the per-point statistics payload for one column at one
// report date: the value, week-over-week change, and percentile ranks at
// each horizon. Undefined fields are explicit, never zero or blank.
type Annotation struct {
	Date      time.Time `json:"date"`
	Column    string    `json:"column"`
	Value     float64   `json:"value"`
	Change    OptFloat  `json:"change"`
	ChangePct OptFloat  `json:"change_pct"`
	PctYTD    OptFloat  `json:"pct_ytd"`
	Pct1Yr    OptFloat  `json:"pct_1yr"`
	Pct2Yr    OptFloat  `json:"pct_2yr"`
	Pct5Yr    OptFloat  `json:"pct_5yr"`
}

// PointAnnotation is a chart overlay marker: the signed week-over-week
// percentage change rendered at a data point.
type PointAnnotation struct {
	Date     time.Time `json:"date"`
	Column   string    `json:"column"`
	Value    float64   `json:"value"`
	Text     string    `json:"text"` // e.g. "+5.6%"
	Positive bool      `json:"positive"`
}

// Release is one entry from the CFTC press-release feed.
type Release struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
	Summary   string    `json:"summary,omitempty"`
}

// ScheduleEntry is one row of the CFTC COT release schedule: the weekly
// report date and the date the report is published.
type ScheduleEntry struct {
	ReportDate  time.Time `json:"report_date"`
	ReleaseDate time.Time `json:"release_date"`
}

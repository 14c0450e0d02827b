package cot

import (
	"fmt"
	"math"
	"sort"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// Trailing window sizes in weekly records. The cadence is one record per
// week, so a year is 52 records.
const (
	Window1Yr = 52
	Window2Yr = 104
	Window5Yr = 260
)

// Metric key suffixes. For every numeric column `c` the engine writes
// `c_change`, `c_change_pct`, `c_pct_5yr`, `c_pct_2yr`, `c_pct_1yr` and
// `c_pct_ytd` into the observation Values maps. An absent key means the
// metric is not computable at that index.
const (
	SuffixChange    = "_change"
	SuffixChangePct = "_change_pct"
	SuffixPct5Yr    = "_pct_5yr"
	SuffixPct2Yr    = "_pct_2yr"
	SuffixPct1Yr    = "_pct_1yr"
	SuffixPctYTD    = "_pct_ytd"
)

// DeriveMetrics runs the full derivation pipeline over a raw series:
// date validation, per-column forward fill, schema detection, net
// position derivation, and change/percentile-rank computation for every
// numeric column. The input series is not mutated; metrics are always
// computed over the full history regardless of any window the caller
// applies afterwards.
//
// The only failures are structural: an empty series or non-monotonic
// dates. Missing values, short history, and an unrecognized schema all
// degrade to undefined fields, never errors.
func DeriveMetrics(s *models.Series) (*models.EnrichedSeries, error) {
	if s == nil || len(s.Observations) == 0 {
		return nil, ErrEmptySeries
	}
	if err := validateDates(s.Observations); err != nil {
		return nil, err
	}

	obs := cloneObservations(s.Observations)
	rawCols := numericColumns(s.Columns)
	forwardFill(obs, rawCols)

	schema := DetectSchema(s.Columns)
	derivedCols := deriveNetPositions(s.Columns, obs, schema)

	metricCols := append(append([]string{}, rawCols...), derivedCols...)
	for _, col := range metricCols {
		computeColumnMetrics(col, obs)
	}

	return &models.EnrichedSeries{
		Series: models.Series{
			Name:         s.Name,
			ContractCode: s.ContractCode,
			TypeCategory: s.TypeCategory,
			Columns:      append(append([]string{}, s.Columns...), derivedCols...),
			Observations: obs,
		},
		Schema: schema,
	}, nil
}

// MetricColumns returns the numeric columns of an enriched series, raw
// and derived, in order. These are the columns that carry metric keys.
func MetricColumns(es *models.EnrichedSeries) []string {
	return numericColumns(es.Columns)
}

// computeColumnMetrics writes the change and rank metrics of one column
// into obs. Computed independently per column over the full series.
func computeColumnMetrics(col string, obs []models.Observation) {
	n := len(obs)
	values := make([]float64, n)
	present := make([]bool, n)
	for i := range obs {
		values[i], present[i] = obs[i].Values[col]
	}

	for i := 1; i < n; i++ {
		if !present[i] || !present[i-1] {
			continue
		}
		// Exact difference, no rounding.
		obs[i].Values[col+SuffixChange] = values[i] - values[i-1]
		if values[i-1] != 0 {
			obs[i].Values[col+SuffixChangePct] = round1((values[i]/values[i-1] - 1) * 100)
		}
	}

	for _, rw := range []struct {
		window int
		suffix string
	}{
		{Window5Yr, SuffixPct5Yr},
		{Window2Yr, SuffixPct2Yr},
		{Window1Yr, SuffixPct1Yr},
	} {
		ranks, ok := rollingRank(values, present, rw.window)
		for i := 0; i < n; i++ {
			if ok[i] {
				obs[i].Values[col+rw.suffix] = round1(ranks[i])
			}
		}
	}

	computeYTDRank(col, obs, values, present)
}

// computeYTDRank ranks each value within its own calendar year, from the
// year's first record through the current one. The partition resets every
// January 1; a value ranked high on Dec 31 starts over against the new
// year's partial data. Undefined until the partial year has at least two
// records. Only the YTD rank is year-partitioned; the fixed 1/2/5-year
// windows run straight across year boundaries.
func computeYTDRank(col string, obs []models.Observation, values []float64, present []bool) {
	var (
		year        int
		yearRecords int
		yearVals    []float64 // sorted present values so far this year
	)
	for i := range obs {
		if y := obs[i].Date.Year(); y != year {
			year = y
			yearRecords = 0
			yearVals = yearVals[:0]
		}
		yearRecords++
		if !present[i] {
			continue
		}
		at := sort.SearchFloat64s(yearVals, values[i])
		yearVals = append(yearVals, 0)
		copy(yearVals[at+1:], yearVals[at:])
		yearVals[at] = values[i]

		if yearRecords < 2 {
			continue
		}
		below := sort.SearchFloat64s(yearVals, values[i])
		equal := sort.Search(len(yearVals), func(k int) bool { return yearVals[k] > values[i] }) - below
		avgRank := float64(below) + (float64(equal)+1)/2
		obs[i].Values[col+SuffixPctYTD] = round1(avgRank / float64(len(yearVals)) * 100)
	}
}

// forwardFill replaces each missing value with the most recent prior
// value of the same column. Columns fill independently; values missing
// before a column's first report stay missing.
func forwardFill(obs []models.Observation, columns []string) {
	for _, col := range columns {
		var last float64
		seen := false
		for i := range obs {
			if v, ok := obs[i].Values[col]; ok {
				last, seen = v, true
			} else if seen {
				obs[i].Values[col] = last
			}
		}
	}
}

func validateDates(obs []models.Observation) error {
	for i := 1; i < len(obs); i++ {
		if !obs[i].Date.After(obs[i-1].Date) {
			return fmt.Errorf("%w: %s followed by %s",
				ErrNonMonotonicDates,
				obs[i-1].Date.Format("2006-01-02"),
				obs[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

func cloneObservations(obs []models.Observation) []models.Observation {
	out := make([]models.Observation, len(obs))
	for i, o := range obs {
		values := make(map[string]float64, len(o.Values)*8)
		for k, v := range o.Values {
			values[k] = v
		}
		out[i] = models.Observation{Date: o.Date, Values: values}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

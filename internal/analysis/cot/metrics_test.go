package cot

import (
	"math"
	"testing"
	"time"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// weeklySeries builds a synthetic weekly series starting 2015-01-06.
// value returns (v, present) per column and index.
func weeklySeries(n int, cols []string, value func(col string, i int) (float64, bool)) *models.Series {
	start := time.Date(2015, 1, 6, 0, 0, 0, 0, time.UTC)
	obs := make([]models.Observation, n)
	for i := 0; i < n; i++ {
		vals := make(map[string]float64)
		for _, c := range cols {
			if v, ok := value(c, i); ok {
				vals[c] = v
			}
		}
		obs[i] = models.Observation{Date: start.AddDate(0, 0, 7*i), Values: vals}
	}
	return &models.Series{Name: "Test Futures", ContractCode: "000000", TypeCategory: "F_ALL", Columns: cols, Observations: obs}
}

func constant(v float64) func(string, int) (float64, bool) {
	return func(string, int) (float64, bool) { return v, true }
}

func metric(t *testing.T, es *models.EnrichedSeries, i int, key string) (float64, bool) {
	t.Helper()
	v, ok := es.Observations[i].Values[key]
	return v, ok
}

func TestDeriveMetricsEmptySeries(t *testing.T) {
	_, err := DeriveMetrics(&models.Series{})
	if err != ErrEmptySeries {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestDeriveMetricsNonMonotonicDates(t *testing.T) {
	s := weeklySeries(5, []string{"open_interest"}, constant(100))
	s.Observations[3].Date = s.Observations[1].Date
	if _, err := DeriveMetrics(s); err == nil {
		t.Fatal("expected error for non-monotonic dates")
	}
	s.Observations[3].Date = s.Observations[4].Date.AddDate(0, 0, 7)
	if _, err := DeriveMetrics(s); err == nil {
		t.Fatal("expected error for out-of-order dates")
	}
}

func TestDeriveMetricsDoesNotMutateInput(t *testing.T) {
	s := weeklySeries(10, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return float64(100 + i), true
	})
	if _, err := DeriveMetrics(s); err != nil {
		t.Fatal(err)
	}
	for i, o := range s.Observations {
		if len(o.Values) != 1 {
			t.Fatalf("input observation %d gained keys: %v", i, o.Values)
		}
	}
	if len(s.Columns) != 1 {
		t.Fatalf("input columns mutated: %v", s.Columns)
	}
}

func TestChangeExactDifference(t *testing.T) {
	vals := []float64{100, 250.5, 99.25, 99.25, 1000}
	s := weeklySeries(len(vals), []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return vals[i], true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := metric(t, es, 0, "open_interest_change"); ok {
		t.Error("change should be undefined at index 0")
	}
	for i := 1; i < len(vals); i++ {
		got, ok := metric(t, es, i, "open_interest_change")
		if !ok {
			t.Fatalf("change undefined at index %d", i)
		}
		if want := vals[i] - vals[i-1]; got != want {
			t.Errorf("change[%d] = %v, want %v", i, got, want)
		}
	}

	// 99.25 -> 99.25 is a computed zero, not an undefined field.
	if got, ok := metric(t, es, 3, "open_interest_change"); !ok || got != 0 {
		t.Errorf("expected defined zero change at index 3, got %v, %v", got, ok)
	}
}

func TestChangePct(t *testing.T) {
	vals := []float64{100, 105, 0, 50, 51.5}
	s := weeklySeries(len(vals), []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return vals[i], true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := metric(t, es, 0, "open_interest_change_pct"); ok {
		t.Error("change_pct should be undefined at index 0")
	}
	if got, ok := metric(t, es, 1, "open_interest_change_pct"); !ok || got != 5.0 {
		t.Errorf("change_pct[1] = %v, %v, want 5.0", got, ok)
	}
	// Prior value is zero: undefined, never Inf.
	if _, ok := metric(t, es, 3, "open_interest_change_pct"); ok {
		t.Error("change_pct should be undefined when prior value is zero")
	}
	// (51.5/50-1)*100 = 3.0
	if got, ok := metric(t, es, 4, "open_interest_change_pct"); !ok || got != 3.0 {
		t.Errorf("change_pct[4] = %v, %v, want 3.0", got, ok)
	}
}

func TestChangePctRounding(t *testing.T) {
	vals := []float64{3, 4} // +33.333...%
	s := weeklySeries(len(vals), []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return vals[i], true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := metric(t, es, 1, "open_interest_change_pct"); got != 33.3 {
		t.Errorf("change_pct = %v, want 33.3", got)
	}
}

func TestChangeUndefinedAcrossLeadingGap(t *testing.T) {
	s := weeklySeries(6, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		if i < 2 {
			return 0, false // no reports yet
		}
		return float64(100 + i), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, ok := metric(t, es, i, "open_interest_change"); ok {
			t.Errorf("change should be undefined at index %d (leading gap)", i)
		}
	}
	if _, ok := metric(t, es, 3, "open_interest_change"); !ok {
		t.Error("change should be defined once two consecutive values exist")
	}
}

func TestForwardFillInteriorGap(t *testing.T) {
	s := weeklySeries(5, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		if i == 2 {
			return 0, false
		}
		return float64(10 * (i + 1)), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	// Index 2 forward-filled from index 1.
	if v, ok := es.Observations[2].Value("open_interest"); !ok || v != 20 {
		t.Errorf("expected forward-filled 20 at index 2, got %v, %v", v, ok)
	}
	// Fill makes the change at index 2 a computed zero.
	if v, ok := metric(t, es, 2, "open_interest_change"); !ok || v != 0 {
		t.Errorf("expected zero change over filled gap, got %v, %v", v, ok)
	}
}

func TestAllMissingColumnYieldsAllUndefined(t *testing.T) {
	s := weeklySeries(60, []string{"open_interest", "ghost"}, func(col string, i int) (float64, bool) {
		if col == "ghost" {
			return 0, false
		}
		return float64(i), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatalf("all-missing column must not fail: %v", err)
	}
	for i := range es.Observations {
		for _, sfx := range []string{SuffixChange, SuffixChangePct, SuffixPct1Yr, SuffixPct2Yr, SuffixPct5Yr, SuffixPctYTD} {
			if _, ok := metric(t, es, i, "ghost"+sfx); ok {
				t.Fatalf("ghost%s defined at %d for all-missing column", sfx, i)
			}
		}
	}
}

func TestRolling5YrWindowBoundary(t *testing.T) {
	s := weeklySeries(300, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return float64(i), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < Window5Yr-1; i++ {
		if _, ok := metric(t, es, i, "open_interest_pct_5yr"); ok {
			t.Fatalf("pct_5yr defined at index %d, before window fills", i)
		}
	}
	for i := Window5Yr - 1; i < 300; i++ {
		got, ok := metric(t, es, i, "open_interest_pct_5yr")
		if !ok {
			t.Fatalf("pct_5yr undefined at index %d", i)
		}
		// Strictly increasing values: every full window ranks its last value at 100.
		if got != 100.0 {
			t.Fatalf("pct_5yr[%d] = %v, want 100.0", i, got)
		}
	}
}

func TestRollingRankShortSeriesAllUndefined(t *testing.T) {
	s := weeklySeries(51, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return float64(i), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := range es.Observations {
		if _, ok := metric(t, es, i, "open_interest_pct_1yr"); ok {
			t.Fatalf("pct_1yr defined at %d with only 51 records", i)
		}
	}
}

func TestRollingRankAverageTieConvention(t *testing.T) {
	// All values equal: average rank of 52 ties is 26.5/52 -> 51.0.
	s := weeklySeries(52, []string{"open_interest"}, constant(7))
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := metric(t, es, 51, "open_interest_pct_1yr")
	if !ok {
		t.Fatal("pct_1yr undefined at full window")
	}
	if got != 51.0 {
		t.Errorf("pct_1yr = %v, want 51.0 (average-rank ties)", got)
	}
}

func TestRollingRankLowestValue(t *testing.T) {
	s := weeklySeries(52, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return float64(100 - i), true // strictly decreasing
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := metric(t, es, 51, "open_interest_pct_1yr")
	// Lowest of 52 distinct values: rank 1/52 -> 1.9.
	if got != 1.9 {
		t.Errorf("pct_1yr = %v, want 1.9", got)
	}
}

func TestRankMonotonicInValue(t *testing.T) {
	base := func(i int) float64 { return float64((i*37)%100) + 0.5 }
	for _, bump := range []float64{0, 10, 200} {
		s := weeklySeries(52, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
			v := base(i)
			if i == 51 {
				v += bump
			}
			return v, true
		})
		es, err := DeriveMetrics(s)
		if err != nil {
			t.Fatal(err)
		}
		got, ok := metric(t, es, 51, "open_interest_pct_1yr")
		if !ok {
			t.Fatal("pct_1yr undefined")
		}
		if bump == 0 {
			continue
		}
		base51 := baseRank(t, base)
		if got < base51 {
			t.Errorf("rank decreased from %v to %v when value increased by %v", base51, got, bump)
		}
	}
}

func baseRank(t *testing.T, base func(int) float64) float64 {
	t.Helper()
	s := weeklySeries(52, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return base(i), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := es.Observations[51].Values["open_interest_pct_1yr"]
	if !ok {
		t.Fatal("pct_1yr undefined for base series")
	}
	return v
}

func TestRolling1YrRunsAcrossYearBoundary(t *testing.T) {
	// 104 records spanning two calendar years: the 1yr window at the end
	// covers records from both years. With strictly increasing values the
	// rank stays 100 straight through January.
	s := weeklySeries(104, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return float64(i), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := Window1Yr - 1; i < 104; i++ {
		if got, ok := metric(t, es, i, "open_interest_pct_1yr"); !ok || got != 100.0 {
			t.Fatalf("pct_1yr[%d] = %v, %v; fixed windows must not reset at year end", i, got, ok)
		}
	}
}

func TestYTDRankResetsEachYear(t *testing.T) {
	// Weekly series from 2015-01-06 runs into 2016 after 52 records.
	s := weeklySeries(60, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return float64(i), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}

	firstOf2016 := -1
	for i, o := range es.Observations {
		if o.Date.Year() == 2016 {
			firstOf2016 = i
			break
		}
	}
	if firstOf2016 < 0 {
		t.Fatal("series does not reach 2016")
	}

	// Dec 29 2015 is the year's maximum: 100th percentile YTD.
	if got, ok := metric(t, es, firstOf2016-1, "open_interest_pct_ytd"); !ok || got != 100.0 {
		t.Errorf("last 2015 record pct_ytd = %v, %v, want 100.0", got, ok)
	}
	// First record of 2016: fewer than 2 records this year, undefined.
	if _, ok := metric(t, es, firstOf2016, "open_interest_pct_ytd"); ok {
		t.Error("first record of new year should have undefined pct_ytd")
	}
	// Second record of 2016 ranks only against the new year's two records.
	if got, ok := metric(t, es, firstOf2016+1, "open_interest_pct_ytd"); !ok || got != 100.0 {
		t.Errorf("second 2016 record pct_ytd = %v, %v, want 100.0", got, ok)
	}
}

func TestYTDRankExpandingNotWholeYear(t *testing.T) {
	// Values fall over the year: each record is the lowest so far, so the
	// expanding YTD rank stays at the bottom even though later (higher-
	// index) records would outrank it in a whole-year comparison.
	s := weeklySeries(10, []string{"open_interest"}, func(_ string, i int) (float64, bool) {
		return float64(100 - i), true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < 10; i++ {
		got, ok := metric(t, es, i, "open_interest_pct_ytd")
		if !ok {
			t.Fatalf("pct_ytd undefined at %d", i)
		}
		want := round1(1.0 / float64(i+1) * 100)
		if got != want {
			t.Errorf("pct_ytd[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestYTDRankTies(t *testing.T) {
	s := weeklySeries(2, []string{"open_interest"}, constant(5))
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	// Two equal values: average rank 1.5 of 2 -> 75.0.
	if got, ok := metric(t, es, 1, "open_interest_pct_ytd"); !ok || got != 75.0 {
		t.Errorf("pct_ytd = %v, %v, want 75.0", got, ok)
	}
}

func TestMetricColumnsExcludeIdentifiers(t *testing.T) {
	es := &models.EnrichedSeries{Series: models.Series{
		Columns: []string{"date", "contract_code", "type", "open_interest", ColCommercialNet},
	}}
	cols := MetricColumns(es)
	if len(cols) != 2 || cols[0] != "open_interest" || cols[1] != ColCommercialNet {
		t.Errorf("MetricColumns = %v", cols)
	}
}

// --- rolling rank unit tests ---

func TestRollingRankAgainstNaiveRank(t *testing.T) {
	values := make([]float64, 120)
	present := make([]bool, 120)
	for i := range values {
		values[i] = float64((i*53)%17) * 1.5 // plenty of ties
		present[i] = true
	}
	const window = 30

	got, ok := rollingRank(values, present, window)
	for i := window - 1; i < len(values); i++ {
		if !ok[i] {
			t.Fatalf("rank undefined at %d", i)
		}
		want := naiveRank(values[i-window+1:i+1], values[i])
		if math.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("rank[%d] = %v, naive = %v", i, got[i], want)
		}
	}
}

// naiveRank is the O(w) reference: average-rank percentile of x among w.
func naiveRank(window []float64, x float64) float64 {
	below, equal := 0, 0
	for _, v := range window {
		switch {
		case v < x:
			below++
		case v == x:
			equal++
		}
	}
	return (float64(below) + (float64(equal)+1)/2) / float64(len(window)) * 100
}

func TestRollingRankWindowWithMissingUndefined(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	present := []bool{true, false, true, true, true}
	_, ok := rollingRank(values, present, 3)
	if ok[2] || ok[3] {
		t.Error("windows touching the missing value must be undefined")
	}
	if !ok[4] {
		t.Error("first clean window should be defined")
	}
}

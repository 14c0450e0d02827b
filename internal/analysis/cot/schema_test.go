package cot

import (
	"testing"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

func TestDetectSchema(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    models.Schema
	}{
		{
			name:    "disaggregated",
			columns: []string{"date", "producer_merchant_processor_user_longs", "producer_merchant_processor_user_shorts", "money_manager_longs"},
			want:    models.SchemaDisaggregated,
		},
		{
			name:    "legacy",
			columns: []string{"date", "commercial_longs", "commercial_shorts", "non_commercial_longs"},
			want:    models.SchemaLegacy,
		},
		{
			// Disaggregated marker wins even if legacy-looking columns coexist.
			name:    "disaggregated takes precedence",
			columns: []string{"commercial_longs", "producer_merchant_processor_user_longs"},
			want:    models.SchemaDisaggregated,
		},
		{
			name:    "unknown",
			columns: []string{"date", "open_interest", "market_participation"},
			want:    models.SchemaUnknown,
		},
		{
			name:    "empty",
			columns: nil,
			want:    models.SchemaUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectSchema(tt.columns); got != tt.want {
				t.Errorf("DetectSchema(%v) = %v, want %v", tt.columns, got, tt.want)
			}
		})
	}
}

func TestCategories(t *testing.T) {
	legacy := Categories(models.SchemaLegacy)
	if len(legacy) != 3 {
		t.Fatalf("legacy categories = %d, want 3", len(legacy))
	}
	if legacy[1].Category != CategoryLargeSpeculator || legacy[1].LongColumn != "non_commercial_longs" {
		t.Errorf("unexpected legacy large speculator mapping: %+v", legacy[1])
	}

	disagg := Categories(models.SchemaDisaggregated)
	if len(disagg) != 4 {
		t.Fatalf("disaggregated categories = %d, want 4", len(disagg))
	}
	if disagg[1].LongColumn != "money_manager_longs" || disagg[1].NetColumn != ColLargeSpeculatorNet {
		t.Errorf("unexpected disaggregated large speculator mapping: %+v", disagg[1])
	}

	if got := Categories(models.SchemaUnknown); got != nil {
		t.Errorf("unknown schema should have no categories, got %v", got)
	}
}

func TestNetDerivationLegacy(t *testing.T) {
	cols := []string{"commercial_longs", "commercial_shorts", "non_commercial_longs", "non_commercial_shorts", "non_reportable_longs", "non_reportable_shorts"}
	s := weeklySeries(3, cols, func(col string, i int) (float64, bool) {
		vals := map[string]float64{
			"commercial_longs": 500, "commercial_shorts": 200,
			"non_commercial_longs": 100, "non_commercial_shorts": 40,
			"non_reportable_longs": 30, "non_reportable_shorts": 50,
		}
		return vals[col], true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}

	if es.Schema != models.SchemaLegacy {
		t.Fatalf("schema = %v, want legacy", es.Schema)
	}
	want := map[string]float64{
		ColCommercialNet:      300,
		ColLargeSpeculatorNet: 60, // no spreading column: plain long - short
		ColSmallSpeculatorNet: -20,
	}
	for col, wv := range want {
		if got, ok := es.Observations[0].Value(col); !ok || got != wv {
			t.Errorf("%s = %v, %v, want %v", col, got, ok, wv)
		}
	}
	if !es.HasColumn(ColCommercialNet) {
		t.Error("derived column missing from Columns")
	}
}

func TestNetDerivationSpreadingAdjustment(t *testing.T) {
	cols := []string{"commercial_longs", "commercial_shorts", "non_commercial_longs", "non_commercial_shorts", "spreading"}
	s := weeklySeries(2, cols, func(col string, i int) (float64, bool) {
		vals := map[string]float64{
			"commercial_longs": 500, "commercial_shorts": 450,
			"non_commercial_longs": 100, "non_commercial_shorts": 40,
			"spreading": 30,
		}
		return vals[col], true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}

	// (100 - 40) - 30 = 30.
	if got, _ := es.Observations[0].Value(ColLargeSpeculatorNet); got != 30 {
		t.Errorf("Large Speculator Net = %v, want 30", got)
	}
	// Spreading must not leak into any other net.
	if got, _ := es.Observations[0].Value(ColCommercialNet); got != 50 {
		t.Errorf("Commercial Net = %v, want 50", got)
	}
}

func TestNetDerivationDisaggregated(t *testing.T) {
	cols := []string{
		"producer_merchant_processor_user_longs", "producer_merchant_processor_user_shorts",
		"money_manager_longs", "money_manager_shorts",
		"other_reportable_longs", "other_reportable_shorts",
		"swap_dealer_longs", "swap_dealer_shorts",
		"spreading",
	}
	s := weeklySeries(2, cols, func(col string, i int) (float64, bool) {
		vals := map[string]float64{
			"producer_merchant_processor_user_longs": 900, "producer_merchant_processor_user_shorts": 700,
			"money_manager_longs": 400, "money_manager_shorts": 100,
			"other_reportable_longs": 60, "other_reportable_shorts": 80,
			"swap_dealer_longs": 250, "swap_dealer_shorts": 150,
			"spreading": 50,
		}
		return vals[col], true
	})
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}

	if es.Schema != models.SchemaDisaggregated {
		t.Fatalf("schema = %v, want disaggregated", es.Schema)
	}
	want := map[string]float64{
		ColCommercialNet:      200,
		ColLargeSpeculatorNet: 250, // (400-100)-50
		ColOtherReportableNet: -20,
		ColSwapDealerNet:      100,
	}
	for col, wv := range want {
		if got, ok := es.Observations[1].Value(col); !ok || got != wv {
			t.Errorf("%s = %v, %v, want %v", col, got, ok, wv)
		}
	}
}

func TestNetDerivationPartialCategories(t *testing.T) {
	// Commercial longs/shorts only: the other legacy categories have no
	// columns and must produce no nets.
	cols := []string{"commercial_longs", "commercial_shorts", "non_commercial_longs"}
	s := weeklySeries(2, cols, func(col string, i int) (float64, bool) { return 10, true })
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatal(err)
	}
	if !es.HasColumn(ColCommercialNet) {
		t.Error("expected Commercial Net")
	}
	if es.HasColumn(ColLargeSpeculatorNet) {
		t.Error("Large Speculator Net derived without a shorts column")
	}
}

func TestUnknownSchemaPassthrough(t *testing.T) {
	cols := []string{"open_interest", "market_participation"}
	s := weeklySeries(3, cols, constant(42))
	es, err := DeriveMetrics(s)
	if err != nil {
		t.Fatalf("unknown schema must not fail: %v", err)
	}
	if es.Schema != models.SchemaUnknown {
		t.Fatalf("schema = %v, want unknown", es.Schema)
	}
	if len(es.Columns) != len(cols) {
		t.Errorf("unknown schema must add no derived columns, got %v", es.Columns)
	}
	// Raw metrics still computed.
	if _, ok := es.Observations[1].Value("open_interest" + SuffixChange); !ok {
		t.Error("raw column metrics missing for unknown schema")
	}
}

// --- taxonomy ---

func TestTypeCategory(t *testing.T) {
	tests := []struct {
		base     string
		legacy   bool
		dataType string
		suffix   string
		want     string
	}{
		{BaseFutures, false, DataAll, "", "F_ALL"},
		{BaseFutures, true, DataAll, SuffixConcentration, "F_L_ALL_CR"},
		{BaseFuturesAndOptions, false, DataChange, SuffixOpenInterest, "FO_CHG_OI"},
		{BaseIndexTraders, false, DataAll, SuffixTraderCount, "CITS_ALL_NT"},
	}
	for _, tt := range tests {
		if got := TypeCategory(tt.base, tt.legacy, tt.dataType, tt.suffix); got != tt.want {
			t.Errorf("TypeCategory(%q, %v, %q, %q) = %q, want %q",
				tt.base, tt.legacy, tt.dataType, tt.suffix, got, tt.want)
		}
	}
}

func TestTypeCategoryOptions(t *testing.T) {
	opts := TypeCategoryOptions(BaseFutures, true, DataAll, []string{SuffixConcentration, SuffixOpenInterest})
	want := []string{"F_L_ALL", "F_L_ALL_CR", "F_L_ALL_OI"}
	if len(opts) != len(want) {
		t.Fatalf("options = %v, want %v", opts, want)
	}
	for i := range want {
		if opts[i] != want[i] {
			t.Errorf("options[%d] = %q, want %q", i, opts[i], want[i])
		}
	}
}

func TestValidateTypeCategory(t *testing.T) {
	for _, valid := range []string{"F_ALL", "F_L_ALL", "FO_CHG", "F_L_ALL_CR", "FO_ALL_NT", "CITS_ALL", "F_CHG_OI"} {
		if err := ValidateTypeCategory(valid); err != nil {
			t.Errorf("ValidateTypeCategory(%q) = %v, want nil", valid, err)
		}
	}
	for _, invalid := range []string{"", "X_ALL", "F_SOME", "F_ALL_XX", "ALL"} {
		if err := ValidateTypeCategory(invalid); err == nil {
			t.Errorf("ValidateTypeCategory(%q) = nil, want error", invalid)
		}
	}
}

func TestAssetClass(t *testing.T) {
	tests := []struct {
		group string
		want  string
	}{
		{"NATURAL GAS", AssetEnergy},
		{"precious metals", AssetMetals},
		{"GRAINS AND OILSEEDS", AssetAgriculture},
		{" Softs ", AssetAgriculture},
		{"FINANCIAL INSTRUMENTS", AssetOther},
		{"", AssetOther},
	}
	for _, tt := range tests {
		if got := AssetClass(tt.group); got != tt.want {
			t.Errorf("AssetClass(%q) = %q, want %q", tt.group, got, tt.want)
		}
	}
}

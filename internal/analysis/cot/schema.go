// Package cot implements the derived-metrics engine for weekly
// Commitments of Traders data: schema detection, net-position derivation,
// week-over-week changes, multi-window percentile ranks, date-range
// windowing, annotation building, and CSV export. All functions are pure
// transformations over models.Series values.
package cot

import (
	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// Category is a logical trader category, independent of which report
// format realizes it.
type Category string

const (
	CategoryCommercial      Category = "commercial"
	CategoryLargeSpeculator Category = "large_speculator"
	CategorySmallSpeculator Category = "small_speculator"
	CategoryOtherReportable Category = "other_reportable"
	CategorySwapDealer      Category = "swap_dealer"
)

// Derived net-position column names.
const (
	ColCommercialNet      = "Commercial Net"
	ColLargeSpeculatorNet = "Large Speculator Net"
	ColSmallSpeculatorNet = "Small Speculator Net"
	ColOtherReportableNet = "Other Reportables Net"
	ColSwapDealerNet      = "Swap Dealer Net"
)

// ColSpreading is the spread-position column. When present it is
// subtracted from the large-speculator net and from nothing else.
const ColSpreading = "spreading"

// CategoryMapping binds a logical category to the long/short columns
// that realize it in a given schema and to the derived net column name.
type CategoryMapping struct {
	Category    Category
	LongColumn  string
	ShortColumn string
	NetColumn   string
}

var legacyCategories = []CategoryMapping{
	{CategoryCommercial, "commercial_longs", "commercial_shorts", ColCommercialNet},
	{CategoryLargeSpeculator, "non_commercial_longs", "non_commercial_shorts", ColLargeSpeculatorNet},
	{CategorySmallSpeculator, "non_reportable_longs", "non_reportable_shorts", ColSmallSpeculatorNet},
}

var disaggregatedCategories = []CategoryMapping{
	{CategoryCommercial, "producer_merchant_processor_user_longs", "producer_merchant_processor_user_shorts", ColCommercialNet},
	{CategoryLargeSpeculator, "money_manager_longs", "money_manager_shorts", ColLargeSpeculatorNet},
	{CategoryOtherReportable, "other_reportable_longs", "other_reportable_shorts", ColOtherReportableNet},
	{CategorySwapDealer, "swap_dealer_longs", "swap_dealer_shorts", ColSwapDealerNet},
}

// DetectSchema classifies a column set into one of the two known report
// formats. An unrecognized set yields SchemaUnknown, which is a valid
// outcome, not an error: derivation then passes raw columns through
// without net positions.
func DetectSchema(columns []string) models.Schema {
	has := func(col string) bool {
		for _, c := range columns {
			if c == col {
				return true
			}
		}
		return false
	}
	switch {
	case has("producer_merchant_processor_user_longs"):
		return models.SchemaDisaggregated
	case has("commercial_longs"):
		return models.SchemaLegacy
	default:
		return models.SchemaUnknown
	}
}

// Categories returns the category mappings for a schema in stable
// derivation order. SchemaUnknown has none.
func Categories(schema models.Schema) []CategoryMapping {
	switch schema {
	case models.SchemaLegacy:
		return legacyCategories
	case models.SchemaDisaggregated:
		return disaggregatedCategories
	default:
		return nil
	}
}

// identifierColumns are excluded from every numeric derivation.
var identifierColumns = map[string]bool{
	"date":          true,
	"contract_code": true,
	"type":          true,
	"None":          true,
}

// numericColumns filters a column list down to the ones metrics are
// computed for.
func numericColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if !identifierColumns[c] {
			out = append(out, c)
		}
	}
	return out
}

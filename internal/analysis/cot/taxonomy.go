package cot

import (
	"fmt"
	"strings"
)

// Base report types accepted by TypeCategory.
const (
	BaseFutures           = "F"    // futures only
	BaseFuturesAndOptions = "FO"   // futures and options combined
	BaseIndexTraders      = "CITS" // commodity index traders supplement
)

// Data types accepted by TypeCategory.
const (
	DataAll    = "ALL" // all positions
	DataChange = "CHG" // change in positions
)

// Optional sub-category suffixes.
const (
	SuffixConcentration = "_CR" // concentration ratios (largest traders)
	SuffixTraderCount   = "_NT" // number of traders
	SuffixOpenInterest  = "_OI" // open interest
)

// TypeCategory builds a dataset type-category label from its parts, e.g.
// ("F", true, "ALL", "_CR") -> "F_L_ALL_CR". The legacy infix applies to
// the QDL/LFON dataset only.
func TypeCategory(base string, legacy bool, dataType, suffix string) string {
	prefix := base
	if legacy {
		prefix += "_L"
	}
	return prefix + "_" + dataType + suffix
}

// TypeCategoryOptions enumerates the selectable type categories for a
// base/legacy/dataType combination: the bare category first, then one per
// requested suffix.
func TypeCategoryOptions(base string, legacy bool, dataType string, suffixes []string) []string {
	opts := make([]string, 0, len(suffixes)+1)
	opts = append(opts, TypeCategory(base, legacy, dataType, ""))
	for _, sfx := range suffixes {
		opts = append(opts, TypeCategory(base, legacy, dataType, sfx))
	}
	return opts
}

// ValidateTypeCategory checks a type-category label for a known shape.
func ValidateTypeCategory(tc string) error {
	rest, ok := cutPrefixAny(tc, []string{"FO_", "F_", "CITS_"})
	if !ok {
		return fmt.Errorf("type category %q: unknown base type", tc)
	}
	rest = strings.TrimPrefix(rest, "L_")
	rest, ok = cutPrefixAny(rest, []string{DataAll, DataChange})
	if !ok {
		return fmt.Errorf("type category %q: expected ALL or CHG", tc)
	}
	switch rest {
	case "", SuffixConcentration, SuffixTraderCount, SuffixOpenInterest:
		return nil
	}
	return fmt.Errorf("type category %q: unknown suffix %q", tc, rest)
}

func cutPrefixAny(s string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(s, p); ok {
			return rest, true
		}
	}
	return s, false
}

// Asset classes returned by AssetClass.
const (
	AssetEnergy      = "Energy"
	AssetMetals      = "Metals"
	AssetAgriculture = "Agriculture"
	AssetOther       = "Other"
)

var assetClassByGroup = map[string]string{
	"PETROLEUM AND PRODUCTS": AssetEnergy,
	"ELECTRICITY":            AssetEnergy,
	"NATURAL GAS":            AssetEnergy,
	"PRECIOUS METALS":        AssetMetals,
	"BASE METALS":            AssetMetals,
	"GRAINS AND OILSEEDS":    AssetAgriculture,
	"LIVESTOCK":              AssetAgriculture,
	"DAIRY":                  AssetAgriculture,
	"SOFTS":                  AssetAgriculture,
	"WOOD PRODUCTS":          AssetAgriculture,
}

// AssetClass maps a CFTC commodity group name to a broad asset class.
func AssetClass(commodityGroup string) string {
	if cls, ok := assetClassByGroup[strings.ToUpper(strings.TrimSpace(commodityGroup))]; ok {
		return cls
	}
	return AssetOther
}

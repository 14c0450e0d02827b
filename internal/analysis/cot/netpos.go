package cot

import (
	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// deriveNetPositions appends one net-position column per category the
// detected schema realizes in this series, writing into obs in place
// (obs is the engine's working copy, never the caller's series).
//
// net = long - short. The large-speculator net additionally has the
// spread position subtracted when the record carries one; a record
// without spreading is treated as spreading 0, not an error. Spreading
// never touches any other category's net.
//
// Returns the derived column names in derivation order. A category whose
// long or short column is absent from the series produces no net column.
func deriveNetPositions(columns []string, obs []models.Observation, schema models.Schema) []string {
	has := make(map[string]bool, len(columns))
	for _, c := range columns {
		has[c] = true
	}

	var derived []string
	for _, cm := range Categories(schema) {
		if !has[cm.LongColumn] || !has[cm.ShortColumn] {
			continue
		}
		derived = append(derived, cm.NetColumn)

		for i := range obs {
			long, okL := obs[i].Values[cm.LongColumn]
			short, okS := obs[i].Values[cm.ShortColumn]
			if !okL || !okS {
				continue // leading gap before first report of this column
			}
			net := long - short
			if cm.Category == CategoryLargeSpeculator {
				if spread, ok := obs[i].Values[ColSpreading]; ok {
					net -= spread
				}
			}
			obs[i].Values[cm.NetColumn] = net
		}
	}
	return derived
}

package cot

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// ExportCSV writes the windowed series as CSV: a date column followed by
// the selected columns in the order given, header row using the raw
// column names. Values use the shortest round-trippable decimal form, so
// re-parsing the file reproduces the exact (date, value) pairs; missing
// values are empty cells.
func ExportCSV(w io.Writer, es *models.EnrichedSeries, columns []string) error {
	if es == nil || len(es.Observations) == 0 {
		return ErrEmptySeries
	}

	cw := csv.NewWriter(w)
	header := append([]string{"date"}, columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	row := make([]string, len(header))
	for _, o := range es.Observations {
		row[0] = o.Date.Format("2006-01-02")
		for i, col := range columns {
			if v, ok := o.Value(col); ok {
				row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			} else {
				row[i+1] = ""
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

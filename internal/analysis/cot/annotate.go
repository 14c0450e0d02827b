package cot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// BuildAnnotations produces one statistics annotation per (column,
// record) pair over the windowed series, skipping records with no value
// for the column. Windows longer than AnnotationPeriodLimit periods get
// an empty result; the metric fields stay available on the series
// itself.
func BuildAnnotations(windowed *models.EnrichedSeries, columns []string) []models.Annotation {
	anns := []models.Annotation{}
	if windowed == nil || len(windowed.Observations) > AnnotationPeriodLimit {
		return anns
	}
	for _, col := range columns {
		for _, o := range windowed.Observations {
			if a, ok := annotationFor(o, col); ok {
				anns = append(anns, a)
			}
		}
	}
	return anns
}

// PointAnnotations produces chart overlay markers: the signed
// week-over-week percentage change at each point where it is defined.
// Gated by the same period limit as BuildAnnotations.
func PointAnnotations(windowed *models.EnrichedSeries, columns []string) []models.PointAnnotation {
	points := []models.PointAnnotation{}
	if windowed == nil || len(windowed.Observations) > AnnotationPeriodLimit {
		return points
	}
	for _, col := range columns {
		for _, o := range windowed.Observations {
			value, ok := o.Value(col)
			if !ok {
				continue
			}
			pct, ok := o.Value(col + SuffixChangePct)
			if !ok {
				continue
			}
			points = append(points, models.PointAnnotation{
				Date:     o.Date,
				Column:   col,
				Value:    value,
				Text:     fmt.Sprintf("%+.1f%%", pct),
				Positive: pct > 0,
			})
		}
	}
	return points
}

// HoverTexts renders one hover string per in-range record for a column,
// empty where the value is missing. Hover text is not gated by the
// period limit.
func HoverTexts(windowed *models.EnrichedSeries, column string) []string {
	texts := make([]string, len(windowed.Observations))
	for i, o := range windowed.Observations {
		if a, ok := annotationFor(o, column); ok {
			texts[i] = HoverText(a)
		}
	}
	return texts
}

// HoverText formats a single annotation the way the chart layer displays
// it, with every undefined field spelled out as N/A rather than blank
// or zero.
func HoverText(a models.Annotation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", a.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "<br>%s: %s", a.Column, grouped(a.Value, false))

	if a.Change.Valid {
		fmt.Fprintf(&b, "<br>Change: %s", grouped(a.Change.Value, true))
		if a.ChangePct.Valid {
			fmt.Fprintf(&b, " (%+.1f%%)", a.ChangePct.Value)
		}
	} else {
		b.WriteString("<br>Change: N/A")
	}

	writePercentile(&b, "YTD Percentile", a.PctYTD)
	writePercentile(&b, "1Y Percentile", a.Pct1Yr)
	writePercentile(&b, "2Y Percentile", a.Pct2Yr)
	writePercentile(&b, "5Y Percentile", a.Pct5Yr)
	return b.String()
}

func writePercentile(b *strings.Builder, label string, v models.OptFloat) {
	if v.Valid {
		fmt.Fprintf(b, "<br>%s: %.1f%%", label, v.Value)
	} else {
		fmt.Fprintf(b, "<br>%s: N/A", label)
	}
}

func annotationFor(o models.Observation, col string) (models.Annotation, bool) {
	value, ok := o.Value(col)
	if !ok {
		return models.Annotation{}, false
	}
	return models.Annotation{
		Date:      o.Date,
		Column:    col,
		Value:     value,
		Change:    optValue(o, col+SuffixChange),
		ChangePct: optValue(o, col+SuffixChangePct),
		PctYTD:    optValue(o, col+SuffixPctYTD),
		Pct1Yr:    optValue(o, col+SuffixPct1Yr),
		Pct2Yr:    optValue(o, col+SuffixPct2Yr),
		Pct5Yr:    optValue(o, col+SuffixPct5Yr),
	}, true
}

func optValue(o models.Observation, key string) models.OptFloat {
	if v, ok := o.Value(key); ok {
		return models.Float(v)
	}
	return models.OptFloat{}
}

// ColumnColor returns the display color for a column, matching the
// category palette the UI uses: red commercial, blue large speculator,
// goldenrod small speculator, purple other reportables, orange swap
// dealer. Unmapped columns return "" and take the chart's default cycle.
func ColumnColor(column string) string {
	c := strings.ToLower(column)
	switch {
	case strings.Contains(c, "commercial net"):
		return "#d62728"
	case strings.Contains(c, "large speculator net"):
		return "#1f77b4"
	case strings.Contains(c, "small speculator net"):
		return "#B8860B"
	case strings.Contains(c, "other reportables net"):
		return "#9467bd"
	case strings.Contains(c, "swap dealer net"):
		return "#ff7f0e"
	case strings.Contains(c, "non_commercial"), strings.Contains(c, "money_manager"):
		return "#1f77b4"
	case strings.Contains(c, "commercial"), strings.Contains(c, "producer"):
		return "#d62728"
	case strings.Contains(c, "non_reportable"):
		return "#B8860B"
	case strings.Contains(c, "swap"):
		return "#ff7f0e"
	case strings.Contains(c, "dealer"):
		return "#2ca02c"
	case strings.Contains(c, "other"):
		return "#9467bd"
	default:
		return ""
	}
}

// grouped formats a value with thousands separators and no decimals,
// optionally with an explicit sign, e.g. 1234567 -> "1,234,567".
func grouped(v float64, signed bool) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	} else if signed {
		b.WriteByte('+')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

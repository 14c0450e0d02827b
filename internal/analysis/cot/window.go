package cot

import (
	"fmt"
	"time"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// AnnotationPeriodLimit is the largest window, in report periods, for
// which per-point annotations are built. Larger windows keep all metric
// fields but suppress annotations; the cutoff is presentation policy,
// not data availability.
const AnnotationPeriodLimit = 90

// Window returns the sub-series with dates in [start, end] inclusive and
// its period count. Start after end, or a range entirely outside the
// series bounds, is ErrInvalidDateRange: the caller must clamp or reject
// rather than receive a silently empty window.
func Window(es *models.EnrichedSeries, start, end time.Time) (*models.EnrichedSeries, int, error) {
	if es == nil || len(es.Observations) == 0 {
		return nil, 0, ErrEmptySeries
	}
	if start.After(end) {
		return nil, 0, fmt.Errorf("%w: start %s after end %s",
			ErrInvalidDateRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if end.Before(es.StartDate()) || start.After(es.EndDate()) {
		return nil, 0, fmt.Errorf("%w: %s to %s outside series %s to %s",
			ErrInvalidDateRange,
			start.Format("2006-01-02"), end.Format("2006-01-02"),
			es.StartDate().Format("2006-01-02"), es.EndDate().Format("2006-01-02"))
	}

	var windowed []models.Observation
	for _, o := range es.Observations {
		if o.Date.Before(start) || o.Date.After(end) {
			continue
		}
		windowed = append(windowed, o)
	}

	out := &models.EnrichedSeries{
		Series: models.Series{
			Name:         es.Name,
			ContractCode: es.ContractCode,
			TypeCategory: es.TypeCategory,
			Columns:      es.Columns,
			Observations: windowed,
		},
		Schema: es.Schema,
	}
	return out, len(windowed), nil
}

package cot

import "fmt"

// ErrEmptySeries is returned when a series has no observations. Callers
// must refuse to render and surface "no data".
var ErrEmptySeries = fmt.Errorf("series has no observations")

// ErrNonMonotonicDates is returned when report dates are not strictly
// increasing. This is the one structural hard failure of the engine;
// data-quality problems (missing values, short history, unknown schema)
// only produce undefined fields.
var ErrNonMonotonicDates = fmt.Errorf("report dates not strictly increasing")

// ErrInvalidDateRange is returned by Window when start is after end or
// the requested range does not overlap the series at all. An empty window
// is never returned silently.
var ErrInvalidDateRange = fmt.Errorf("invalid date range")

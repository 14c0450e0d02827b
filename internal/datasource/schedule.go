package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// cftcScheduleURL lists upcoming report and release dates for the
// commitments reports.
const cftcScheduleURL = "https://www.cftc.gov/MarketReports/CommitmentsofTraders/ReleaseSchedule/index.htm"

// Schedule scrapes the CFTC release calendar.
type Schedule struct {
	// PageURL overrides the calendar page; tests point it at a local server.
	PageURL string

	limiter *RateLimiter
}

// NewSchedule creates a release-calendar source.
func NewSchedule() *Schedule {
	return &Schedule{
		PageURL: cftcScheduleURL,
		limiter: NewRateLimiter(1, time.Second),
	}
}

// Fetch returns the published calendar entries sorted by release date.
func (s *Schedule) Fetch(ctx context.Context) ([]models.ScheduleEntry, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := doGet(ctx, s.PageURL, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse schedule page: %w", err)
	}

	var entries []models.ScheduleEntry
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		report, err1 := parseScheduleDate(cells.Eq(0).Text())
		release, err2 := parseScheduleDate(cells.Eq(1).Text())
		if err1 != nil || err2 != nil {
			// Header rows and footnotes share the table markup.
			return
		}
		entries = append(entries, models.ScheduleEntry{
			ReportDate:  report,
			ReleaseDate: release,
		})
	})
	if len(entries) == 0 {
		return nil, fmt.Errorf("no calendar entries found at %s", s.PageURL)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ReleaseDate.Before(entries[j].ReleaseDate)
	})
	return entries, nil
}

// NextRelease returns the first calendar entry releasing at or after now.
func (s *Schedule) NextRelease(ctx context.Context, now time.Time) (models.ScheduleEntry, error) {
	entries, err := s.Fetch(ctx)
	if err != nil {
		return models.ScheduleEntry{}, err
	}
	// Compare on now's own calendar date; Truncate would cut at a UTC
	// day boundary and roll the date forward during an Eastern evening.
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for _, e := range entries {
		if !e.ReleaseDate.Before(day) {
			return e, nil
		}
	}
	return models.ScheduleEntry{}, fmt.Errorf("calendar has no release on or after %s", now.Format("2006-01-02"))
}

// parseScheduleDate accepts the couple of formats the calendar has used
// over the years, e.g. "March 5, 2024" and "03/05/2024".
func parseScheduleDate(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, " ", " "))
	for _, layout := range []string{"January 2, 2006", "01/02/2006", "2006-01-02"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized calendar date %q", s)
}

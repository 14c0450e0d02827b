// Package utils holds small date helpers shared by the CLI and API.
// Commitments reports snapshot positions as of Tuesday's close and are
// published Friday afternoon Eastern time.
package utils

import (
	"time"
)

// Eastern is the CFTC publication time zone.
var Eastern *time.Location

func init() {
	var err error
	Eastern, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback: fixed EST if the tz database is not available.
		Eastern = time.FixedZone("EST", -5*60*60)
	}
}

// releaseHour is the usual publication time, 3:30 p.m. Eastern.
const (
	releaseHour   = 15
	releaseMinute = 30
)

// NowEastern returns the current time in the publication zone.
func NowEastern() time.Time {
	return time.Now().In(Eastern)
}

// LastReportDate returns the Tuesday of the most recent completed
// reporting week on or before t.
func LastReportDate(t time.Time) time.Time {
	d := t.In(Eastern)
	for d.Weekday() != time.Tuesday {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, Eastern)
}

// ReleaseTimeFor returns the scheduled publication time for a report
// date: the following Friday at 3:30 p.m. Eastern. Holiday slips are
// handled by the published calendar, not here.
func ReleaseTimeFor(reportDate time.Time) time.Time {
	d := reportDate.In(Eastern)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), releaseHour, releaseMinute, 0, 0, Eastern)
}

// LatestReleasedReportDate returns the report date of the newest data
// already published at time t. Between Tuesday's snapshot and Friday's
// release the previous week's report is still the latest.
func LatestReleasedReportDate(t time.Time) time.Time {
	report := LastReportDate(t)
	if t.In(Eastern).Before(ReleaseTimeFor(report)) {
		report = report.AddDate(0, 0, -7)
	}
	return report
}

// IsReleaseDay reports whether t falls on a scheduled publication day.
func IsReleaseDay(t time.Time) bool {
	return t.In(Eastern).Weekday() == time.Friday
}

// ReportWeeksBetween counts the reporting Tuesdays in (start, end].
func ReportWeeksBetween(start, end time.Time) int {
	if !start.Before(end) {
		return 0
	}
	last := LastReportDate(end)
	count := 0
	for d := LastReportDate(start).AddDate(0, 0, 7); !d.After(last); d = d.AddDate(0, 0, 7) {
		count++
	}
	return count
}

// ParseDate parses a date string in "2006-01-02" form as a UTC day,
// matching the series date convention.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// FormatDate formats a series date as "2006-01-02".
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

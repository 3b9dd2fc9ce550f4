// Package export defines the data model for the paginated export API:
// date-range requests, page responses with the partial-data flag, and the
// error kinds surfaced to callers.
package export

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DateFormat is the wire format for range boundaries (yyyy-MM-dd).
const DateFormat = "2006-01-02"

// Request describes a date-range export.
type Request struct {
	// From is the inclusive start of the range.
	From time.Time

	// To is the inclusive end of the range.
	To time.Time

	// PageSize is the number of rows requested per page.
	PageSize int

	// MaxPages caps the number of page requests issued for this export.
	// Zero means no cap.
	MaxPages int
}

// Validate checks the range and pagination invariants.
func (r Request) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("from and to dates are required")
	}
	if r.From.After(r.To) {
		return fmt.Errorf("invalid range: from %s > to %s",
			FormatDate(r.From), FormatDate(r.To))
	}
	if r.PageSize < 1 {
		return fmt.Errorf("pageSize must be >= 1 (got %d)", r.PageSize)
	}
	if r.MaxPages < 0 {
		return fmt.Errorf("maxPages must be >= 0 (got %d)", r.MaxPages)
	}
	return nil
}

// Clamp adjusts the range the way the export service does: From is raised to
// minStart and To is lowered to yesterday (data for the current day is never
// final). A zero minStart leaves From untouched. Returns an error if the
// range inverts after clamping.
func (r Request) Clamp(minStart time.Time, now time.Time) (Request, error) {
	out := r
	if !minStart.IsZero() && out.From.Before(minStart) {
		out.From = minStart
	}
	yesterday := truncateDate(now).AddDate(0, 0, -1)
	if out.To.After(yesterday) {
		out.To = yesterday
	}
	if out.From.After(out.To) {
		return Request{}, fmt.Errorf("invalid range after clamp: %s > %s",
			FormatDate(out.From), FormatDate(out.To))
	}
	return out, nil
}

// Query renders the request as export endpoint query parameters.
func (r Request) Query() url.Values {
	q := url.Values{}
	q.Set("from", FormatDate(r.From))
	q.Set("to", FormatDate(r.To))
	q.Set("pageSize", strconv.Itoa(r.PageSize))
	if r.MaxPages > 0 {
		q.Set("maxPages", strconv.Itoa(r.MaxPages))
	}
	return q
}

// ParseDate parses a yyyy-MM-dd wire date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected yyyy-MM-dd)", s)
	}
	return t, nil
}

// FormatDate renders a time as a yyyy-MM-dd wire date.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// truncateDate drops the time-of-day component.
func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

package logview

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

// DateLayout is the calendar date format used by records and query parameters.
const DateLayout = "2006-01-02"

// DataError marks a record whose date could not be parsed.
type DataError struct {
	RecordID string
	Value    string
	Err      error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("record %s: invalid date %q", e.RecordID, e.Value)
}

func (e *DataError) Unwrap() error { return e.Err }

// ParseDate parses a calendar date and normalises it to midnight UTC.
// RFC 3339 timestamps are accepted and truncated to their calendar day.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func recordDate(rec models.LogRecord) (time.Time, *DataError) {
	t, err := ParseDate(rec.Date)
	if err != nil {
		return time.Time{}, &DataError{RecordID: rec.ID, Value: rec.Date, Err: err}
	}
	return t, nil
}

// DateRange is an inclusive [From, To] window. A zero bound leaves the range open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange parses both bounds; an empty string leaves that bound unset.
func NewDateRange(from, to string) (DateRange, error) {
	var r DateRange
	if strings.TrimSpace(from) != "" {
		t, err := ParseDate(from)
		if err != nil {
			return DateRange{}, err
		}
		r.From = t
	}
	if strings.TrimSpace(to) != "" {
		t, err := ParseDate(to)
		if err != nil {
			return DateRange{}, err
		}
		r.To = t
	}
	return r, nil
}

// Bounded reports whether both ends are set, which is the only case that filters.
func (r DateRange) Bounded() bool {
	return !r.From.IsZero() && !r.To.IsZero()
}

// Contains reports whether day falls inside the range. Inverted ranges contain nothing.
func (r DateRange) Contains(day time.Time) bool {
	return !day.Before(r.From) && !day.After(r.To)
}

// String renders the range as from..to with open bounds left blank.
func (r DateRange) String() string {
	return formatDate(r.From) + ".." + formatDate(r.To)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

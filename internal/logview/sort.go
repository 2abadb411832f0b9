package logview

import (
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

// SortOption selects the ordering applied to a filtered batch.
type SortOption string

const (
	SortLatestDate  SortOption = "latest-date"
	SortOldestDate  SortOption = "oldest-date"
	SortClassName   SortOption = "class-name"
	SortName        SortOption = "name"
	SortStudentName SortOption = "student-name"
)

// DefaultSort is used when no option has been chosen.
const DefaultSort = SortLatestDate

// Known reports whether opt is one of the supported options.
func (opt SortOption) Known() bool {
	switch opt {
	case SortLatestDate, SortOldestDate, SortClassName, SortName, SortStudentName:
		return true
	default:
		return false
	}
}

// collationTag drives locale-aware name comparison.
var collationTag = language.English

type sortEntry struct {
	rec  models.LogRecord
	day  time.Time
	text string
}

// SortRecords returns a new slice ordered by option. The sort is stable so equal
// keys keep their input order. Unknown options return a copy in input order.
// Unparseable dates sort as the zero time, i.e. oldest.
func SortRecords(records []models.LogRecord, option SortOption) []models.LogRecord {
	out := make([]models.LogRecord, len(records))
	if !option.Known() {
		copy(out, records)
		return out
	}

	entries := make([]sortEntry, len(records))
	for i, rec := range records {
		entries[i] = sortEntry{rec: rec}
		switch option {
		case SortLatestDate, SortOldestDate:
			entries[i].day, _ = recordDate(rec)
		case SortClassName, SortName:
			entries[i].text = rec.ClassName
		case SortStudentName:
			if rec.StudentName != nil {
				entries[i].text = *rec.StudentName
			}
		}
	}

	var less func(a, b sortEntry) bool
	switch option {
	case SortLatestDate:
		less = func(a, b sortEntry) bool { return a.day.After(b.day) }
	case SortOldestDate:
		less = func(a, b sortEntry) bool { return a.day.Before(b.day) }
	default:
		// Collators are not safe for concurrent use.
		col := collate.New(collationTag)
		less = func(a, b sortEntry) bool { return col.CompareString(a.text, b.text) < 0 }
	}

	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

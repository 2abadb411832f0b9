package logview

import "github.com/noah-isme/attendance-dashboard-api/internal/models"

// FilterByRange keeps the records whose date lies within rng, preserving input order.
// An unbounded range returns records as-is. Records with unparseable dates are
// excluded and reported as DataErrors; the remaining records are still filtered.
func FilterByRange(records []models.LogRecord, rng DateRange) ([]models.LogRecord, []*DataError) {
	if !rng.Bounded() {
		return records, nil
	}

	var dataErrs []*DataError
	out := make([]models.LogRecord, 0, len(records))
	if rng.From.After(rng.To) {
		return out, nil
	}
	for _, rec := range records {
		day, derr := recordDate(rec)
		if derr != nil {
			dataErrs = append(dataErrs, derr)
			continue
		}
		if rng.Contains(day) {
			out = append(out, rec)
		}
	}
	return out, dataErrs
}

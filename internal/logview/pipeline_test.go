package logview

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/seed"
)

func mustRange(t *testing.T, from, to string) DateRange {
	t.Helper()
	rng, err := NewDateRange(from, to)
	require.NoError(t, err)
	return rng
}

func ids(records []models.LogRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func rec(id, date string) models.LogRecord {
	return models.LogRecord{ID: id, ClassName: "Class " + id, Date: date, Time: "09:00 AM"}
}

func TestFilterByRangeInclusiveAndOrdered(t *testing.T) {
	records := []models.LogRecord{
		rec("a", "2025-03-05"),
		rec("b", "2025-02-28"),
		rec("c", "2025-03-01"),
		rec("d", "2025-03-06"),
		rec("e", "2025-03-03"),
	}

	got, dataErrs := FilterByRange(records, mustRange(t, "2025-03-01", "2025-03-05"))
	assert.Empty(t, dataErrs)
	assert.Equal(t, []string{"a", "c", "e"}, ids(got))
}

func TestFilterByRangeOpenBoundReturnsInput(t *testing.T) {
	records := seed.StudentLogs()

	got, _ := FilterByRange(records, mustRange(t, "2025-03-02", ""))
	assert.Equal(t, ids(records), ids(got))

	got, _ = FilterByRange(records, DateRange{})
	assert.Equal(t, ids(records), ids(got))
}

func TestFilterByRangeInvertedIsEmpty(t *testing.T) {
	got, dataErrs := FilterByRange(seed.StudentLogs(), mustRange(t, "2025-03-05", "2025-03-01"))
	assert.Empty(t, got)
	assert.Empty(t, dataErrs)
}

func TestFilterByRangeExcludesMalformedDates(t *testing.T) {
	records := []models.LogRecord{
		rec("ok", "2025-03-02"),
		rec("bad", "March 2nd"),
		rec("ts", "2025-03-03T18:30:00Z"),
	}

	got, dataErrs := FilterByRange(records, mustRange(t, "2025-03-01", "2025-03-05"))
	assert.Equal(t, []string{"ok", "ts"}, ids(got))
	require.Len(t, dataErrs, 1)
	assert.Equal(t, "bad", dataErrs[0].RecordID)
	assert.Contains(t, dataErrs[0].Error(), "March 2nd")
}

func TestNewDateRangeNormalisesToMidnight(t *testing.T) {
	rng := mustRange(t, "2025-03-01T23:59:59Z", "2025-03-05")
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), rng.From)
	assert.Equal(t, "2025-03-01..2025-03-05", rng.String())

	_, err := NewDateRange("01/03/2025", "")
	assert.Error(t, err)
}

func TestSortRecordsLatestDateIsStable(t *testing.T) {
	got := SortRecords(seed.StudentLogs(), SortLatestDate)
	assert.Equal(t, []string{
		"102", "105", "108", "111", "114",
		"103", "106", "109", "112", "115",
		"101", "104", "107", "110", "113",
	}, ids(got))
}

func TestSortRecordsDoesNotMutateInput(t *testing.T) {
	records := seed.StudentLogs()
	before := ids(records)
	_ = SortRecords(records, SortOldestDate)
	assert.Equal(t, before, ids(records))
}

func TestSortRecordsReverseEquivalence(t *testing.T) {
	records := []models.LogRecord{
		rec("3", "2025-03-03"),
		rec("1", "2025-03-01"),
		rec("5", "2025-03-05"),
		rec("2", "2025-03-02"),
		rec("4", "2025-03-04"),
	}

	latest := ids(SortRecords(records, SortLatestDate))
	oldest := ids(SortRecords(records, SortOldestDate))
	for i, j := 0, len(latest)-1; i < j; i, j = i+1, j-1 {
		latest[i], latest[j] = latest[j], latest[i]
	}
	assert.Equal(t, oldest, latest)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, oldest)
}

func TestSortRecordsNameIsLocaleAware(t *testing.T) {
	records := []models.LogRecord{
		{ID: "1", ClassName: "Zoology", Date: "2025-03-01"},
		{ID: "2", ClassName: "Écologie", Date: "2025-03-01"},
		{ID: "3", ClassName: "biology", Date: "2025-03-01"},
		{ID: "4", ClassName: "Algebra", Date: "2025-03-01"},
	}

	assert.Equal(t, []string{"4", "3", "2", "1"}, ids(SortRecords(records, SortClassName)))
	assert.Equal(t, []string{"4", "3", "2", "1"}, ids(SortRecords(records, SortName)))
}

func TestSortRecordsStudentNameStableForEqualNames(t *testing.T) {
	got := SortRecords(seed.EducatorLogs(), SortStudentName)
	require.Len(t, got, 25)

	alice := []string{"1", "4", "7", "10", "13", "16", "19", "22", "25"}
	assert.Equal(t, alice, ids(got[:len(alice)]))
	for _, r := range got[:len(alice)] {
		assert.Equal(t, "Alice Johnson", *r.StudentName)
	}
	assert.Equal(t, "Charlie Brown", *got[24].StudentName)
}

func TestSortRecordsAbsentStudentNameSortsFirst(t *testing.T) {
	name := "Bob Smith"
	records := []models.LogRecord{
		{ID: "named", StudentName: &name, Date: "2025-03-01"},
		{ID: "anon", Date: "2025-03-01"},
	}
	assert.Equal(t, []string{"anon", "named"}, ids(SortRecords(records, SortStudentName)))
}

func TestSortRecordsUnknownOptionKeepsOrder(t *testing.T) {
	records := seed.StudentLogs()
	got := SortRecords(records, SortOption("by-mood"))
	assert.Equal(t, ids(records), ids(got))
}

func TestSortRecordsMalformedDatesSortOldest(t *testing.T) {
	records := []models.LogRecord{rec("bad", "n/a"), rec("ok", "2025-03-01")}
	assert.Equal(t, []string{"ok", "bad"}, ids(SortRecords(records, SortLatestDate)))
	assert.Equal(t, []string{"bad", "ok"}, ids(SortRecords(records, SortOldestDate)))
}

func TestPaginateExhaustive(t *testing.T) {
	records := SortRecords(seed.EducatorLogs(), SortLatestDate)
	for size := 1; size <= 10; size++ {
		first := Paginate(records, 1, size)
		var collected []models.LogRecord
		for p := 1; p <= first.TotalPages; p++ {
			collected = append(collected, Paginate(records, p, size).Items...)
		}
		assert.Equal(t, ids(records), ids(collected), "page size %d", size)
	}
}

func TestPaginateFloorAndOutOfRange(t *testing.T) {
	empty := Paginate(nil, 3, 8)
	assert.Equal(t, 1, empty.TotalPages)
	assert.Empty(t, empty.Items)

	records := seed.StudentLogs()
	page := Paginate(records, 3, 8)
	assert.Equal(t, 2, page.TotalPages)
	assert.Empty(t, page.Items)
	assert.Empty(t, Paginate(records, 0, 8).Items)

	assert.Len(t, Paginate(records, 2, 0).Items, 7)

	for _, huge := range []int{math.MaxInt, math.MaxInt/8 + 2} {
		out := Paginate(records, huge, 8)
		assert.Empty(t, out.Items)
		assert.Equal(t, 2, out.TotalPages)
	}
}

func TestNavigationBounds(t *testing.T) {
	assert.Equal(t, 1, PreviousPage(1))
	assert.Equal(t, 1, PreviousPage(2))
	assert.Equal(t, 2, NextPage(1, 2))
	assert.Equal(t, 2, NextPage(2, 2))
	assert.Equal(t, 1, NextPage(1, 0))
}

func TestProjectHidesStudentFieldsForStudents(t *testing.T) {
	records := seed.EducatorLogs()[:2]

	studentRows := Project(records, models.RoleStudent)
	for _, row := range studentRows {
		assert.Nil(t, row.StudentID)
		assert.Nil(t, row.StudentName)
	}
	payload, err := json.Marshal(studentRows)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "studentName")
	assert.NotContains(t, string(payload), "studentId")

	educatorRows := Project(records, models.RoleEducator)
	require.NotNil(t, educatorRows[0].StudentName)
	assert.Equal(t, "Alice Johnson", *educatorRows[0].StudentName)
	assert.Equal(t, "S001", *educatorRows[0].StudentID)
}

func TestOptionsForRole(t *testing.T) {
	assert.Equal(t, []SortOption{SortLatestDate, SortOldestDate, SortName}, OptionsFor(models.RoleStudent))
	assert.Equal(t, []SortOption{SortLatestDate, SortOldestDate, SortStudentName, SortClassName}, OptionsFor(models.RoleEducator))
	assert.False(t, Offered(models.RoleStudent, SortStudentName))
	assert.True(t, Offered(models.RoleStudent, SortClassName))
	assert.False(t, Offered(models.RoleEducator, SortOption("bogus")))

	infos := OptionInfos(models.RoleEducator)
	assert.Equal(t, "Student Name", infos[2].Label)
}

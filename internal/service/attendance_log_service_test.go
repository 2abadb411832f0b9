package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/seed"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
)

type fakeLogRepo struct {
	student  []models.LogRecord
	educator []models.LogRecord
	err      error
	calls    int
}

func (f *fakeLogRepo) ListForStudent(ctx context.Context, studentID string) ([]models.LogRecord, error) {
	f.calls++
	return append([]models.LogRecord(nil), f.student...), f.err
}

func (f *fakeLogRepo) ListForEducator(ctx context.Context, educatorID string) ([]models.LogRecord, error) {
	f.calls++
	return append([]models.LogRecord(nil), f.educator...), f.err
}

func newSeededLogService(cache *CacheService) (*AttendanceLogService, *fakeLogRepo) {
	repo := &fakeLogRepo{student: seed.StudentLogs(), educator: seed.EducatorLogs()}
	svc := NewAttendanceLogService(repo, cache, NewMetricsService(), nil, AttendanceLogConfig{
		PageSize:    8,
		DefaultFrom: "2025-03-01",
		DefaultTo:   "2025-03-05",
		DefaultSort: "latest-date",
		CacheTTL:    time.Minute,
	})
	return svc, repo
}

func rowIDsOf(listing *LogListing) []string {
	out := make([]string, len(listing.Snapshot.Rows))
	for i, row := range listing.Snapshot.Rows {
		out[i] = row.ID
	}
	return out
}

func TestAttendanceLogServiceStudentDefaults(t *testing.T) {
	svc, _ := newSeededLogService(nil)

	listing, err := svc.ListLogs(context.Background(), student, models.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"102", "105", "108", "111", "114", "103", "106", "109"}, rowIDsOf(listing))
	assert.Equal(t, 2, listing.Pagination.TotalPages)
	assert.Equal(t, 15, listing.Pagination.TotalCount)
	for _, row := range listing.Snapshot.Rows {
		assert.Nil(t, row.StudentName)
	}
}

func TestAttendanceLogServicePageClamp(t *testing.T) {
	svc, _ := newSeededLogService(nil)

	listing, err := svc.ListLogs(context.Background(), student, models.LogQuery{Page: 9})
	require.NoError(t, err)
	assert.Equal(t, 2, listing.Snapshot.Page)
	assert.Len(t, listing.Snapshot.Rows, 7)
}

func TestAttendanceLogServiceRejectsBadQuery(t *testing.T) {
	svc, _ := newSeededLogService(nil)

	_, err := svc.ListLogs(context.Background(), student, models.LogQuery{Sort: "student-name"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ListLogs(context.Background(), student, models.LogQuery{From: "03/01/2025"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAttendanceLogServiceEducatorSeesStudents(t *testing.T) {
	svc, _ := newSeededLogService(nil)

	listing, err := svc.ListLogs(context.Background(), educator, models.LogQuery{Sort: "student-name"})
	require.NoError(t, err)
	require.NotEmpty(t, listing.Snapshot.Rows)
	require.NotNil(t, listing.Snapshot.Rows[0].StudentName)
	assert.Equal(t, "Alice Johnson", *listing.Snapshot.Rows[0].StudentName)
	assert.Equal(t, 25, listing.Pagination.TotalCount)
}

func TestAttendanceLogServiceCachesBatches(t *testing.T) {
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc, repo := newSeededLogService(cache)

	first, err := svc.FetchLogs(context.Background(), educator)
	require.NoError(t, err)
	second, err := svc.FetchLogs(context.Background(), educator)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, first, second)
	assert.Contains(t, cacheRepo.data, "logs:educator:edu-1")
}

func TestAttendanceLogServiceDegradesWhenCacheFails(t *testing.T) {
	cacheRepo := newMemoryCacheRepo()
	cacheRepo.getErr = errors.New("redis down")
	cacheRepo.setErr = errors.New("redis down")
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc, repo := newSeededLogService(cache)

	records, err := svc.FetchLogs(context.Background(), student)
	require.NoError(t, err)
	assert.Len(t, records, 15)
	assert.Equal(t, 1, repo.calls)
}

func TestAttendanceLogServiceStripsStudentFieldsForStudents(t *testing.T) {
	svc, repo := newSeededLogService(nil)
	repo.student = seed.EducatorLogs()[:2]

	records, err := svc.FetchLogs(context.Background(), student)
	require.NoError(t, err)
	for _, rec := range records {
		assert.Nil(t, rec.StudentID)
		assert.Nil(t, rec.StudentName)
	}
}

func TestAttendanceLogServiceCollectReturnsAllPages(t *testing.T) {
	svc, _ := newSeededLogService(nil)

	records, err := svc.Collect(context.Background(), educator, models.ExportParams{Sort: "oldest-date"})
	require.NoError(t, err)
	assert.Len(t, records, 25)
	assert.Equal(t, "2025-03-01", records[0].Date)
}

func TestAttendanceLogServiceRepositoryFailure(t *testing.T) {
	svc, repo := newSeededLogService(nil)
	repo.err = errors.New("db down")

	_, err := svc.ListLogs(context.Background(), student, models.LogQuery{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

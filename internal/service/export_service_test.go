package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
	"github.com/noah-isme/attendance-dashboard-api/pkg/jobs"
	"github.com/noah-isme/attendance-dashboard-api/pkg/storage"
)

type memoryExportRepo struct {
	jobs map[string]*models.ExportJob
	seq  int
}

func newMemoryExportRepo() *memoryExportRepo {
	return &memoryExportRepo{jobs: map[string]*models.ExportJob{}}
}

func (m *memoryExportRepo) Create(ctx context.Context, job *models.ExportJob) error {
	m.seq++
	job.ID = strings.Repeat("a", 8) + "-" + string(rune('0'+m.seq))
	job.CreatedAt = time.Now().UTC()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memoryExportRepo) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *memoryExportRepo) Update(ctx context.Context, id string, params repository.UpdateExportParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		url := *params.ResultURL
		job.ResultURL = &url
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.FinishedAt != nil {
		at := *params.FinishedAt
		job.FinishedAt = &at
	}
	return nil
}

func (m *memoryExportRepo) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memoryExportRepo) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

type recordingDispatcher struct {
	jobs []jobs.Job
	err  error
}

func (d *recordingDispatcher) Enqueue(ctx context.Context, job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type exportFixture struct {
	svc        *ExportService
	worker     *ExportWorker
	repo       *memoryExportRepo
	dispatcher *recordingDispatcher
	store      *storage.LocalStorage
}

func newExportFixture(t *testing.T) exportFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	repo := newMemoryExportRepo()
	dispatcher := &recordingDispatcher{}
	logs, _ := newSeededLogService(nil)

	svc := NewExportService(repo, dispatcher, store, signer, nil, nil, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour})
	worker := NewExportWorker(repo, logs, store, signer, NewMetricsService(), nil, "/api/v1")
	return exportFixture{svc: svc, worker: worker, repo: repo, dispatcher: dispatcher, store: store}
}

func TestExportServiceEndToEndCSV(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateExport(ctx, student, models.CreateExportRequest{Format: models.ExportFormatCSV, Sort: "oldest-date"})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, created.Status)
	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, ExportJobKind, f.dispatcher.jobs[0].Kind)

	require.NoError(t, f.worker.Handle(ctx, f.dispatcher.jobs[0]))

	status, err := f.svc.GetExport(ctx, student, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
	require.NotNil(t, status.DownloadURL)
	assert.True(t, strings.HasPrefix(*status.DownloadURL, "/api/v1/attendance/exports/download/"))
	assert.Nil(t, status.Error)

	download, err := f.svc.ResolveDownload(ctx, extractToken(*status.DownloadURL))
	require.NoError(t, err)
	defer download.Reader.Close()
	assert.Equal(t, "text/csv; charset=utf-8", download.ContentType)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))

	body, err := io.ReadAll(download.Reader)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Equal(t, "Class,Date,Time", lines[0])
	assert.Len(t, lines, 16)
	assert.Equal(t, "Intro to React,2025-03-01,09:00 AM", lines[1])
}

func TestExportServiceEducatorPDF(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateExport(ctx, educator, models.CreateExportRequest{Format: models.ExportFormatPDF, Sort: "student-name"})
	require.NoError(t, err)
	require.NoError(t, f.worker.Handle(ctx, f.dispatcher.jobs[0]))

	status, err := f.svc.GetExport(ctx, educator, created.ID)
	require.NoError(t, err)
	download, err := f.svc.ResolveDownload(ctx, extractToken(*status.DownloadURL))
	require.NoError(t, err)
	defer download.Reader.Close()
	assert.Equal(t, "application/pdf", download.ContentType)
	assert.Greater(t, download.Size, int64(0))
}

func TestExportServiceValidation(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateExport(ctx, student, models.CreateExportRequest{Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.CreateExport(ctx, student, models.CreateExportRequest{Format: models.ExportFormatCSV, Sort: "student-name"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.CreateExport(ctx, student, models.CreateExportRequest{Format: models.ExportFormatCSV, From: "2025-13-01"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.repo.jobs)
}

func TestExportServiceOwnerOnly(t *testing.T) {
	f := newExportFixture(t)
	created, err := f.svc.CreateExport(context.Background(), student, models.CreateExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)

	_, err = f.svc.GetExport(context.Background(), outsider, created.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.GetExport(context.Background(), student, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportServiceQueueFailureMarksFailed(t *testing.T) {
	f := newExportFixture(t)
	f.dispatcher.err = jobs.ErrQueueStopped

	_, err := f.svc.CreateExport(context.Background(), student, models.CreateExportRequest{Format: models.ExportFormatCSV})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	require.Len(t, f.repo.jobs, 1)
	for _, job := range f.repo.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
	}
}

func TestExportWorkerDeadLetterMarksFailed(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateExport(ctx, student, models.CreateExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)

	f.worker.DeadLetter(ctx, f.dispatcher.jobs[0], errors.New("disk full"))

	status, err := f.svc.GetExport(ctx, student, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, "disk full", *status.Error)
	assert.Nil(t, status.DownloadURL)

	require.NoError(t, f.worker.Handle(ctx, f.dispatcher.jobs[0]))
	assert.Equal(t, models.ExportStatusFailed, f.repo.jobs[created.ID].Status)
}

func TestExportServiceRejectsForeignToken(t *testing.T) {
	f := newExportFixture(t)
	_, err := f.svc.ResolveDownload(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	other := storage.NewSignedURLSigner("other", time.Hour)
	token, _, err := other.Generate("job", "x.csv")
	require.NoError(t, err)
	_, err = f.svc.ResolveDownload(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestExportServiceRecoverPendingJobs(t *testing.T) {
	f := newExportFixture(t)
	_, err := f.svc.CreateExport(context.Background(), student, models.CreateExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)

	f.svc.RecoverPendingJobs(context.Background())
	assert.Len(t, f.dispatcher.jobs, 2)
}

func TestExportServiceCleanupRemovesExpiredFiles(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateExport(ctx, student, models.CreateExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)
	require.NoError(t, f.worker.Handle(ctx, f.dispatcher.jobs[0]))

	old := time.Now().Add(-2 * time.Hour)
	f.repo.jobs[created.ID].FinishedAt = &old
	token := extractToken(*f.repo.jobs[created.ID].ResultURL)

	f.svc.CleanupExpired(ctx)

	_, err = f.svc.ResolveDownload(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

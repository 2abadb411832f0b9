package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/logview"
	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/repository"
	"github.com/noah-isme/attendance-dashboard-api/pkg/export"
	"github.com/noah-isme/attendance-dashboard-api/pkg/jobs"
	"github.com/noah-isme/attendance-dashboard-api/pkg/storage"
)

type logCollector interface {
	Collect(ctx context.Context, viewer models.Viewer, params models.ExportParams) ([]models.LogRecord, error)
}

// ExportWorker renders queued export jobs.
type ExportWorker struct {
	repo      exportJobStore
	logs      logCollector
	storage   fileStorage
	signer    *storage.SignedURLSigner
	renderers map[models.ExportFormat]export.Renderer
	metrics   *MetricsService
	logger    *zap.Logger
	apiPrefix string
}

// NewExportWorker constructs a worker with the CSV and PDF renderers.
func NewExportWorker(repo exportJobStore, logs logCollector, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, apiPrefix string) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{
		repo:    repo,
		logs:    logs,
		storage: files,
		signer:  signer,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV: export.NewCSVExporter(),
			models.ExportFormatPDF: export.NewPDFExporter(),
		},
		metrics:   metrics,
		logger:    logger,
		apiPrefix: apiPrefix,
	}
}

// Handle processes one queue job. A returned error makes the queue retry it.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load export job: %w", err)
	}
	if record.Status == models.ExportStatusFinished || record.Status == models.ExportStatusFailed {
		return nil
	}

	processing := models.ExportStatusProcessing
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark export processing: %w", err)
	}

	url, err := w.generate(ctx, record)
	if err != nil {
		queued := models.ExportStatusQueued
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportParams{Status: &queued, ErrorMessage: &msg}); updateErr != nil {
			w.logger.Warn("failed to mark export queued", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	noError := ""
	now := time.Now().UTC()
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportParams{
		Status:       &finished,
		ResultURL:    &url,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		return fmt.Errorf("mark export finished: %w", err)
	}
	w.metrics.ObserveExport(record.Format, finished)
	w.logger.Info("export finished", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// DeadLetter marks a job that exhausted its retries as failed.
func (w *ExportWorker) DeadLetter(ctx context.Context, job jobs.Job, cause error) {
	failed := models.ExportStatusFailed
	msg := cause.Error()
	now := time.Now().UTC()
	// ctx may already be cancelled during shutdown.
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.repo.Update(updateCtx, job.ID, repository.UpdateExportParams{Status: &failed, ErrorMessage: &msg, FinishedAt: &now}); err != nil {
		w.logger.Warn("failed to mark export failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if record, err := w.repo.GetByID(updateCtx, job.ID); err == nil {
		w.metrics.ObserveExport(record.Format, failed)
	}
}

func (w *ExportWorker) generate(ctx context.Context, job *models.ExportJob) (string, error) {
	renderer, ok := w.renderers[job.Format]
	if !ok {
		return "", fmt.Errorf("unsupported export format %q", job.Format)
	}

	viewer := models.Viewer{UserID: job.OwnerID, Role: job.Role}
	records, err := w.logs.Collect(ctx, viewer, job.Params)
	if err != nil {
		return "", fmt.Errorf("collect attendance logs: %w", err)
	}

	payload, err := renderer.Render(buildLogDataset(job, records))
	if err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}

	filename := fmt.Sprintf("attendance_logs_%s_%s_%s.%s", job.Role, shortID(job.ID),
		time.Now().UTC().Format("20060102_150405"), renderer.Extension())
	relPath, err := w.storage.Save(filename, payload)
	if err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}

	token, _, err := w.signer.Generate(job.ID, relPath)
	if err != nil {
		return "", fmt.Errorf("sign export: %w", err)
	}
	return downloadURL(w.apiPrefix, token), nil
}

func buildLogDataset(job *models.ExportJob, records []models.LogRecord) export.Dataset {
	columns := []export.Column{
		{Key: "class", Label: "Class"},
		{Key: "date", Label: "Date"},
		{Key: "time", Label: "Time"},
	}
	if job.Role == models.RoleEducator {
		columns = append([]export.Column{
			{Key: "student", Label: "Student"},
			{Key: "student_id", Label: "Student ID"},
		}, columns...)
	}

	rows := make([]map[string]string, 0, len(records))
	for _, row := range logview.Project(records, job.Role) {
		values := map[string]string{"class": row.ClassName, "date": row.Date, "time": row.Time}
		if row.StudentName != nil {
			values["student"] = *row.StudentName
		}
		if row.StudentID != nil {
			values["student_id"] = *row.StudentID
		}
		rows = append(rows, values)
	}

	title := "Attendance Logs"
	if window := exportWindow(job.Params); window != "" {
		title += " " + window
	}
	return export.Dataset{Title: title, Columns: columns, Rows: rows}
}

func exportWindow(params models.ExportParams) string {
	if params.From == "" && params.To == "" {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("(%s to %s)", orAny(params.From), orAny(params.To)))
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

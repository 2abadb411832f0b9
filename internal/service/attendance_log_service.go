package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/logview"
	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
)

type attendanceLogRepository interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.LogRecord, error)
	ListForEducator(ctx context.Context, educatorID string) ([]models.LogRecord, error)
}

// AttendanceLogConfig carries listing defaults.
type AttendanceLogConfig struct {
	PageSize    int
	DefaultFrom string
	DefaultTo   string
	DefaultSort string
	CacheTTL    time.Duration
}

// LogListing is one rendered page of attendance logs.
type LogListing struct {
	Snapshot   logview.Snapshot
	Pagination *models.Pagination
	DataErrors int
}

// AttendanceLogService loads attendance log batches and renders listings through the view model.
type AttendanceLogService struct {
	repo    attendanceLogRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	config  AttendanceLogConfig
}

// NewAttendanceLogService constructs an AttendanceLogService. cache and metrics may be nil.
func NewAttendanceLogService(repo attendanceLogRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg AttendanceLogConfig) *AttendanceLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = logview.DefaultPageSize
	}
	if !logview.SortOption(cfg.DefaultSort).Known() {
		cfg.DefaultSort = string(logview.DefaultSort)
	}
	return &AttendanceLogService{repo: repo, cache: cache, metrics: metrics, logger: logger, config: cfg}
}

// FetchLogs returns the batch visible to viewer. Students get their own rows
// without student fields; educators get the rows of the classes they own.
// A failing cache is logged and bypassed.
func (s *AttendanceLogService) FetchLogs(ctx context.Context, viewer models.Viewer) ([]models.LogRecord, error) {
	if !viewer.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	records, _, err := remember(ctx, s.cache, LogsKey(viewer), s.config.CacheTTL, func() ([]models.LogRecord, error) {
		return s.loadLogs(ctx, viewer)
	})
	return records, err
}

func (s *AttendanceLogService) loadLogs(ctx context.Context, viewer models.Viewer) ([]models.LogRecord, error) {
	start := time.Now()
	var (
		records []models.LogRecord
		err     error
	)
	if viewer.Role == models.RoleEducator {
		records, err = s.repo.ListForEducator(ctx, viewer.UserID)
	} else {
		records, err = s.repo.ListForStudent(ctx, viewer.UserID)
	}
	s.metrics.ObserveDBQuery("attendance_logs_"+string(viewer.Role), time.Since(start))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attendance logs")
	}
	if records == nil {
		records = []models.LogRecord{}
	}
	if viewer.Role != models.RoleEducator {
		for i := range records {
			records[i].StudentID = nil
			records[i].StudentName = nil
		}
	}
	return records, nil
}

// ListLogs applies query state to the viewer's batch and returns one projected page.
// Empty bounds and sort fall back to the configured defaults.
func (s *AttendanceLogService) ListLogs(ctx context.Context, viewer models.Viewer, query models.LogQuery) (*LogListing, error) {
	vm, err := s.viewModel(ctx, viewer, query.From, query.To, query.Sort)
	if err != nil {
		return nil, err
	}
	if query.Page > 0 {
		vm.SetPage(query.Page)
	}

	snap := vm.Current()
	return &LogListing{
		Snapshot:   snap,
		Pagination: &models.Pagination{Page: snap.Page, PageSize: snap.PageSize, TotalCount: snap.TotalCount, TotalPages: snap.TotalPages},
		DataErrors: len(vm.DataErrors()),
	}, nil
}

// Collect returns every filtered and sorted record for viewer, as used by exports.
func (s *AttendanceLogService) Collect(ctx context.Context, viewer models.Viewer, params models.ExportParams) ([]models.LogRecord, error) {
	vm, err := s.viewModel(ctx, viewer, params.From, params.To, params.Sort)
	if err != nil {
		return nil, err
	}
	return vm.All(), nil
}

// SortOptions lists the sort options offered to role.
func (s *AttendanceLogService) SortOptions(role models.UserRole) []models.SortOptionInfo {
	return logview.OptionInfos(role)
}

// DefaultSort returns the configured default sort option.
func (s *AttendanceLogService) DefaultSort() string {
	return s.config.DefaultSort
}

func (s *AttendanceLogService) viewModel(ctx context.Context, viewer models.Viewer, from, to, sortOpt string) (*logview.ViewModel, error) {
	if from == "" {
		from = s.config.DefaultFrom
	}
	if to == "" {
		to = s.config.DefaultTo
	}
	rng, err := logview.NewDateRange(from, to)
	if err != nil {
		return nil, appErrors.Invalid(err, "invalid date range")
	}

	opts := logview.Options{
		PageSize:  s.config.PageSize,
		DateRange: rng,
		Sort:      logview.SortOption(s.config.DefaultSort),
		Logger:    s.logger,
	}
	if s.metrics != nil {
		opts.Observer = s.metrics
	}
	vm := logview.New(s, viewer.UserID, opts)
	if err := vm.SetRole(ctx, viewer.Role); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to load attendance logs")
	}

	if sortOpt != "" {
		if err := vm.SetSortOption(logview.SortOption(sortOpt)); err != nil {
			return nil, appErrors.Invalid(err, "sort option not offered for role")
		}
	}
	return vm, nil
}

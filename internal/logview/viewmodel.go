package logview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

var (
	// ErrStaleResponse is returned by SetRole when a newer fetch was issued before this one completed.
	ErrStaleResponse = errors.New("stale attendance log response discarded")
	// ErrSortNotOffered is returned when a sort option is not available to the current role.
	ErrSortNotOffered = errors.New("sort option not offered for role")
)

// Fetcher loads the attendance log batch visible to a viewer.
type Fetcher interface {
	FetchLogs(ctx context.Context, viewer models.Viewer) ([]models.LogRecord, error)
}

// Observer receives pipeline anomalies, typically for metrics.
type Observer interface {
	ObserveDataErrors(role models.UserRole, count int)
	ObserveStaleResponse(role models.UserRole)
}

// Options configure a ViewModel.
type Options struct {
	PageSize  int
	DateRange DateRange
	Sort      SortOption
	Observer  Observer
	Logger    *zap.Logger
}

// Snapshot is the rendered state of a ViewModel.
type Snapshot struct {
	Role       models.UserRole
	Rows       []Row
	Page       int
	PageSize   int
	TotalPages int
	TotalCount int
	DateRange  DateRange
	Sort       SortOption
	Loading    bool
}

// ViewModel owns the listing state for one viewer and derives the current page
// by filtering, sorting and paginating the latest fetched batch.
type ViewModel struct {
	mu       sync.Mutex
	fetcher  Fetcher
	userID   string
	observer Observer
	logger   *zap.Logger

	role       models.UserRole
	records    []models.LogRecord
	dateRange  DateRange
	sortOption SortOption
	page       int
	pageSize   int

	seq     uint64
	loading bool

	derived      []models.LogRecord
	derivedValid bool
	dataErrors   []*DataError
}

// New creates a ViewModel for userID. No records are loaded until SetRole is called.
func New(fetcher Fetcher, userID string, opts Options) *ViewModel {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if !opts.Sort.Known() {
		opts.Sort = DefaultSort
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ViewModel{
		fetcher:    fetcher,
		userID:     userID,
		observer:   opts.Observer,
		logger:     opts.Logger,
		dateRange:  opts.DateRange,
		sortOption: opts.Sort,
		page:       1,
		pageSize:   opts.PageSize,
	}
}

// SetRole fetches the batch for role and replaces the records wholesale.
// Only the most recently issued fetch is applied; an older one that completes
// later returns ErrStaleResponse and leaves the state untouched.
func (vm *ViewModel) SetRole(ctx context.Context, role models.UserRole) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	vm.mu.Lock()
	vm.seq++
	token := vm.seq
	vm.loading = true
	vm.mu.Unlock()

	records, err := vm.fetcher.FetchLogs(ctx, models.Viewer{UserID: vm.userID, Role: role})

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if token != vm.seq {
		vm.logger.Debug("discarding stale attendance log response",
			zap.String("user_id", vm.userID), zap.String("role", string(role)))
		if vm.observer != nil {
			vm.observer.ObserveStaleResponse(role)
		}
		return ErrStaleResponse
	}
	vm.loading = false
	if err != nil {
		return fmt.Errorf("fetch attendance logs: %w", err)
	}

	vm.role = role
	vm.records = records
	if !Offered(role, vm.sortOption) {
		vm.sortOption = DefaultSort
	}
	vm.invalidate()
	return nil
}

// SetDateRange replaces the filter window.
func (vm *ViewModel) SetDateRange(rng DateRange) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.dateRange = rng
	vm.invalidate()
}

// SetSortOption changes the ordering. Options not offered to the current role are rejected.
func (vm *ViewModel) SetSortOption(opt SortOption) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !Offered(vm.role, opt) {
		return fmt.Errorf("%w: %q", ErrSortNotOffered, opt)
	}
	vm.sortOption = opt
	vm.invalidate()
	return nil
}

// SetPage jumps to page, clamped to [1, TotalPages].
func (vm *ViewModel) SetPage(page int) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	total := TotalPages(len(vm.sorted()), vm.pageSize)
	switch {
	case page < 1:
		vm.page = 1
	case page > total:
		vm.page = total
	default:
		vm.page = page
	}
}

// Next advances one page.
func (vm *ViewModel) Next() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.page = NextPage(vm.page, TotalPages(len(vm.sorted()), vm.pageSize))
}

// Previous goes back one page.
func (vm *ViewModel) Previous() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.page = PreviousPage(vm.page)
}

// Loading reports whether the latest fetch is still pending.
func (vm *ViewModel) Loading() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.loading
}

// Current returns the projected current page.
func (vm *ViewModel) Current() Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	page := Paginate(vm.sorted(), vm.page, vm.pageSize)
	return Snapshot{
		Role:       vm.role,
		Rows:       Project(page.Items, vm.role),
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
		TotalCount: page.TotalCount,
		DateRange:  vm.dateRange,
		Sort:       vm.sortOption,
		Loading:    vm.loading,
	}
}

// All returns every filtered and sorted record, unpaginated and unprojected.
func (vm *ViewModel) All() []models.LogRecord {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]models.LogRecord(nil), vm.sorted()...)
}

// DataErrors returns the malformed records found by the last recompute.
func (vm *ViewModel) DataErrors() []*DataError {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.sorted()
	return append([]*DataError(nil), vm.dataErrors...)
}

func (vm *ViewModel) invalidate() {
	vm.derivedValid = false
	vm.sorted()
}

// sorted recomputes the derived sequence when inputs changed and clamps the page.
// Callers hold vm.mu.
func (vm *ViewModel) sorted() []models.LogRecord {
	if vm.derivedValid {
		return vm.derived
	}
	filtered, dataErrs := FilterByRange(vm.records, vm.dateRange)
	vm.derived = SortRecords(filtered, vm.sortOption)
	vm.dataErrors = dataErrs
	vm.derivedValid = true

	if len(dataErrs) > 0 {
		vm.logger.Warn("attendance logs with malformed dates excluded",
			zap.String("user_id", vm.userID), zap.Int("count", len(dataErrs)), zap.Error(dataErrs[0]))
		if vm.observer != nil {
			vm.observer.ObserveDataErrors(vm.role, len(dataErrs))
		}
	}

	if total := TotalPages(len(vm.derived), vm.pageSize); vm.page > total {
		vm.page = total
	}
	if vm.page < 1 {
		vm.page = 1
	}
	return vm.derived
}

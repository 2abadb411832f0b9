package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/logview"
	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
)

type trendRepository interface {
	CountByDayForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.TrendCount, error)
	CountByDayForEducator(ctx context.Context, educatorID string, from, to time.Time) ([]models.TrendCount, error)
}

// TrendService builds the daily attendance chart series.
type TrendService struct {
	repo     trendRepository
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewTrendService constructs a TrendService. cache and metrics may be nil.
func NewTrendService(repo trendRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cacheTTL time.Duration) *TrendService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrendService{repo: repo, cache: cache, metrics: metrics, logger: logger, cacheTTL: cacheTTL, now: time.Now}
}

// Series returns one point per day of rng, ending today. Days without logs
// are zero. Educators also get a per-student breakdown.
func (s *TrendService) Series(ctx context.Context, viewer models.Viewer, rng models.TrendRange) (*models.TrendSeries, bool, error) {
	if !viewer.Role.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
	rng = rng.Normalize()

	return remember(ctx, s.cache, TrendsKey(viewer, rng), s.cacheTTL, func() (*models.TrendSeries, error) {
		return s.loadSeries(ctx, viewer, rng)
	})
}

func (s *TrendService) loadSeries(ctx context.Context, viewer models.Viewer, rng models.TrendRange) (*models.TrendSeries, error) {
	now := s.now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -(rng.Days() - 1))

	start := time.Now()
	var (
		counts []models.TrendCount
		err    error
	)
	if viewer.Role == models.RoleEducator {
		counts, err = s.repo.CountByDayForEducator(ctx, viewer.UserID, from, to)
	} else {
		counts, err = s.repo.CountByDayForStudent(ctx, viewer.UserID, from, to)
	}
	s.metrics.ObserveDBQuery("attendance_trends_"+string(viewer.Role), time.Since(start))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attendance trends")
	}
	return buildSeries(viewer.Role, rng, from, counts), nil
}

func buildSeries(role models.UserRole, rng models.TrendRange, from time.Time, counts []models.TrendCount) *models.TrendSeries {
	days := rng.Days()
	index := make(map[string]int, days)
	points := make([]models.TrendPoint, days)
	for i := 0; i < days; i++ {
		date := from.AddDate(0, 0, i).Format(logview.DateLayout)
		points[i] = models.TrendPoint{Date: date}
		index[date] = i
	}

	series := &models.TrendSeries{Range: rng, Role: role, Points: points}
	if role != models.RoleEducator {
		for _, c := range counts {
			if i, ok := index[c.Day.UTC().Format(logview.DateLayout)]; ok {
				points[i].Attendance += c.Count
			}
		}
		return series
	}

	keys := seriesKeys(counts)
	students := make([]string, 0, len(keys))
	for _, key := range keys {
		students = append(students, key)
	}
	sort.Strings(students)
	series.Students = students

	for i := range points {
		points[i].Series = make(map[string]int, len(students))
		for _, name := range students {
			points[i].Series[name] = 0
		}
	}
	for _, c := range counts {
		i, ok := index[c.Day.UTC().Format(logview.DateLayout)]
		if !ok {
			continue
		}
		points[i].Attendance += c.Count
		if c.StudentName != nil {
			points[i].Series[keys[studentRef(c)]] += c.Count
		}
	}
	return series
}

type studentKey struct {
	id   string
	name string
}

func studentRef(c models.TrendCount) studentKey {
	ref := studentKey{}
	if c.StudentName != nil {
		ref.name = *c.StudentName
	}
	if c.StudentID != nil {
		ref.id = *c.StudentID
	}
	return ref
}

// seriesKeys labels each student by name, adding a short id when two
// students share a name.
func seriesKeys(counts []models.TrendCount) map[studentKey]string {
	ids := make(map[string]map[string]struct{})
	for _, c := range counts {
		if c.StudentName == nil {
			continue
		}
		ref := studentRef(c)
		if ids[ref.name] == nil {
			ids[ref.name] = make(map[string]struct{})
		}
		ids[ref.name][ref.id] = struct{}{}
	}
	keys := make(map[studentKey]string)
	for name, set := range ids {
		for id := range set {
			key := name
			if len(set) > 1 {
				key = name + " (" + shortID(id) + ")"
			}
			keys[studentKey{id: id, name: name}] = key
		}
	}
	return keys
}

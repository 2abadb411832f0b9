package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-dashboard-api/internal/logview"
	"github.com/noah-isme/attendance-dashboard-api/internal/middleware"
	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/service"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
	"github.com/noah-isme/attendance-dashboard-api/pkg/response"
)

type attendanceLogService interface {
	ListLogs(ctx context.Context, viewer models.Viewer, query models.LogQuery) (*service.LogListing, error)
	SortOptions(role models.UserRole) []models.SortOptionInfo
	DefaultSort() string
}

type trendService interface {
	Series(ctx context.Context, viewer models.Viewer, rng models.TrendRange) (*models.TrendSeries, bool, error)
}

// AttendanceHandler serves the attendance log listing and chart endpoints.
type AttendanceHandler struct {
	logs   attendanceLogService
	trends trendService
}

// NewAttendanceHandler constructs the attendance handler.
func NewAttendanceHandler(logs attendanceLogService, trends trendService) *AttendanceHandler {
	return &AttendanceHandler{logs: logs, trends: trends}
}

// Logs godoc
// @Summary List attendance logs
// @Description One page of the caller's attendance logs after date filtering and sorting
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param sort query string false "latest-date, oldest-date, class-name, name or student-name"
// @Param page query int false "Page"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/logs [get]
func (h *AttendanceHandler) Logs(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query models.LogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid query"))
		return
	}

	listing, err := h.logs.ListLogs(c.Request.Context(), claims.Viewer(), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	snap := listing.Snapshot
	meta := middleware.ExtractMeta(c)
	meta["total_pages"] = snap.TotalPages
	meta["sort"] = string(snap.Sort)
	meta["from"] = formatBound(snap.DateRange.From)
	meta["to"] = formatBound(snap.DateRange.To)
	meta["role"] = string(snap.Role)
	if listing.DataErrors > 0 {
		meta["data_errors"] = listing.DataErrors
	}

	response.JSON(c, http.StatusOK, snap.Rows, listing.Pagination, meta)
}

// SortOptions godoc
// @Summary Sort options
// @Description Sort options offered to the caller's role
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /attendance/sort-options [get]
func (h *AttendanceHandler) SortOptions(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, h.logs.SortOptions(claims.Role), nil, map[string]interface{}{
		"default": h.logs.DefaultSort(),
	})
}

// Trends godoc
// @Summary Attendance trend
// @Description Daily attendance counts ending today; educators also get one series per student
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param range query string false "7d, 30d or 90d"
// @Success 200 {object} response.Envelope
// @Router /attendance/trends [get]
func (h *AttendanceHandler) Trends(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rng := models.TrendRange(c.DefaultQuery("range", string(models.TrendRange90d))).Normalize()

	series, cached, err := h.trends.Series(c.Request.Context(), claims.Viewer(), rng)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, series, nil, middleware.ExtractMeta(c))
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(logview.DateLayout)
}

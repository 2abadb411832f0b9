package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-dashboard-api/internal/middleware"
	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
	"github.com/noah-isme/attendance-dashboard-api/pkg/response"
)

type classService interface {
	CreateClass(ctx context.Context, actor models.Viewer, req models.CreateClassRequest) (*models.Class, error)
	GetClass(ctx context.Context, actor models.Viewer, id string) (*models.Class, error)
	UpdateClass(ctx context.Context, actor models.Viewer, id string, req models.UpdateClassRequest) (*models.Class, error)
	ListClasses(ctx context.Context, actor models.Viewer) ([]models.Class, error)
	ListMembers(ctx context.Context, actor models.Viewer, classID string, filter models.MemberFilter) ([]models.ClassMember, *models.Pagination, error)
	InviteMembers(ctx context.Context, actor models.Viewer, classID string, req models.InviteMembersRequest) (int, error)
	RemoveMember(ctx context.Context, actor models.Viewer, classID string, memberID int64) error
	SearchUsers(ctx context.Context, term string, excludeIDs []string, limit int) ([]models.UserSearchResult, error)
	SearchCandidates(ctx context.Context, actor models.Viewer, classID, term string, limit int) ([]models.UserSearchResult, error)
}

// ClassHandler manages class endpoints.
type ClassHandler struct {
	service classService
}

// NewClassHandler constructs handler.
func NewClassHandler(svc classService) *ClassHandler {
	return &ClassHandler{service: svc}
}

// List godoc
// @Summary List classes
// @Description Educators see the classes they own, students the classes they joined
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	classes, err := h.service.ListClasses(c.Request.Context(), claims.Viewer())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Get godoc
// @Summary Get class detail
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	class, err := h.service.GetClass(c.Request.Context(), claims.Viewer(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Create godoc
// @Summary Create class
// @Tags Classes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid payload"))
		return
	}
	class, err := h.service.CreateClass(c.Request.Context(), claims.Viewer(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// Update godoc
// @Summary Update class
// @Tags Classes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param payload body models.UpdateClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid payload"))
		return
	}
	class, err := h.service.UpdateClass(c.Request.Context(), claims.Viewer(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Members godoc
// @Summary List class members
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/members [get]
func (h *ClassHandler) Members(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter models.MemberFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	members, pagination, err := h.service.ListMembers(c.Request.Context(), claims.Viewer(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, pagination)
}

// Invite godoc
// @Summary Invite members
// @Description Add users to a class; ids that are already members are skipped
// @Tags Classes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param payload body models.InviteMembersRequest true "User ids"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/members [post]
func (h *ClassHandler) Invite(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.InviteMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid payload"))
		return
	}
	added, err := h.service.InviteMembers(c.Request.Context(), claims.Viewer(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"added": added}, nil)
}

// RemoveMember godoc
// @Summary Remove member
// @Tags Classes
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param memberId path int true "Membership ID"
// @Success 204
// @Router /classes/{id}/members/{memberId} [delete]
func (h *ClassHandler) RemoveMember(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	memberID, err := strconv.ParseInt(c.Param("memberId"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid member id"))
		return
	}
	if err := h.service.RemoveMember(c.Request.Context(), claims.Viewer(), c.Param("id"), memberID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Candidates godoc
// @Summary Search invitation candidates
// @Description Users matching the email term who are not yet members of the class
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param q query string false "Email substring"
// @Param limit query int false "Maximum results"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/candidates [get]
func (h *ClassHandler) Candidates(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	results, err := h.service.SearchCandidates(c.Request.Context(), claims.Viewer(), c.Param("id"), strings.TrimSpace(c.Query("q")), parseQueryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// SearchUsers godoc
// @Summary Search users by email
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param q query string false "Email substring"
// @Param exclude query string false "Comma separated user ids to skip"
// @Param limit query int false "Maximum results"
// @Success 200 {object} response.Envelope
// @Router /users/search [get]
func (h *ClassHandler) SearchUsers(c *gin.Context) {
	var exclude []string
	for _, id := range strings.Split(c.Query("exclude"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			exclude = append(exclude, id)
		}
	}
	results, err := h.service.SearchUsers(c.Request.Context(), strings.TrimSpace(c.Query("q")), exclude, parseQueryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
)

const (
	defaultUserSearchLimit = 20
	maxUserSearchLimit     = 100
)

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindByName(ctx context.Context, educatorID, name string) (*models.Class, error)
	Update(ctx context.Context, class *models.Class) error
	ListByEducator(ctx context.Context, educatorID string) ([]models.Class, error)
	ListByMember(ctx context.Context, userID string) ([]models.Class, error)
}

type classMemberRepository interface {
	List(ctx context.Context, classID string, filter models.MemberFilter) ([]models.ClassMember, int, error)
	MemberIDs(ctx context.Context, classID string) ([]string, error)
	IsMember(ctx context.Context, classID, userID string) (bool, error)
	InsertBatch(ctx context.Context, classID string, userIDs []string) (int, error)
	Delete(ctx context.Context, classID string, memberID int64) (bool, error)
}

type userSearchRepository interface {
	SearchByEmail(ctx context.Context, term string, excludeIDs []string, limit int) ([]models.UserSearchResult, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ClassService coordinates classes and their members.
type ClassService struct {
	classes     classRepository
	members     classMemberRepository
	users       userSearchRepository
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	searchLimit int
}

// ClassServiceConfig tunes member search.
type ClassServiceConfig struct {
	SearchLimit int
}

// NewClassService constructs a ClassService. audit may be nil.
func NewClassService(classes classRepository, members classMemberRepository, users userSearchRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, cfg ClassServiceConfig) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = defaultUserSearchLimit
	}
	return &ClassService{
		classes:     classes,
		members:     members,
		users:       users,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		searchLimit: clampSearchLimit(limit),
	}
}

// CreateClass creates a class owned by the educator.
func (s *ClassService) CreateClass(ctx context.Context, actor models.Viewer, req models.CreateClassRequest) (*models.Class, error) {
	if actor.Role != models.RoleEducator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only educators can create classes")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid class payload")
	}
	if err := s.ensureNameAvailable(ctx, actor.UserID, req.Name, ""); err != nil {
		return nil, err
	}

	class := &models.Class{EducatorID: actor.UserID, Name: req.Name, Description: req.Description}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Internal(err, "failed to create class")
	}
	s.record(ctx, actor.UserID, models.AuditActionClassCreate, class.ID, fmt.Sprintf(`{"name":%q}`, class.Name))
	return class, nil
}

// GetClass returns a class visible to the actor: its owner or one of its members.
func (s *ClassService) GetClass(ctx context.Context, actor models.Viewer, id string) (*models.Class, error) {
	class, err := s.findClass(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCanView(ctx, actor, class); err != nil {
		return nil, err
	}
	return class, nil
}

// UpdateClass edits a class. Only the owning educator may do so.
func (s *ClassService) UpdateClass(ctx context.Context, actor models.Viewer, id string, req models.UpdateClassRequest) (*models.Class, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid class payload")
	}
	class, err := s.ownedClass(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if class.Name != req.Name {
		if err := s.ensureNameAvailable(ctx, actor.UserID, req.Name, class.ID); err != nil {
			return nil, err
		}
	}

	class.Name = req.Name
	class.Description = req.Description
	if err := s.classes.Update(ctx, class); err != nil {
		return nil, appErrors.Internal(err, "failed to update class")
	}
	s.record(ctx, actor.UserID, models.AuditActionClassUpdate, class.ID, fmt.Sprintf(`{"name":%q}`, class.Name))
	return class, nil
}

// ListClasses returns owned classes for educators and joined classes for students.
func (s *ClassService) ListClasses(ctx context.Context, actor models.Viewer) ([]models.Class, error) {
	var (
		classes []models.Class
		err     error
	)
	switch actor.Role {
	case models.RoleEducator:
		classes, err = s.classes.ListByEducator(ctx, actor.UserID)
	case models.RoleStudent:
		classes, err = s.classes.ListByMember(ctx, actor.UserID)
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list classes")
	}
	if classes == nil {
		classes = []models.Class{}
	}
	return classes, nil
}

// ListMembers returns one page of class members and the pagination metadata.
func (s *ClassService) ListMembers(ctx context.Context, actor models.Viewer, classID string, filter models.MemberFilter) ([]models.ClassMember, *models.Pagination, error) {
	class, err := s.findClass(ctx, classID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.ensureCanView(ctx, actor, class); err != nil {
		return nil, nil, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	members, total, err := s.members.List(ctx, classID, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list class members")
	}
	if members == nil {
		members = []models.ClassMember{}
	}
	return members, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// InviteMembers adds users to an owned class. Users already in the class are
// skipped and an empty request is a no-op. It returns how many were added.
func (s *ClassService) InviteMembers(ctx context.Context, actor models.Viewer, classID string, req models.InviteMembersRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Invalid(err, "invalid invite payload")
	}
	if len(req.UserIDs) == 0 {
		return 0, nil
	}
	class, err := s.ownedClass(ctx, actor, classID)
	if err != nil {
		return 0, err
	}

	existing, err := s.members.MemberIDs(ctx, class.ID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to load class members")
	}
	skip := make(map[string]struct{}, len(existing)+len(req.UserIDs))
	for _, id := range existing {
		skip[id] = struct{}{}
	}
	toAdd := make([]string, 0, len(req.UserIDs))
	for _, id := range req.UserIDs {
		id = strings.TrimSpace(id)
		if _, ok := skip[id]; ok || id == "" {
			continue
		}
		skip[id] = struct{}{}
		toAdd = append(toAdd, id)
	}
	if len(toAdd) == 0 {
		return 0, nil
	}

	added, err := s.members.InsertBatch(ctx, class.ID, toAdd)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to invite members")
	}
	s.record(ctx, actor.UserID, models.AuditActionMemberInvite, class.ID, fmt.Sprintf(`{"added":%d}`, added))
	return added, nil
}

// RemoveMember deletes one membership row from an owned class.
func (s *ClassService) RemoveMember(ctx context.Context, actor models.Viewer, classID string, memberID int64) error {
	class, err := s.ownedClass(ctx, actor, classID)
	if err != nil {
		return err
	}
	removed, err := s.members.Delete(ctx, class.ID, memberID)
	if err != nil {
		return appErrors.Internal(err, "failed to remove member")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "member not found")
	}
	s.record(ctx, actor.UserID, models.AuditActionMemberRemove, class.ID, fmt.Sprintf(`{"member_id":%d}`, memberID))
	return nil
}

// SearchUsers finds users whose email contains term, skipping excludeIDs.
// A non-positive limit uses the configured default; the limit never exceeds 100.
func (s *ClassService) SearchUsers(ctx context.Context, term string, excludeIDs []string, limit int) ([]models.UserSearchResult, error) {
	if limit <= 0 {
		limit = s.searchLimit
	}
	results, err := s.users.SearchByEmail(ctx, term, excludeIDs, clampSearchLimit(limit))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to search users")
	}
	if results == nil {
		results = []models.UserSearchResult{}
	}
	return results, nil
}

// SearchCandidates searches users who are not yet members of an owned class.
func (s *ClassService) SearchCandidates(ctx context.Context, actor models.Viewer, classID, term string, limit int) ([]models.UserSearchResult, error) {
	class, err := s.ownedClass(ctx, actor, classID)
	if err != nil {
		return nil, err
	}
	existing, err := s.members.MemberIDs(ctx, class.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load class members")
	}
	exclude := append(existing, actor.UserID)
	return s.SearchUsers(ctx, term, exclude, limit)
}

func (s *ClassService) findClass(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	return class, nil
}

func (s *ClassService) ownedClass(ctx context.Context, actor models.Viewer, id string) (*models.Class, error) {
	class, err := s.findClass(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleEducator || class.EducatorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning educator can change this class")
	}
	return class, nil
}

func (s *ClassService) ensureCanView(ctx context.Context, actor models.Viewer, class *models.Class) error {
	if class.EducatorID == actor.UserID {
		return nil
	}
	member, err := s.members.IsMember(ctx, class.ID, actor.UserID)
	if err != nil {
		return appErrors.Internal(err, "failed to check membership")
	}
	if !member {
		return appErrors.Clone(appErrors.ErrForbidden, "not a member of this class")
	}
	return nil
}

func (s *ClassService) ensureNameAvailable(ctx context.Context, educatorID, name, excludeID string) error {
	existing, err := s.classes.FindByName(ctx, educatorID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Internal(err, "failed to check class name")
	}
	if existing.ID != excludeID {
		return appErrors.Clone(appErrors.ErrConflict, "class name already used")
	}
	return nil
}

func (s *ClassService) record(ctx context.Context, userID, action, classID, payload string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "class",
		ResourceID: &classID,
		NewValues:  []byte(payload),
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func clampSearchLimit(limit int) int {
	if limit > maxUserSearchLimit {
		return maxUserSearchLimit
	}
	return limit
}

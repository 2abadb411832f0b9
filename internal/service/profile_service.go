package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
}

type userUpdateNotifier interface {
	NotifyUserUpdated(userID string)
}

// ProfileService reads and edits user profiles.
type ProfileService struct {
	repo      profileRepository
	notifier  userUpdateNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs a ProfileService. notifier may be nil.
func NewProfileService(repo profileRepository, notifier userUpdateNotifier, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProfileService{repo: repo, notifier: notifier, validator: validate, logger: logger}
}

// GetProfile returns the profile with the given id.
func (s *ProfileService) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Internal(err, "failed to load profile")
	}
	return profile, nil
}

// UpdateProfile validates and stores editable profile fields.
func (s *ProfileService) UpdateProfile(ctx context.Context, id string, req models.UpdateProfileRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid profile payload")
	}

	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	profile.FirstName = req.FirstName
	profile.LastName = req.LastName
	profile.Avatar = req.Avatar
	if err := s.repo.Update(ctx, profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Internal(err, "failed to update profile")
	}

	s.logger.Info("profile updated", zap.String("user_id", id))
	if s.notifier != nil {
		s.notifier.NotifyUserUpdated(id)
	}
	return profile, nil
}

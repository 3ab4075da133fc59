package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/models"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context) ([]models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SetRoles(ctx context.Context, userID string, roles []models.UserRole) error
	LoginActivity(ctx context.Context) ([]models.LoginActivity, error)
}

// UserService handles administrative user management.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns every account with its roles.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// SetRoles replaces the roles of the account identified by email.
func (s *UserService) SetRoles(ctx context.Context, actorID string, req models.UpdateRolesRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role update")
	}

	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	roles := dedupeRoles(req.Roles)
	if err := s.repo.SetRoles(ctx, user.ID, roles); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update roles")
	}
	user.Roles = roles

	s.logger.Info("user roles updated",
		zap.String("actor_id", actorID),
		zap.String("user_id", user.ID),
		zap.Any("roles", roles),
	)
	return user, nil
}

// LoginActivity reports login counts and last seen time per user.
func (s *UserService) LoginActivity(ctx context.Context) ([]models.LoginActivity, error) {
	activity, err := s.repo.LoginActivity(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load login activity")
	}
	if activity == nil {
		activity = []models.LoginActivity{}
	}
	return activity, nil
}

func dedupeRoles(roles []models.UserRole) []models.UserRole {
	seen := make(map[models.UserRole]struct{}, len(roles))
	out := make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

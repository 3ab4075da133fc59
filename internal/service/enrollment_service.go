package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/repository"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

type enrollmentRepository interface {
	GetOrCreate(ctx context.Context, userID, courseID string) (*models.Enrollment, bool, error)
	FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	CreateCheckpoint(ctx context.Context, enrollmentID, specificationID string) (*models.Checkpoint, error)
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollmentService orchestrates enrollment and checkpoint workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseLookup, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// Enroll returns the learner's enrollment in courseID, creating it on first use.
func (s *EnrollmentService) Enroll(ctx context.Context, userID, courseID string) (*models.EnrollResult, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrollment, created, err := s.repo.GetOrCreate(ctx, userID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
	}
	if created {
		s.logger.Info("learner enrolled", zap.String("user_id", userID), zap.String("course_id", courseID))
	}
	return &models.EnrollResult{Enrollment: enrollment, Created: created}, nil
}

// RecordCheckpoint marks a specification completed for an enrollment.
// Recording the same checkpoint twice returns the original.
func (s *EnrollmentService) RecordCheckpoint(ctx context.Context, req models.CheckpointRequest) (*models.Checkpoint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkpoint payload")
	}
	if _, err := s.repo.FindDetail(ctx, req.EnrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	checkpoint, err := s.repo.CreateCheckpoint(ctx, req.EnrollmentID, req.SpecificationID)
	if err != nil {
		if errors.Is(err, repository.ErrMissingReference) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "specification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record checkpoint")
	}
	return checkpoint, nil
}

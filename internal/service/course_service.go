package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/models"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Goals(ctx context.Context, courseIDs ...string) (map[string][]models.LearningGoal, error)
}

type learnerEnrollmentReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	CompletedSpecificationIDs(ctx context.Context, enrollmentID string) ([]string, error)
}

// CourseService exposes the course catalogue and curricula.
type CourseService struct {
	courses     courseRepository
	enrollments learnerEnrollmentReader
	logger      *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(courses courseRepository, enrollments learnerEnrollmentReader, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, enrollments: enrollments, logger: logger}
}

// List returns every course with its learning goals, flagged when userID is
// enrolled.
func (s *CourseService) List(ctx context.Context, userID string) ([]models.CourseListItem, error) {
	courses, err := s.courses.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	ids := make([]string, 0, len(courses))
	for _, course := range courses {
		ids = append(ids, course.ID)
	}
	goals, err := s.courses.Goals(ctx, ids...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learning goals")
	}
	enrollments, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	enrolled := make(map[string]struct{}, len(enrollments))
	for _, e := range enrollments {
		enrolled[e.CourseID] = struct{}{}
	}

	items := make([]models.CourseListItem, 0, len(courses))
	for _, course := range courses {
		courseGoals := goals[course.ID]
		if courseGoals == nil {
			courseGoals = []models.LearningGoal{}
		}
		_, ok := enrolled[course.ID]
		items = append(items, models.CourseListItem{Course: course, LearningGoals: courseGoals, Enrolled: ok})
	}
	return items, nil
}

// Curriculum returns the goal tree of a course. When userID is enrolled the
// specifications carry its completion state.
func (s *CourseService) Curriculum(ctx context.Context, userID, courseID string) (*models.Curriculum, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	goals, err := s.courses.Goals(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learning goals")
	}

	completed := map[string]struct{}{}
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	switch {
	case err == nil:
		ids, err := s.enrollments.CompletedSpecificationIDs(ctx, enrollment.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checkpoints")
		}
		for _, id := range ids {
			completed[id] = struct{}{}
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	tree := make([]models.LearningGoal, 0, len(goals[courseID]))
	for _, goal := range goals[courseID] {
		specs := make([]models.Specification, len(goal.Specifications))
		for i, spec := range goal.Specifications {
			_, spec.Completed = completed[spec.ID]
			specs[i] = spec
		}
		goal.Specifications = specs
		tree = append(tree, goal)
	}
	return &models.Curriculum{Course: *course, Goals: tree}, nil
}

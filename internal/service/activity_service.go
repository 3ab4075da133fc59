package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/repository"
)

type activityStore interface {
	RecordActivity(ctx context.Context, in repository.ActivityRecord) (*models.Dashboard, error)
}

// ActivityService pushes chat activity into the enrollment dashboard.
type ActivityService struct {
	store  activityStore
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
}

// NewActivityService constructs an ActivityService. cache may be nil.
func NewActivityService(store activityStore, cache *CacheService, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{store: store, cache: cache, logger: logger, now: time.Now}
}

// RecordChatActivity marks the learner active on the enrollment and refreshes
// its dashboard row.
func (s *ActivityService) RecordChatActivity(ctx context.Context, enrollment *models.EnrollmentDetail) (*models.Dashboard, error) {
	student := enrollment.StudentName()
	dashboard, err := s.store.RecordActivity(ctx, repository.ActivityRecord{
		EnrollmentID:  enrollment.ID,
		Student:       student,
		Course:        enrollment.CourseName,
		Creator:       student,
		CourseStarted: enrollment.StartingDate,
		At:            s.now().UTC(),
	})
	if err != nil {
		return nil, persistenceError(err, "failed to record chat activity")
	}
	if err := s.cache.Invalidate(ctx, teacherDashboardCachePattern); err != nil {
		s.logger.Debug("dashboard cache invalidation skipped", zap.Error(err))
	}
	return dashboard, nil
}

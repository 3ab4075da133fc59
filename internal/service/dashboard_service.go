package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/pkg/export"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

const (
	teacherDashboardCachePrefix  = "dashboard:teacher:"
	teacherDashboardCachePattern = teacherDashboardCachePrefix + "*"
)

type dashboardReader interface {
	List(ctx context.Context, filter models.DashboardFilter) ([]models.Dashboard, error)
	ListByUser(ctx context.Context, userID string) (map[string]models.Dashboard, error)
}

type learnerEnrollmentLister interface {
	ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error)
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Dashboards  dashboardReader
	Enrollments learnerEnrollmentLister
	Profiles    studentProfileReader
	Cache       *CacheService
	CacheTTL    time.Duration
	Logger      *zap.Logger
}

// DashboardService composes learner and teacher dashboards.
type DashboardService struct {
	dashboards  dashboardReader
	enrollments learnerEnrollmentLister
	profiles    studentProfileReader
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	if params.CacheTTL <= 0 {
		params.CacheTTL = 5 * time.Minute
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &DashboardService{
		dashboards:  params.Dashboards,
		enrollments: params.Enrollments,
		profiles:    params.Profiles,
		cache:       params.Cache,
		cacheTTL:    params.CacheTTL,
		logger:      params.Logger,
		now:         time.Now,
	}
}

// Learner returns the caller's enrollments with their activity and progress.
func (s *DashboardService) Learner(ctx context.Context, userID string) (*models.LearnerDashboard, error) {
	var (
		enrollments []models.EnrollmentDetail
		activity    map[string]models.Dashboard
		profile     *models.StudentProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		enrollments, err = s.enrollments.ListByUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		activity, err = s.dashboards.ListByUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		profile, err = s.profiles.GetOrCreate(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, persistenceError(err, "failed to load learner dashboard")
	}

	out := &models.LearnerDashboard{IntakeCompleted: profile.IsCompleted, Courses: make([]models.LearnerCourse, 0, len(enrollments))}
	for _, e := range enrollments {
		course := models.LearnerCourse{
			EnrollmentID: e.ID,
			CourseID:     e.CourseID,
			CourseName:   e.CourseName,
			StartingDate: e.StartingDate,
			LastLogin:    e.LastLogin,
		}
		if d, ok := activity[e.ID]; ok {
			d := d
			course.Activity = &d
		}
		if p, ok := profile.LearningProgress[e.CourseID]; ok {
			p := p
			course.Progress = &p
		}
		out.Courses = append(out.Courses, course)
	}
	return out, nil
}

// Teacher lists every enrollment dashboard matching filter. The boolean
// reports a cache hit.
func (s *DashboardService) Teacher(ctx context.Context, filter models.DashboardFilter) ([]models.Dashboard, bool, error) {
	filter.Course = strings.TrimSpace(filter.Course)
	filter.Search = strings.ToLower(strings.TrimSpace(filter.Search))

	var rows []models.Dashboard
	hit, err := s.cache.GetOrLoad(ctx, teacherCacheKey(filter), &rows, func(ctx context.Context) (interface{}, error) {
		rows, err := s.dashboards.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []models.Dashboard{}
		}
		return rows, nil
	})
	if err != nil {
		return nil, false, persistenceError(err, "failed to list dashboards")
	}
	return rows, hit, nil
}

// Export renders the teacher dashboard listing as a downloadable file.
func (s *DashboardService) Export(ctx context.Context, filter models.DashboardFilter, format string) (*export.File, error) {
	f, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(format)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	rows, _, err := s.Teacher(ctx, filter)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Title:   "Dashboard " + s.now().UTC().Format("2006-01-02"),
		Columns: []string{"Student", "Course", "Creator", "Course started", "Course completed", "Last login", "Mean session (min)"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, d := range rows {
		data.Rows = append(data.Rows, []string{
			d.Student,
			d.Course,
			d.Creator,
			d.CourseStarted.UTC().Format("2006-01-02"),
			formatOptionalTime(d.CourseCompleted, "2006-01-02"),
			formatOptionalTime(d.StudentLastLogin, "2006-01-02 15:04"),
			fmt.Sprintf("%.1f", d.MeanSessionMinutes),
		})
	}

	file, err := export.Render(f, "dashboards-"+s.now().UTC().Format("20060102"), data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("dashboard exported", zap.String("format", string(f)), zap.Int("rows", len(rows)))
	return file, nil
}

func teacherCacheKey(filter models.DashboardFilter) string {
	course := filter.Course
	if course == "" {
		course = "all"
	}
	return fmt.Sprintf("%s%s:%s", teacherDashboardCachePrefix, course, filter.Search)
}

func formatOptionalTime(ts *time.Time, layout string) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(layout)
}

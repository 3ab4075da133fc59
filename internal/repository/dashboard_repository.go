package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/alers-api/internal/models"
)

const dashboardColumns = `id, enrollment_id, student, course, creator, course_started, course_completed, student_last_login, mean_session_minutes, updated_at`

// DashboardRepository persists per-enrollment activity aggregates.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository creates a new instance of DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// ActivityRecord identifies the enrollment whose activity is recorded.
type ActivityRecord struct {
	EnrollmentID  string
	Student       string
	Course        string
	Creator       string
	CourseStarted time.Time
	At            time.Time
}

// RecordActivity touches the enrollment's last login and refreshes its
// dashboard row in one transaction. The mean session duration is recomputed
// over ended sessions and left unchanged when there are none.
func (r *DashboardRepository) RecordActivity(ctx context.Context, in ActivityRecord) (dashboard *models.Dashboard, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin activity tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET last_login = $2 WHERE id = $1`, in.EnrollmentID, in.At); err != nil {
		return nil, fmt.Errorf("touch enrollment last login: %w", err)
	}

	var mean sql.NullFloat64
	const meanQuery = `SELECT AVG(EXTRACT(EPOCH FROM ("end" - start)) / 60.0) FROM chat_sessions WHERE enrollment_id = $1 AND "end" IS NOT NULL`
	if err = tx.GetContext(ctx, &mean, meanQuery, in.EnrollmentID); err != nil {
		return nil, fmt.Errorf("mean session minutes: %w", err)
	}

	upsert := `INSERT INTO dashboards (id, enrollment_id, student, course, creator, course_started, student_last_login, mean_session_minutes, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::double precision, 0), $7)
ON CONFLICT (enrollment_id) DO UPDATE
SET student_last_login = EXCLUDED.student_last_login,
    mean_session_minutes = COALESCE($8::double precision, dashboards.mean_session_minutes),
    updated_at = EXCLUDED.updated_at
RETURNING ` + dashboardColumns
	dashboard = &models.Dashboard{}
	if err = tx.GetContext(ctx, dashboard, upsert,
		uuid.NewString(), in.EnrollmentID, in.Student, in.Course, in.Creator, in.CourseStarted, in.At, mean); err != nil {
		return nil, fmt.Errorf("upsert dashboard: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activity: %w", err)
	}
	return dashboard, nil
}

// List returns dashboards matching the filter ordered by last activity.
func (r *DashboardRepository) List(ctx context.Context, filter models.DashboardFilter) ([]models.Dashboard, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if course := strings.TrimSpace(filter.Course); course != "" {
		args = append(args, course)
		conditions = append(conditions, fmt.Sprintf("course = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(student) LIKE $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + dashboardColumns + ` FROM dashboards`)
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY student_last_login DESC NULLS LAST, student")

	var dashboards []models.Dashboard
	if err := r.db.SelectContext(ctx, &dashboards, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	return dashboards, nil
}

// ListByUser returns dashboards of a learner keyed by enrollment id.
func (r *DashboardRepository) ListByUser(ctx context.Context, userID string) (map[string]models.Dashboard, error) {
	const query = `SELECT d.id, d.enrollment_id, d.student, d.course, d.creator, d.course_started, d.course_completed, d.student_last_login, d.mean_session_minutes, d.updated_at
FROM dashboards d JOIN enrollments e ON e.id = d.enrollment_id WHERE e.user_id = $1`
	var dashboards []models.Dashboard
	if err := r.db.SelectContext(ctx, &dashboards, query, userID); err != nil {
		return nil, fmt.Errorf("list dashboards by user: %w", err)
	}
	result := make(map[string]models.Dashboard, len(dashboards))
	for _, d := range dashboards {
		result[d.EnrollmentID] = d
	}
	return result, nil
}

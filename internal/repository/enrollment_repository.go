package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/alers-api/internal/models"
)

const enrollmentColumns = `id, user_id, course_id, starting_date, ending_date, last_login`

const enrollmentDetailSelect = `SELECT e.id, e.user_id, e.course_id, e.starting_date, e.ending_date, e.last_login,
	c.name AS course_name, c.description AS course_description,
	u.username AS student_username, u.first_name AS student_first_name, u.last_name AS student_last_name
FROM enrollments e
JOIN courses c ON c.id = e.course_id
JOIN users u ON u.id = e.user_id`

// EnrollmentRepository manages enrollments, their profiles and checkpoints.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new instance of EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// GetOrCreate returns the enrollment for (user, course), creating it when
// missing. The boolean reports whether a row was inserted.
func (r *EnrollmentRepository) GetOrCreate(ctx context.Context, userID, courseID string) (*models.Enrollment, bool, error) {
	now := time.Now().UTC()
	insert := `INSERT INTO enrollments (id, user_id, course_id, starting_date, last_login) VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (user_id, course_id) DO NOTHING
RETURNING ` + enrollmentColumns
	var enrollment models.Enrollment
	err := r.db.GetContext(ctx, &enrollment, insert, uuid.NewString(), userID, courseID, now)
	if err == nil {
		return &enrollment, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("create enrollment: %w", err)
	}

	existing, err := r.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByUserAndCourse returns the enrollment of a learner in a course.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindDetail returns an enrollment joined with course and learner names.
func (r *EnrollmentRepository) FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// ListByUser returns the enrollments of a learner ordered by course name.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.user_id = $1 ORDER BY c.name`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, userID); err != nil {
		return nil, fmt.Errorf("list enrollments by user: %w", err)
	}
	return details, nil
}

// TouchLastLogin records learner activity on an enrollment.
func (r *EnrollmentRepository) TouchLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE enrollments SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("touch enrollment last login: %w", err)
	}
	return nil
}

// LatestProfile returns the newest Profile of an enrollment or sql.ErrNoRows.
func (r *EnrollmentRepository) LatestProfile(ctx context.Context, enrollmentID string) (*models.Profile, error) {
	const query = `SELECT id, enrollment_id, chat_session_id, content, created_at FROM profiles WHERE enrollment_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find latest profile: %w", err)
	}
	return &profile, nil
}

// CompletedSpecificationIDs lists specifications checkpointed for an enrollment.
func (r *EnrollmentRepository) CompletedSpecificationIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	const query = `SELECT specification_id FROM checkpoints WHERE enrollment_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return ids, nil
}

// CreateCheckpoint marks a specification completed. Existing checkpoints are
// left untouched and returned.
func (r *EnrollmentRepository) CreateCheckpoint(ctx context.Context, enrollmentID, specificationID string) (*models.Checkpoint, error) {
	const query = `INSERT INTO checkpoints (id, enrollment_id, specification_id, completed_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (enrollment_id, specification_id) DO UPDATE SET enrollment_id = EXCLUDED.enrollment_id
RETURNING id, enrollment_id, specification_id, completed_at`
	var checkpoint models.Checkpoint
	if err := r.db.GetContext(ctx, &checkpoint, query, uuid.NewString(), enrollmentID, specificationID, time.Now().UTC()); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, ErrMissingReference
		}
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	return &checkpoint, nil
}

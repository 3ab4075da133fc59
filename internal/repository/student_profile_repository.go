package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/alers-api/internal/models"
)

const studentProfileColumns = `user_id, summary, is_completed, completed_at, learning_progress, created_at, updated_at`

// StudentProfileRepository persists intake outcomes and learning progress.
type StudentProfileRepository struct {
	db *sqlx.DB
}

// NewStudentProfileRepository creates a new instance of StudentProfileRepository.
func NewStudentProfileRepository(db *sqlx.DB) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

// GetOrCreate returns the learner's profile, inserting an empty one if missing.
func (r *StudentProfileRepository) GetOrCreate(ctx context.Context, userID string) (*models.StudentProfile, error) {
	now := time.Now().UTC()
	query := `INSERT INTO student_profiles (user_id, created_at, updated_at) VALUES ($1, $2, $2)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING ` + studentProfileColumns
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID, now); err != nil {
		return nil, fmt.Errorf("get or create student profile: %w", err)
	}
	if profile.LearningProgress == nil {
		profile.LearningProgress = models.LearningProgress{}
	}
	return &profile, nil
}

// SaveProgress replaces a single course entry of the progress map, leaving
// other courses untouched.
func (r *StudentProfileRepository) SaveProgress(ctx context.Context, userID, courseID string, progress models.CourseProgress) error {
	entry := models.LearningProgress{courseID: progress}
	payload, err := entry.Value()
	if err != nil {
		return err
	}
	const query = `INSERT INTO student_profiles (user_id, learning_progress, created_at, updated_at) VALUES ($1, $3::jsonb, $4, $4)
ON CONFLICT (user_id) DO UPDATE
SET learning_progress = jsonb_set(student_profiles.learning_progress, ARRAY[$2::text], ($3::jsonb) -> $2::text, true),
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, userID, courseID, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("save learning progress: %w", err)
	}
	return nil
}

// completeProfileQuery stores the intake summary and completes the profile.
// Once completed, a profile stays completed and keeps its first completion time.
const completeProfileQuery = `INSERT INTO student_profiles (user_id, summary, is_completed, completed_at, created_at, updated_at)
VALUES ($1, $2, TRUE, $3, $3, $3)
ON CONFLICT (user_id) DO UPDATE
SET summary = EXCLUDED.summary, is_completed = TRUE,
    completed_at = COALESCE(student_profiles.completed_at, EXCLUDED.completed_at),
    updated_at = EXCLUDED.updated_at`

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/alers-api/internal/models"
)

// CourseRepository reads courses, their curriculum and instructors.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new instance of CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns all courses ordered by name.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT id, name, description, image_url, created_at FROM courses ORDER BY name`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, description, image_url, created_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// Goals returns the learning goals with specifications of the given courses,
// keyed by course id and ordered by position.
func (r *CourseRepository) Goals(ctx context.Context, courseIDs ...string) (map[string][]models.LearningGoal, error) {
	result := make(map[string][]models.LearningGoal, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}

	const goalsQuery = `SELECT id, course_id, description, position FROM learning_goals WHERE course_id = ANY($1) ORDER BY course_id, position, id`
	var goals []models.LearningGoal
	if err := r.db.SelectContext(ctx, &goals, goalsQuery, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list learning goals: %w", err)
	}

	const specsQuery = `SELECT s.id, s.learning_goal_id, s.description, s.position
FROM specifications s
JOIN learning_goals g ON g.id = s.learning_goal_id
WHERE g.course_id = ANY($1)
ORDER BY s.learning_goal_id, s.position, s.id`
	var specs []models.Specification
	if err := r.db.SelectContext(ctx, &specs, specsQuery, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list specifications: %w", err)
	}

	byGoal := make(map[string][]models.Specification, len(goals))
	for _, spec := range specs {
		byGoal[spec.LearningGoalID] = append(byGoal[spec.LearningGoalID], spec)
	}
	for _, goal := range goals {
		goal.Specifications = byGoal[goal.ID]
		if goal.Specifications == nil {
			goal.Specifications = []models.Specification{}
		}
		result[goal.CourseID] = append(result[goal.CourseID], goal)
	}
	return result, nil
}

// FirstInstructor returns the lead instructor of a course or sql.ErrNoRows.
func (r *CourseRepository) FirstInstructor(ctx context.Context, courseID string) (*models.CourseInstructor, error) {
	const query = `SELECT id, course_id, name, description, persona_prompt FROM course_instructors WHERE course_id = $1 ORDER BY position, id LIMIT 1`
	var instructor models.CourseInstructor
	if err := r.db.GetContext(ctx, &instructor, query, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find instructor: %w", err)
	}
	return &instructor, nil
}

// SaveCurriculum upserts a course with its goals, specifications and
// instructors by id. Rows missing from the input are left in place so
// checkpoints pointing at them survive a reseed.
func (r *CourseRepository) SaveCurriculum(ctx context.Context, course *models.Course, goals []models.LearningGoal, instructors []models.CourseInstructor) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save curriculum: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const courseQuery = `INSERT INTO courses (id, name, description, image_url) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, image_url = EXCLUDED.image_url`
	if _, err = tx.ExecContext(ctx, courseQuery, course.ID, course.Name, course.Description, course.ImageURL); err != nil {
		return fmt.Errorf("upsert course: %w", err)
	}

	const goalQuery = `INSERT INTO learning_goals (id, course_id, description, position) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description, position = EXCLUDED.position`
	const specQuery = `INSERT INTO specifications (id, learning_goal_id, description, position) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description, position = EXCLUDED.position`
	for _, goal := range goals {
		if _, err = tx.ExecContext(ctx, goalQuery, goal.ID, course.ID, goal.Description, goal.Position); err != nil {
			return fmt.Errorf("upsert learning goal: %w", err)
		}
		for _, spec := range goal.Specifications {
			if _, err = tx.ExecContext(ctx, specQuery, spec.ID, goal.ID, spec.Description, spec.Position); err != nil {
				return fmt.Errorf("upsert specification: %w", err)
			}
		}
	}

	const instructorQuery = `INSERT INTO course_instructors (id, course_id, name, description, persona_prompt, position) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, persona_prompt = EXCLUDED.persona_prompt, position = EXCLUDED.position`
	for i, in := range instructors {
		if _, err = tx.ExecContext(ctx, instructorQuery, in.ID, course.ID, in.Name, in.Description, in.PersonaPrompt, i); err != nil {
			return fmt.Errorf("upsert instructor: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save curriculum: %w", err)
	}
	return nil
}

package models

import "time"

// Course is a curriculum learners can enroll in.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	ImageURL    string    `db:"image_url" json:"image_url,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// LearningGoal groups specifications inside a course, ordered by Position.
type LearningGoal struct {
	ID             string          `db:"id" json:"id"`
	CourseID       string          `db:"course_id" json:"course_id"`
	Description    string          `db:"description" json:"description"`
	Position       int             `db:"position" json:"position"`
	Specifications []Specification `db:"-" json:"specifications"`
}

// Specification is one checkable outcome of a learning goal.
type Specification struct {
	ID             string `db:"id" json:"id"`
	LearningGoalID string `db:"learning_goal_id" json:"learning_goal_id"`
	Description    string `db:"description" json:"description"`
	Position       int    `db:"position" json:"position"`
	Completed      bool   `db:"-" json:"completed"`
}

// CourseInstructor describes the tutor persona attached to a course.
type CourseInstructor struct {
	ID            string `db:"id" json:"id"`
	CourseID      string `db:"course_id" json:"course_id"`
	Name          string `db:"name" json:"name"`
	Description   string `db:"description" json:"description"`
	PersonaPrompt string `db:"persona_prompt" json:"persona_prompt,omitempty"`
}

// CourseListItem is a course with its goals and the caller's enrollment state.
type CourseListItem struct {
	Course
	LearningGoals []LearningGoal `json:"learning_goals"`
	Enrolled      bool           `json:"enrolled"`
}

// Curriculum is the goal and specification tree of a course, optionally
// marked with the completion state of one enrollment.
type Curriculum struct {
	Course Course         `json:"course"`
	Goals  []LearningGoal `json:"goals"`
}

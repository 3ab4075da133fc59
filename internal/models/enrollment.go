package models

import "time"

// Enrollment links a learner to a course. Unique per (user, course).
type Enrollment struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	CourseID     string     `db:"course_id" json:"course_id"`
	StartingDate time.Time  `db:"starting_date" json:"starting_date"`
	EndingDate   *time.Time `db:"ending_date" json:"ending_date,omitempty"`
	LastLogin    time.Time  `db:"last_login" json:"last_login"`
}

// EnrollmentDetail enriches Enrollment with names used by prompts and dashboards.
type EnrollmentDetail struct {
	Enrollment
	CourseName        string `db:"course_name" json:"course_name"`
	CourseDescription string `db:"course_description" json:"course_description"`
	StudentUsername   string `db:"student_username" json:"student_username"`
	StudentFirstName  string `db:"student_first_name" json:"-"`
	StudentLastName   string `db:"student_last_name" json:"-"`
}

// StudentName mirrors User.FullName for the enrolled learner.
func (e *EnrollmentDetail) StudentName() string {
	u := User{Username: e.StudentUsername, FirstName: e.StudentFirstName, LastName: e.StudentLastName}
	return u.FullName()
}

// EnrollResult reports whether Enroll created a new enrollment.
type EnrollResult struct {
	Enrollment *Enrollment `json:"enrollment"`
	Created    bool        `json:"created"`
}

// Profile is learner-specific guidance attached to an enrollment.
type Profile struct {
	ID            string    `db:"id" json:"id"`
	EnrollmentID  string    `db:"enrollment_id" json:"enrollment_id"`
	ChatSessionID *string   `db:"chat_session_id" json:"chat_session_id,omitempty"`
	Content       string    `db:"content" json:"content"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Checkpoint records a completed specification. Unique per (enrollment, specification).
type Checkpoint struct {
	ID              string    `db:"id" json:"id"`
	EnrollmentID    string    `db:"enrollment_id" json:"enrollment_id"`
	SpecificationID string    `db:"specification_id" json:"specification_id"`
	CompletedAt     time.Time `db:"completed_at" json:"completed_at"`
}

// CheckpointRequest marks a specification as completed for an enrollment.
type CheckpointRequest struct {
	EnrollmentID    string `json:"enrollment_id" validate:"required,uuid"`
	SpecificationID string `json:"specification_id" validate:"required,uuid"`
}

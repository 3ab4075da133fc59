package models

import "time"

// Dashboard aggregates activity for one enrollment.
type Dashboard struct {
	ID                 string     `db:"id" json:"id"`
	EnrollmentID       string     `db:"enrollment_id" json:"enrollment_id"`
	Student            string     `db:"student" json:"student"`
	Course             string     `db:"course" json:"course"`
	Creator            string     `db:"creator" json:"creator"`
	CourseStarted      time.Time  `db:"course_started" json:"course_started"`
	CourseCompleted    *time.Time `db:"course_completed" json:"course_completed,omitempty"`
	StudentLastLogin   *time.Time `db:"student_last_login" json:"student_last_login,omitempty"`
	MeanSessionMinutes float64    `db:"mean_session_minutes" json:"mean_session_minutes"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// LearnerCourse is one row of a learner's own dashboard.
type LearnerCourse struct {
	EnrollmentID string          `json:"enrollment_id"`
	CourseID     string          `json:"course_id"`
	CourseName   string          `json:"course_name"`
	StartingDate time.Time       `json:"starting_date"`
	LastLogin    time.Time       `json:"last_login"`
	Activity     *Dashboard      `json:"activity,omitempty"`
	Progress     *CourseProgress `json:"progress,omitempty"`
}

// LearnerDashboard is the learner-facing overview.
type LearnerDashboard struct {
	IntakeCompleted bool            `json:"intake_completed"`
	Courses         []LearnerCourse `json:"courses"`
}

// DashboardFilter narrows the teacher dashboard listing.
type DashboardFilter struct {
	Course string
	Search string
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CourseProgress is the latest session-scoped digest for one course.
type CourseProgress struct {
	Course    string    `json:"course"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LearningProgress maps course id to progress, persisted as JSONB.
type LearningProgress map[string]CourseProgress

// Value marshals the progress map for persistence.
func (p LearningProgress) Value() (driver.Value, error) {
	if p == nil {
		p = LearningProgress{}
	}
	data, err := json.Marshal(map[string]CourseProgress(p))
	if err != nil {
		return nil, fmt.Errorf("marshal learning progress: %w", err)
	}
	return string(data), nil
}

// Scan unmarshals a JSONB payload into the progress map.
func (p *LearningProgress) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*p = LearningProgress{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for LearningProgress", value)
	}
	progress := LearningProgress{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &progress); err != nil {
			return fmt.Errorf("unmarshal learning progress: %w", err)
		}
	}
	*p = progress
	return nil
}

// StudentProfile holds the intake outcome and per-course progress of a learner.
// IsCompleted never flips back to false.
type StudentProfile struct {
	UserID           string           `db:"user_id" json:"user_id"`
	Summary          string           `db:"summary" json:"summary"`
	IsCompleted      bool             `db:"is_completed" json:"is_completed"`
	CompletedAt      *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	LearningProgress LearningProgress `db:"learning_progress" json:"learning_progress"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// IntakeSession is the learner's profile-building conversation.
type IntakeSession struct {
	ID     string     `db:"id" json:"id"`
	UserID string     `db:"user_id" json:"user_id"`
	Start  time.Time  `db:"start" json:"start"`
	End    *time.Time `db:"end" json:"end,omitempty"`
}

// IntakeMessage is one entry of an intake transcript.
type IntakeMessage struct {
	ID        int64       `db:"id" json:"id"`
	SessionID string      `db:"session_id" json:"session_id"`
	Role      MessageRole `db:"role" json:"role"`
	Content   string      `db:"content" json:"content"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// IntakeView is the intake state rendered to the learner.
type IntakeView struct {
	Session  *IntakeSession  `json:"session"`
	Profile  *StudentProfile `json:"profile"`
	Messages []IntakeMessage `json:"messages"`
}

// IntakeTurnResult is the persisted outcome of an intake turn.
type IntakeTurnResult struct {
	SessionID   string         `json:"session_id"`
	UserMessage *IntakeMessage `json:"user_message,omitempty"`
	Reply       *IntakeMessage `json:"reply"`
	Fallback    bool           `json:"fallback"`
}

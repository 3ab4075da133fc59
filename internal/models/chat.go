package models

import "time"

// MessageRole is the stored role of a transcript message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// ChatSession is one tutor conversation within an enrollment.
type ChatSession struct {
	ID           string     `db:"id" json:"id"`
	EnrollmentID string     `db:"enrollment_id" json:"enrollment_id"`
	Start        time.Time  `db:"start" json:"start"`
	End          *time.Time `db:"end" json:"end,omitempty"`
	Title        *string    `db:"title" json:"title,omitempty"`
}

// Ended reports whether the session was closed.
func (s *ChatSession) Ended() bool {
	return s != nil && s.End != nil
}

// Message is an immutable transcript entry, ordered by (created_at, id).
type Message struct {
	ID            int64       `db:"id" json:"id"`
	ChatSessionID string      `db:"chat_session_id" json:"chat_session_id"`
	Role          MessageRole `db:"role" json:"role"`
	Content       string      `db:"content" json:"content"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	IsVisible     bool        `db:"is_visible" json:"is_visible"`
}

// EnrollmentSummary is the rolling digest of an enrollment's conversation.
// LastSummarizedMessageID only ever moves forward.
type EnrollmentSummary struct {
	EnrollmentID            string    `db:"enrollment_id" json:"enrollment_id"`
	Summary                 string    `db:"summary" json:"summary"`
	LastSummarizedMessageID *int64    `db:"last_summarized_message_id" json:"last_summarized_message_id,omitempty"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// HighWaterMark returns the last summarized message id, or 0.
func (s *EnrollmentSummary) HighWaterMark() int64 {
	if s == nil || s.LastSummarizedMessageID == nil {
		return 0
	}
	return *s.LastSummarizedMessageID
}

// ChatTurnRequest is one learner utterance. Model optionally overrides the
// default model and requires an elevated role.
type ChatTurnRequest struct {
	Message string `json:"message" validate:"max=8000"`
	Model   string `json:"model" validate:"omitempty,max=64"`
	Stream  *bool  `json:"stream,omitempty"`
}

// NewSessionRequest starts a fresh chat session.
type NewSessionRequest struct {
	Title string `json:"title" validate:"max=255"`
}

// TurnResult is the persisted outcome of a turn.
type TurnResult struct {
	SessionID   string   `json:"session_id"`
	UserMessage *Message `json:"user_message,omitempty"`
	Reply       *Message `json:"reply"`
	Fallback    bool     `json:"fallback"`
}

// ChatView is the visible part of a session as rendered to the learner.
type ChatView struct {
	Session  *ChatSession `json:"session"`
	Course   *Course      `json:"course"`
	Messages []Message    `json:"messages"`
}

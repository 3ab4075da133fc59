package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/alers-api/internal/models"
)

const (
	sessionColumns = `id, enrollment_id, start, "end", title`
	messageColumns = `id, chat_session_id, role, content, created_at, is_visible`
)

// ChatRepository stores chat sessions and their transcripts.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository creates a new instance of ChatRepository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateSessionWithSeed inserts a session together with its seed messages.
// Seed messages get strictly increasing created_at values in slice order.
func (r *ChatRepository) CreateSessionWithSeed(ctx context.Context, session *models.ChatSession, seed []models.Message) (err error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Start.IsZero() {
		session.Start = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertSession = `INSERT INTO chat_sessions (id, enrollment_id, start, title) VALUES ($1, $2, $3, $4)`
	if _, err = tx.ExecContext(ctx, insertSession, session.ID, session.EnrollmentID, session.Start, session.Title); err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}

	for i := range seed {
		seed[i].ChatSessionID = session.ID
		seed[i].CreatedAt = session.Start.Add(time.Duration(i) * time.Microsecond)
	}
	if err = insertMessages(ctx, tx, seed); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

// FindSession returns a chat session by id.
func (r *ChatRepository) FindSession(ctx context.Context, id string) (*models.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1`
	var session models.ChatSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find chat session: %w", err)
	}
	return &session, nil
}

// NewestSession returns the most recently started session of an enrollment.
func (r *ChatRepository) NewestSession(ctx context.Context, enrollmentID string) (*models.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE enrollment_id = $1 ORDER BY start DESC, id DESC LIMIT 1`
	var session models.ChatSession
	if err := r.db.GetContext(ctx, &session, query, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find newest chat session: %w", err)
	}
	return &session, nil
}

// ListSessions returns sessions of an enrollment, newest first.
func (r *ChatRepository) ListSessions(ctx context.Context, enrollmentID string) ([]models.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE enrollment_id = $1 ORDER BY start DESC, id DESC`
	var sessions []models.ChatSession
	if err := r.db.SelectContext(ctx, &sessions, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	return sessions, nil
}

// ListMessages returns the full transcript of a session in order.
func (r *ChatRepository) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_session_id = $1 ORDER BY created_at, id`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, sessionID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// ListSystemMessages returns the system messages of a session in order.
func (r *ChatRepository) ListSystemMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_session_id = $1 AND role = 'system' ORDER BY created_at, id`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, sessionID); err != nil {
		return nil, fmt.Errorf("list system messages: %w", err)
	}
	return messages, nil
}

// ListVisible returns the visible transcript of a session in order.
func (r *ChatRepository) ListVisible(ctx context.Context, sessionID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_session_id = $1 AND is_visible ORDER BY created_at, id`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, sessionID); err != nil {
		return nil, fmt.Errorf("list visible messages: %w", err)
	}
	return messages, nil
}

// RecentVisible returns up to limit of the newest visible non-system
// messages of a session, in chronological order.
func (r *ChatRepository) RecentVisible(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	query := `SELECT ` + messageColumns + ` FROM messages
WHERE chat_session_id = $1 AND is_visible AND role <> 'system'
ORDER BY created_at DESC, id DESC LIMIT $2`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AppendMessages persists messages atomically, assigning ids and timestamps.
func (r *ChatRepository) AppendMessages(ctx context.Context, messages []models.Message) (err error) {
	if len(messages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append messages tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertMessages(ctx, tx, messages); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append messages: %w", err)
	}
	return nil
}

// EndSession closes a session. It reports false when the session was already ended.
func (r *ChatRepository) EndSession(ctx context.Context, id string, ts time.Time) (bool, error) {
	const query = `UPDATE chat_sessions SET "end" = $2 WHERE id = $1 AND "end" IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, ts)
	if err != nil {
		return false, fmt.Errorf("end chat session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end chat session rows: %w", err)
	}
	return affected > 0, nil
}

// UnsummarizedMessages returns the visible non-system messages of an
// enrollment with id greater than afterID, ordered by id.
func (r *ChatRepository) UnsummarizedMessages(ctx context.Context, enrollmentID string, afterID int64) ([]models.Message, error) {
	const query = `SELECT m.id, m.chat_session_id, m.role, m.content, m.created_at, m.is_visible
FROM messages m
JOIN chat_sessions s ON s.id = m.chat_session_id
WHERE s.enrollment_id = $1 AND m.is_visible AND m.role <> 'system' AND m.id > $2
ORDER BY m.id`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, enrollmentID, afterID); err != nil {
		return nil, fmt.Errorf("list unsummarized messages: %w", err)
	}
	return messages, nil
}

// stampBatch gives each row of a batch a microsecond timestamp that is
// strictly increasing in slice order. Unset timestamps start from now.
// Returned rows are matched back to their input by this value.
func stampBatch(n int, at func(i int) *time.Time) {
	base := time.Now().UTC().Truncate(time.Microsecond)
	var prev time.Time
	for i := 0; i < n; i++ {
		ts := at(i)
		if ts.IsZero() {
			*ts = base.Add(time.Duration(i) * time.Microsecond)
		}
		*ts = ts.UTC().Truncate(time.Microsecond)
		if i > 0 && !ts.After(prev) {
			*ts = prev.Add(time.Microsecond)
		}
		prev = *ts
	}
}

// batchIDs scans (id, created_at) rows of a multi-row INSERT and hands each
// id to the input row stamped with the same created_at.
func batchIDs(rows *sql.Rows, n int, stamp func(i int) time.Time, assign func(i int, id int64)) error {
	pending := make(map[int64]int, n)
	for i := 0; i < n; i++ {
		pending[stamp(i).UnixMicro()] = i
	}
	for rows.Next() {
		var (
			id        int64
			createdAt time.Time
		)
		if err := rows.Scan(&id, &createdAt); err != nil {
			return fmt.Errorf("scan inserted row: %w", err)
		}
		i, ok := pending[createdAt.UnixMicro()]
		if !ok {
			return fmt.Errorf("inserted row %d has unknown created_at %s", id, createdAt)
		}
		assign(i, id)
		delete(pending, createdAt.UnixMicro())
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inserted rows: %w", err)
	}
	if len(pending) > 0 {
		return fmt.Errorf("expected %d inserted rows, got %d", n, n-len(pending))
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sqlx.Tx, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	stampBatch(len(messages), func(i int) *time.Time { return &messages[i].CreatedAt })
	var (
		placeholders = make([]string, 0, len(messages))
		args         = make([]interface{}, 0, len(messages)*5)
	)
	for i, m := range messages {
		n := i * 5
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5))
		args = append(args, m.ChatSessionID, m.Role, m.Content, m.CreatedAt, m.IsVisible)
	}
	query := `INSERT INTO messages (chat_session_id, role, content, created_at, is_visible) VALUES ` +
		strings.Join(placeholders, ", ") + ` RETURNING id, created_at`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	defer rows.Close()
	if err := batchIDs(rows, len(messages),
		func(i int) time.Time { return messages[i].CreatedAt },
		func(i int, id int64) { messages[i].ID = id },
	); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

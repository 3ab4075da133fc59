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

// IntakeRepository stores intake sessions and their transcripts.
type IntakeRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewIntakeRepository creates a new instance of IntakeRepository.
func NewIntakeRepository(db *sqlx.DB) *IntakeRepository {
	return &IntakeRepository{db: db, now: time.Now}
}

// CurrentSession returns the learner's open intake session or sql.ErrNoRows.
func (r *IntakeRepository) CurrentSession(ctx context.Context, userID string) (*models.IntakeSession, error) {
	const query = `SELECT id, user_id, start, "end" FROM intake_sessions WHERE user_id = $1 AND "end" IS NULL ORDER BY start DESC LIMIT 1`
	var session models.IntakeSession
	if err := r.db.GetContext(ctx, &session, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find intake session: %w", err)
	}
	return &session, nil
}

// CreateSession opens an intake session seeded with a persona message.
func (r *IntakeRepository) CreateSession(ctx context.Context, userID string, seed []models.IntakeMessage) (session *models.IntakeSession, err error) {
	session = &models.IntakeSession{ID: uuid.NewString(), UserID: userID, Start: r.now().UTC()}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin intake session tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO intake_sessions (id, user_id, start) VALUES ($1, $2, $3)`
	if _, err = tx.ExecContext(ctx, insert, session.ID, session.UserID, session.Start); err != nil {
		return nil, fmt.Errorf("insert intake session: %w", err)
	}
	for i := range seed {
		seed[i].SessionID = session.ID
		seed[i].CreatedAt = session.Start.Add(time.Duration(i) * time.Microsecond)
	}
	if err = insertIntakeMessages(ctx, tx, seed); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit intake session: %w", err)
	}
	return session, nil
}

// ListMessages returns an intake transcript in order.
func (r *IntakeRepository) ListMessages(ctx context.Context, sessionID string) ([]models.IntakeMessage, error) {
	const query = `SELECT id, session_id, role, content, created_at FROM intake_messages WHERE session_id = $1 ORDER BY created_at, id`
	var messages []models.IntakeMessage
	if err := r.db.SelectContext(ctx, &messages, query, sessionID); err != nil {
		return nil, fmt.Errorf("list intake messages: %w", err)
	}
	return messages, nil
}

// AppendMessages persists intake messages atomically.
func (r *IntakeRepository) AppendMessages(ctx context.Context, messages []models.IntakeMessage) (err error) {
	if len(messages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append intake tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertIntakeMessages(ctx, tx, messages); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit intake messages: %w", err)
	}
	return nil
}

// CountUserMessages counts learner utterances of an intake session.
func (r *IntakeRepository) CountUserMessages(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM intake_messages WHERE session_id = $1 AND role = 'user'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count intake messages: %w", err)
	}
	return count, nil
}

// Complete ends the intake session and marks the learner's profile completed
// with summary in a single transaction.
func (r *IntakeRepository) Complete(ctx context.Context, session *models.IntakeSession, summary string, ts time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete intake tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const end = `UPDATE intake_sessions SET "end" = $2 WHERE id = $1 AND "end" IS NULL`
	if _, err = tx.ExecContext(ctx, end, session.ID, ts); err != nil {
		return fmt.Errorf("end intake session: %w", err)
	}
	if _, err = tx.ExecContext(ctx, completeProfileQuery, session.UserID, summary, ts); err != nil {
		return fmt.Errorf("complete student profile: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit complete intake: %w", err)
	}
	return nil
}

func insertIntakeMessages(ctx context.Context, tx *sqlx.Tx, messages []models.IntakeMessage) error {
	if len(messages) == 0 {
		return nil
	}
	stampBatch(len(messages), func(i int) *time.Time { return &messages[i].CreatedAt })
	placeholders := make([]string, 0, len(messages))
	args := make([]interface{}, 0, len(messages)*4)
	for i, m := range messages {
		n := i * 4
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4))
		args = append(args, m.SessionID, m.Role, m.Content, m.CreatedAt)
	}
	query := `INSERT INTO intake_messages (session_id, role, content, created_at) VALUES ` + strings.Join(placeholders, ", ") + ` RETURNING id, created_at`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert intake messages: %w", err)
	}
	defer rows.Close()
	if err := batchIDs(rows, len(messages),
		func(i int) time.Time { return messages[i].CreatedAt },
		func(i int, id int64) { messages[i].ID = id },
	); err != nil {
		return fmt.Errorf("insert intake messages: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/alers-api/internal/models"
)

// SummaryRepository persists the rolling enrollment summary.
type SummaryRepository struct {
	db *sqlx.DB
}

// NewSummaryRepository creates a new instance of SummaryRepository.
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// FindByEnrollment returns the summary of an enrollment or sql.ErrNoRows.
func (r *SummaryRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.EnrollmentSummary, error) {
	const query = `SELECT enrollment_id, summary, last_summarized_message_id, updated_at FROM enrollment_summaries WHERE enrollment_id = $1`
	var summary models.EnrollmentSummary
	if err := r.db.GetContext(ctx, &summary, query, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment summary: %w", err)
	}
	return &summary, nil
}

// Save stores text and advances the high-water mark. A write that would move
// the mark backwards is ignored; the boolean reports whether the row changed.
func (r *SummaryRepository) Save(ctx context.Context, enrollmentID, text string, lastMessageID int64) (bool, error) {
	const query = `INSERT INTO enrollment_summaries (enrollment_id, summary, last_summarized_message_id, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (enrollment_id) DO UPDATE
SET summary = EXCLUDED.summary, last_summarized_message_id = EXCLUDED.last_summarized_message_id, updated_at = EXCLUDED.updated_at
WHERE enrollment_summaries.last_summarized_message_id IS NULL
   OR enrollment_summaries.last_summarized_message_id < EXCLUDED.last_summarized_message_id`
	res, err := r.db.ExecContext(ctx, query, enrollmentID, text, lastMessageID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("save enrollment summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save enrollment summary rows: %w", err)
	}
	return affected > 0, nil
}

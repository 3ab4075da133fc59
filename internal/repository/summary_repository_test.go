package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindSummaryMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery("FROM enrollment_summaries").WithArgs("e1").WillReturnError(sql.ErrNoRows)

	_, err := NewSummaryRepository(db).FindByEnrollment(context.Background(), "e1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSummaryScansMark(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery("FROM enrollment_summaries").WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_id", "summary", "last_summarized_message_id", "updated_at"}).AddRow("e1", "sum", 42, time.Now()))

	summary, err := NewSummaryRepository(db).FindByEnrollment(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), summary.HighWaterMark())
}

func TestSaveSummaryIgnoresStaleMark(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("enrollment_summaries.last_summarized_message_id < EXCLUDED.last_summarized_message_id")).
		WithArgs("e1", "text", int64(10), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	saved, err := NewSummaryRepository(db).Save(context.Background(), "e1", "text", 10)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/llm"
	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/prompt"
)

// DefaultSummaryBatchSize is the number of unseen messages that triggers a refresh.
const DefaultSummaryBatchSize = 5

type summaryStore interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.EnrollmentSummary, error)
	Save(ctx context.Context, enrollmentID, text string, lastMessageID int64) (bool, error)
}

type unsummarizedReader interface {
	UnsummarizedMessages(ctx context.Context, enrollmentID string, afterID int64) ([]models.Message, error)
}

// SummaryService maintains the rolling per-enrollment summary.
type SummaryService struct {
	summaries summaryStore
	messages  unsummarizedReader
	llm       completer
	catalog   *prompt.Catalog
	batchSize int
	logger    *zap.Logger
}

// SummaryServiceParams groups SummaryService dependencies.
type SummaryServiceParams struct {
	Summaries summaryStore
	Messages  unsummarizedReader
	Gateway   CompletionGateway
	Metrics   *MetricsService
	Catalog   *prompt.Catalog
	BatchSize int
	Logger    *zap.Logger
}

// NewSummaryService constructs a SummaryService.
func NewSummaryService(params SummaryServiceParams) *SummaryService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Catalog == nil {
		params.Catalog = prompt.Default()
	}
	if params.BatchSize <= 0 {
		params.BatchSize = DefaultSummaryBatchSize
	}
	return &SummaryService{
		summaries: params.Summaries,
		messages:  params.Messages,
		llm:       completer{gateway: params.Gateway, metrics: params.Metrics},
		catalog:   params.Catalog,
		batchSize: params.BatchSize,
		logger:    params.Logger,
	}
}

// Refresh folds unseen messages of the session's enrollment into the summary
// once at least a full batch has accumulated. Failures are logged and counted,
// never returned.
func (s *SummaryService) Refresh(ctx context.Context, session *models.ChatSession) {
	refreshed, err := s.refresh(ctx, session.EnrollmentID)
	switch {
	case err != nil:
		s.llm.metrics.RecordSummaryRefresh(string(ClassifyFailure(err)))
		recordBookkeepingFailure(s.logger, s.llm.metrics, "summary", err, zap.String("enrollment_id", session.EnrollmentID))
	case refreshed:
		s.llm.metrics.RecordSummaryRefresh("refreshed")
	default:
		s.llm.metrics.RecordSummaryRefresh("skipped")
	}
}

func (s *SummaryService) refresh(ctx context.Context, enrollmentID string) (bool, error) {
	current, err := s.summaries.FindByEnrollment(ctx, enrollmentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, persistenceError(err, "failed to load enrollment summary")
	}

	pending, err := s.messages.UnsummarizedMessages(ctx, enrollmentID, current.HighWaterMark())
	if err != nil {
		return false, persistenceError(err, "failed to load unsummarized messages")
	}
	if len(pending) < s.batchSize {
		return false, nil
	}

	lines := make([]string, 0, len(pending))
	for _, m := range pending {
		if m.Content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	if len(lines) == 0 {
		return false, nil
	}

	existing := s.catalog.Summary.Placeholder
	if current != nil && strings.TrimSpace(current.Summary) != "" {
		existing = current.Summary
	}
	input := fmt.Sprintf("Bestaande samenvatting:\n%s\n\nNieuwe berichten:\n%s", existing, strings.Join(lines, "\n"))

	text, err := s.llm.complete(ctx, "summary", llm.Request{
		Instructions: s.catalog.Summary.Instruction,
		Turns:        []llm.Turn{llm.UserTurn(input)},
		Params:       summaryParams,
	})
	if err != nil {
		return false, err
	}

	if _, err := s.summaries.Save(ctx, enrollmentID, strings.TrimSpace(text), pending[len(pending)-1].ID); err != nil {
		return false, persistenceError(err, "failed to save enrollment summary")
	}
	return true, nil
}

package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/llm"
	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/prompt"
)

type progressStore interface {
	SaveProgress(ctx context.Context, userID, courseID string, progress models.CourseProgress) error
}

type fullHistoryAssembler interface {
	Full(ctx context.Context, sessionID, userMessage string) ([]llm.Turn, error)
}

// ProgressService keeps a session-scoped continuity digest per course in the
// learner's StudentProfile.
type ProgressService struct {
	store     progressStore
	assembler fullHistoryAssembler
	llm       completer
	catalog   *prompt.Catalog
	logger    *zap.Logger
	now       func() time.Time
}

// NewProgressService constructs a ProgressService.
func NewProgressService(store progressStore, assembler fullHistoryAssembler, gateway CompletionGateway, metrics *MetricsService, catalog *prompt.Catalog, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalog == nil {
		catalog = prompt.Default()
	}
	return &ProgressService{
		store:     store,
		assembler: assembler,
		llm:       completer{gateway: gateway, metrics: metrics},
		catalog:   catalog,
		logger:    logger,
		now:       time.Now,
	}
}

// Digest summarises session and stores it under the enrollment's course.
// Failures are logged and counted, never returned.
func (s *ProgressService) Digest(ctx context.Context, enrollment *models.EnrollmentDetail, session *models.ChatSession) {
	if err := s.digest(ctx, enrollment, session); err != nil {
		recordBookkeepingFailure(s.logger, s.llm.metrics, "progress", err, zap.String("session_id", session.ID))
	}
}

func (s *ProgressService) digest(ctx context.Context, enrollment *models.EnrollmentDetail, session *models.ChatSession) error {
	turns, err := s.assembler.Full(ctx, session.ID, "")
	if err != nil {
		return err
	}
	text, err := s.llm.complete(ctx, "progress", llm.Request{
		Instructions: s.catalog.Progress.Instruction,
		Turns:        turns,
		Params:       progressParams,
	})
	if err != nil {
		return err
	}

	progress := models.CourseProgress{
		Course:    enrollment.CourseName,
		Summary:   strings.TrimSpace(text),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.SaveProgress(ctx, enrollment.UserID, enrollment.CourseID, progress); err != nil {
		return persistenceError(err, "failed to save learning progress")
	}
	return nil
}

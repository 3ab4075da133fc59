package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/alers-api/internal/llm"
	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/prompt"
)

// DefaultRecentWindow is the number of visible messages resent in compact mode.
const DefaultRecentWindow = 8

type transcriptReader interface {
	ListMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	ListSystemMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	RecentVisible(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
}

type summaryReader interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.EnrollmentSummary, error)
}

// ContextAssembler builds the turns sent to the completion gateway. It only reads.
type ContextAssembler struct {
	transcript transcriptReader
	summaries  summaryReader
	catalog    *prompt.Catalog
	window     int
}

// NewContextAssembler constructs a ContextAssembler. A non-positive window
// falls back to DefaultRecentWindow.
func NewContextAssembler(transcript transcriptReader, summaries summaryReader, catalog *prompt.Catalog, window int) *ContextAssembler {
	if catalog == nil {
		catalog = prompt.Default()
	}
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return &ContextAssembler{transcript: transcript, summaries: summaries, catalog: catalog, window: window}
}

// Full returns every message of the session in creation order followed by
// userMessage when it is not blank.
func (a *ContextAssembler) Full(ctx context.Context, sessionID, userMessage string) ([]llm.Turn, error) {
	messages, err := a.transcript.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, persistenceError(err, "failed to load transcript")
	}
	turns, err := toTurns(make([]llm.Turn, 0, len(messages)+1), messages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(userMessage) != "" {
		turns = append(turns, llm.UserTurn(userMessage))
	}
	return turns, nil
}

// Compact returns persona, session system messages, the enrollment summary
// when present, the recent visible window and finally userMessage.
func (a *ContextAssembler) Compact(ctx context.Context, session *models.ChatSession, userMessage string) ([]llm.Turn, error) {
	system, err := a.transcript.ListSystemMessages(ctx, session.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to load system messages")
	}
	summary, err := a.summaries.FindByEnrollment(ctx, session.EnrollmentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, persistenceError(err, "failed to load enrollment summary")
	}
	recent, err := a.transcript.RecentVisible(ctx, session.ID, a.window)
	if err != nil {
		return nil, persistenceError(err, "failed to load recent messages")
	}

	turns := make([]llm.Turn, 0, len(system)+len(recent)+3)
	turns = append(turns, llm.SystemTurn(a.catalog.Persona))
	if turns, err = toTurns(turns, system); err != nil {
		return nil, err
	}
	if summary != nil && strings.TrimSpace(summary.Summary) != "" {
		turns = append(turns, llm.SystemTurn(a.catalog.Summary.ContextPrefix+"\n"+summary.Summary))
	}
	if turns, err = toTurns(turns, recent); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userMessage) != "" {
		turns = append(turns, llm.UserTurn(userMessage))
	}
	return turns, nil
}

func toTurns(dst []llm.Turn, messages []models.Message) ([]llm.Turn, error) {
	for _, m := range messages {
		role, err := llm.ParseRole(string(m.Role))
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", m.ID, err)
		}
		dst = append(dst, llm.Turn{Role: role, Text: m.Content})
	}
	return dst, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/llm"
	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/prompt"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

type intakeStore interface {
	CurrentSession(ctx context.Context, userID string) (*models.IntakeSession, error)
	CreateSession(ctx context.Context, userID string, seed []models.IntakeMessage) (*models.IntakeSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]models.IntakeMessage, error)
	AppendMessages(ctx context.Context, messages []models.IntakeMessage) error
	CountUserMessages(ctx context.Context, sessionID string) (int, error)
	Complete(ctx context.Context, session *models.IntakeSession, summary string, ts time.Time) error
}

type intakeProfileStore interface {
	GetOrCreate(ctx context.Context, userID string) (*models.StudentProfile, error)
}

// IntakeServiceParams groups IntakeService dependencies.
type IntakeServiceParams struct {
	Intake    intakeStore
	Profiles  intakeProfileStore
	Locker    SessionLocker
	Gateway   CompletionGateway
	Metrics   *MetricsService
	Catalog   *prompt.Catalog
	Validator *validator.Validate
	Logger    *zap.Logger
}

// IntakeService runs the profile-building conversation that precedes course chats.
type IntakeService struct {
	intake    intakeStore
	profiles  intakeProfileStore
	locker    SessionLocker
	llm       completer
	catalog   *prompt.Catalog
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewIntakeService constructs an IntakeService.
func NewIntakeService(params IntakeServiceParams) *IntakeService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Catalog == nil {
		params.Catalog = prompt.Default()
	}
	if params.Locker == nil {
		params.Locker = NewMemorySessionLocker()
	}
	return &IntakeService{
		intake:    params.Intake,
		profiles:  params.Profiles,
		locker:    params.Locker,
		llm:       completer{gateway: params.Gateway, metrics: params.Metrics},
		catalog:   params.Catalog,
		validator: params.Validator,
		logger:    params.Logger,
		now:       time.Now,
	}
}

// Completed reports whether the learner finished the intake.
func (s *IntakeService) Completed(ctx context.Context, userID string) (bool, error) {
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return false, persistenceError(err, "failed to load student profile")
	}
	return profile.IsCompleted, nil
}

// RequireCompleted fails with INTAKE_REQUIRED until the learner finished the intake.
func (s *IntakeService) RequireCompleted(ctx context.Context, userID string) error {
	done, err := s.Completed(ctx, userID)
	if err != nil {
		return err
	}
	if !done {
		return appErrors.ErrIntakeRequired
	}
	return nil
}

// Open returns the learner's intake state, opening a seeded session when none
// is running. A completed intake has no session.
func (s *IntakeService) Open(ctx context.Context, userID string) (*models.IntakeView, error) {
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, persistenceError(err, "failed to load student profile")
	}
	view := &models.IntakeView{Profile: profile, Messages: []models.IntakeMessage{}}
	if profile.IsCompleted {
		return view, nil
	}

	session, err := s.currentOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.intake.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to load intake transcript")
	}
	for _, m := range messages {
		if m.Role != models.MessageRoleSystem {
			view.Messages = append(view.Messages, m)
		}
	}
	view.Session = session
	return view, nil
}

// Greet stores the opening question of an untouched intake session.
func (s *IntakeService) Greet(ctx context.Context, userID string) (*models.IntakeMessage, error) {
	session, err := s.openSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.intake.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to load intake transcript")
	}
	for _, m := range messages {
		if m.Role != models.MessageRoleSystem {
			return nil, appErrors.Clone(appErrors.ErrConflict, "intake already started")
		}
	}

	turns, err := intakeTurns(messages, s.catalog.Intake.GreetingRequest)
	if err != nil {
		return nil, err
	}
	text, err := s.llm.complete(ctx, "intake_greeting", llm.Request{Turns: turns, Params: intakeGreetingParams})
	if err != nil {
		if ClassifyFailure(err) == FailureConfiguration {
			return nil, gatewayError(err)
		}
		s.logger.Warn("intake greeting failed, using fallback", zap.String("session_id", session.ID), zap.Error(err))
		text = s.catalog.Intake.FallbackGreeting
	}

	greeting := []models.IntakeMessage{{SessionID: session.ID, Role: models.MessageRoleAssistant, Content: text}}
	if err := s.intake.AppendMessages(ctx, greeting); err != nil {
		return nil, persistenceError(err, "failed to save intake greeting")
	}
	return &greeting[0], nil
}

// TakeTurn answers one learner utterance. Streaming and fallback behave as in
// course chats.
func (s *IntakeService) TakeTurn(ctx context.Context, userID string, req models.ChatTurnRequest, onFragment FragmentFunc) (*models.IntakeTurnResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid intake message")
	}
	session, err := s.openSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, "intake:"+session.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	messages, err := s.intake.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to load intake transcript")
	}
	turns, err := intakeTurns(messages, req.Message)
	if err != nil {
		return nil, err
	}

	reply, fallback, err := s.llm.reply(ctx, "intake", llm.Request{Turns: turns, Params: intakeParams}, onFragment, s.logger)
	if err != nil {
		return nil, err
	}

	out := make([]models.IntakeMessage, 0, 2)
	if strings.TrimSpace(req.Message) != "" {
		out = append(out, models.IntakeMessage{SessionID: session.ID, Role: models.MessageRoleUser, Content: req.Message})
	}
	out = append(out, models.IntakeMessage{SessionID: session.ID, Role: models.MessageRoleAssistant, Content: reply})
	if err := s.intake.AppendMessages(ctx, out); err != nil {
		return nil, persistenceError(err, "failed to persist intake turn")
	}

	result := &models.IntakeTurnResult{SessionID: session.ID, Fallback: fallback}
	if len(out) == 2 {
		result.UserMessage = &out[0]
	}
	result.Reply = &out[len(out)-1]
	return result, nil
}

// Finish summarises the intake into the learner's StudentProfile and closes
// the session. At least one learner answer is required.
func (s *IntakeService) Finish(ctx context.Context, userID string) (*models.StudentProfile, error) {
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, persistenceError(err, "failed to load student profile")
	}
	if profile.IsCompleted {
		return profile, nil
	}

	session, err := s.intake.CurrentSession(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no intake in progress")
		}
		return nil, persistenceError(err, "failed to load intake session")
	}
	answers, err := s.intake.CountUserMessages(ctx, session.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to count intake answers")
	}
	if answers == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "answer at least one intake question first")
	}

	messages, err := s.intake.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to load intake transcript")
	}
	turns, err := intakeTurns(messages, "")
	if err != nil {
		return nil, err
	}
	text, err := s.llm.complete(ctx, "intake_summary", llm.Request{
		Instructions: s.catalog.Intake.SummaryInstruction,
		Turns:        turns,
		Params:       intakeSummaryParams,
	})
	if err != nil {
		return nil, gatewayError(err)
	}
	summary := s.catalog.StripSummaryTail(strings.TrimSpace(text))

	if err := s.intake.Complete(ctx, session, summary, s.now().UTC()); err != nil {
		return nil, persistenceError(err, "failed to complete intake")
	}
	s.logger.Info("intake completed", zap.String("user_id", userID), zap.Int("answers", answers))

	completed, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, persistenceError(err, "failed to load student profile")
	}
	return completed, nil
}

// openSession returns the running intake session, refusing once the intake
// is complete.
func (s *IntakeService) openSession(ctx context.Context, userID string) (*models.IntakeSession, error) {
	done, err := s.Completed(ctx, userID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, appErrors.Clone(appErrors.ErrConflict, "intake already completed")
	}
	return s.currentOrCreate(ctx, userID)
}

func (s *IntakeService) currentOrCreate(ctx context.Context, userID string) (*models.IntakeSession, error) {
	session, err := s.intake.CurrentSession(ctx, userID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistenceError(err, "failed to load intake session")
	}
	seed := []models.IntakeMessage{{Role: models.MessageRoleSystem, Content: s.catalog.Intake.Persona}}
	session, err = s.intake.CreateSession(ctx, userID, seed)
	if err != nil {
		return nil, persistenceError(err, "failed to create intake session")
	}
	s.logger.Info("intake session created", zap.String("user_id", userID), zap.String("session_id", session.ID))
	return session, nil
}

func intakeTurns(messages []models.IntakeMessage, userMessage string) ([]llm.Turn, error) {
	turns := make([]llm.Turn, 0, len(messages)+1)
	for _, m := range messages {
		role, err := llm.ParseRole(string(m.Role))
		if err != nil {
			return nil, fmt.Errorf("intake message %d: %w", m.ID, err)
		}
		turns = append(turns, llm.Turn{Role: role, Text: m.Content})
	}
	if strings.TrimSpace(userMessage) != "" {
		turns = append(turns, llm.UserTurn(userMessage))
	}
	return turns, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/llm"
	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/prompt"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

type chatStore interface {
	CreateSessionWithSeed(ctx context.Context, session *models.ChatSession, seed []models.Message) error
	FindSession(ctx context.Context, id string) (*models.ChatSession, error)
	NewestSession(ctx context.Context, enrollmentID string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, enrollmentID string) ([]models.ChatSession, error)
	ListVisible(ctx context.Context, sessionID string) ([]models.Message, error)
	AppendMessages(ctx context.Context, messages []models.Message) error
	EndSession(ctx context.Context, id string, ts time.Time) (bool, error)
}

type chatEnrollmentReader interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	TouchLastLogin(ctx context.Context, id string, ts time.Time) error
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type seedBuilder interface {
	Build(ctx context.Context, enrollment *models.Enrollment) ([]models.Message, error)
}

type turnAssembler interface {
	Full(ctx context.Context, sessionID, userMessage string) ([]llm.Turn, error)
	Compact(ctx context.Context, session *models.ChatSession, userMessage string) ([]llm.Turn, error)
}

type summaryRefresher interface {
	Refresh(ctx context.Context, session *models.ChatSession)
}

type progressDigester interface {
	Digest(ctx context.Context, enrollment *models.EnrollmentDetail, session *models.ChatSession)
}

type activityRecorder interface {
	RecordChatActivity(ctx context.Context, enrollment *models.EnrollmentDetail) (*models.Dashboard, error)
}

// FragmentFunc receives reply fragments as they stream in. Returning an
// error aborts the turn.
type FragmentFunc func(fragment string) error

// ChatServiceParams groups ChatService dependencies.
type ChatServiceParams struct {
	Chats            chatStore
	Enrollments      chatEnrollmentReader
	Courses          courseFinder
	Seeds            seedBuilder
	Assembler        turnAssembler
	Summaries        summaryRefresher
	Progress         progressDigester
	Activity         activityRecorder
	Locker           SessionLocker
	Gateway          CompletionGateway
	Metrics          *MetricsService
	Catalog          *prompt.Catalog
	PrivilegedModels []string
	Validator        *validator.Validate
	Logger           *zap.Logger
}

// ChatService runs the chat session lifecycle and individual turns.
type ChatService struct {
	chats       chatStore
	enrollments chatEnrollmentReader
	courses     courseFinder
	seeds       seedBuilder
	assembler   turnAssembler
	summaries   summaryRefresher
	progress    progressDigester
	activity    activityRecorder
	locker      SessionLocker
	llm         completer
	catalog     *prompt.Catalog
	privileged  map[string]struct{}
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewChatService constructs a ChatService.
func NewChatService(params ChatServiceParams) *ChatService {
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
	privileged := make(map[string]struct{}, len(params.PrivilegedModels)+1)
	for _, model := range params.PrivilegedModels {
		privileged[model] = struct{}{}
	}
	if params.Gateway != nil {
		privileged[params.Gateway.DefaultModel()] = struct{}{}
	}
	return &ChatService{
		chats:       params.Chats,
		enrollments: params.Enrollments,
		courses:     params.Courses,
		seeds:       params.Seeds,
		assembler:   params.Assembler,
		summaries:   params.Summaries,
		progress:    params.Progress,
		activity:    params.Activity,
		locker:      params.Locker,
		llm:         completer{gateway: params.Gateway, metrics: params.Metrics},
		catalog:     params.Catalog,
		privileged:  privileged,
		validator:   params.Validator,
		logger:      params.Logger,
		now:         time.Now,
	}
}

// CreateSession opens a session on enrollment seeded with its system prompts.
func (s *ChatService) CreateSession(ctx context.Context, enrollment *models.Enrollment, title string) (*models.ChatSession, error) {
	seed, err := s.seeds.Build(ctx, enrollment)
	if err != nil {
		return nil, err
	}
	session := &models.ChatSession{EnrollmentID: enrollment.ID, Start: s.now().UTC()}
	if title = strings.TrimSpace(title); title != "" {
		session.Title = &title
	}
	if err := s.chats.CreateSessionWithSeed(ctx, session, seed); err != nil {
		return nil, persistenceError(err, "failed to create chat session")
	}
	s.logger.Info("chat session created",
		zap.String("session_id", session.ID),
		zap.String("enrollment_id", enrollment.ID),
		zap.Int("seed_messages", len(seed)),
	)
	return session, nil
}

// Open returns the newest session of the learner's enrollment in courseID,
// creating one on first visit, and records the visit.
func (s *ChatService) Open(ctx context.Context, userID, courseID string) (*models.ChatView, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, persistenceError(err, "failed to load enrollment")
	}
	if err := s.enrollments.TouchLastLogin(ctx, enrollment.ID, s.now().UTC()); err != nil {
		return nil, persistenceError(err, "failed to record visit")
	}

	session, err := s.chats.NewestSession(ctx, enrollment.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if session, err = s.CreateSession(ctx, enrollment, ""); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, persistenceError(err, "failed to load chat session")
	}
	return s.view(ctx, session, enrollment.CourseID)
}

// NewSession starts a fresh session on the learner's enrollment in courseID.
func (s *ChatService) NewSession(ctx context.Context, userID, courseID string, req models.NewSessionRequest) (*models.ChatSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, persistenceError(err, "failed to load enrollment")
	}
	return s.CreateSession(ctx, enrollment, req.Title)
}

// Sessions lists the sessions of the learner's enrollment in courseID.
func (s *ChatService) Sessions(ctx context.Context, userID, courseID string) ([]models.ChatSession, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, persistenceError(err, "failed to load enrollment")
	}
	sessions, err := s.chats.ListSessions(ctx, enrollment.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to list chat sessions")
	}
	return sessions, nil
}

// Transcript returns the visible messages of a session owned by userID.
func (s *ChatService) Transcript(ctx context.Context, userID, sessionID string) (*models.ChatView, error) {
	session, enrollment, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, session, enrollment.CourseID)
}

// EndSession closes a session. Ending an ended session is a no-op.
func (s *ChatService) EndSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	session, enrollment, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return session, nil
	}
	end := s.now().UTC()
	if _, err := s.chats.EndSession(ctx, session.ID, end); err != nil {
		return nil, persistenceError(err, "failed to end chat session")
	}
	session.End = &end
	if _, err := s.activity.RecordChatActivity(ctx, enrollment); err != nil {
		return nil, err
	}
	return session, nil
}

// Greet asks the tutor to open an empty session and stores the greeting.
// Gateway failures other than missing configuration fall back to a static text.
// It holds the session lock, so it cannot race a turn or another greeting.
func (s *ChatService) Greet(ctx context.Context, userID, sessionID string) (*models.Message, error) {
	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, enrollment, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, appErrors.ErrSessionEnded
	}
	visible, err := s.chats.ListVisible(ctx, session.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to load transcript")
	}
	if len(visible) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session already has messages")
	}

	history, err := s.assembler.Full(ctx, session.ID, s.catalog.Chat.GreetingRequest)
	if err != nil {
		return nil, err
	}
	turns := append([]llm.Turn{llm.SystemTurn(s.catalog.Persona)}, history...)
	text, err := s.llm.complete(ctx, "chat_greeting", llm.Request{Turns: turns, Params: chatGreetingParams})
	if err != nil {
		if ClassifyFailure(err) == FailureConfiguration {
			return nil, gatewayError(err)
		}
		s.logger.Warn("greeting generation failed, using fallback", zap.String("session_id", session.ID), zap.Error(err))
		text = s.catalog.ChatFallbackGreeting(enrollment.CourseName)
	}

	greeting := []models.Message{{ChatSessionID: session.ID, Role: models.MessageRoleAssistant, Content: text, IsVisible: true}}
	if err := s.chats.AppendMessages(ctx, greeting); err != nil {
		return nil, persistenceError(err, "failed to save greeting")
	}
	return &greeting[0], nil
}

// TakeTurn runs one learner turn. When onFragment is non-nil the reply is
// streamed through it; otherwise a single blocking completion is used.
func (s *ChatService) TakeTurn(ctx context.Context, claims *models.JWTClaims, sessionID string, req models.ChatTurnRequest, onFragment FragmentFunc) (*models.TurnResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chat message")
	}
	model, err := s.resolveModel(claims, req.Model)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, enrollment, err := s.ownedSession(ctx, claims.UserID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, appErrors.ErrSessionEnded
	}

	turns, err := s.assembler.Compact(ctx, session, req.Message)
	if err != nil {
		return nil, err
	}
	request := llm.Request{Model: model, Turns: turns, Params: chatParams}

	reply, fallback, err := s.llm.reply(ctx, "chat", request, onFragment, s.logger)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, 2)
	if strings.TrimSpace(req.Message) != "" {
		messages = append(messages, models.Message{ChatSessionID: session.ID, Role: models.MessageRoleUser, Content: req.Message, IsVisible: true})
	}
	messages = append(messages, models.Message{ChatSessionID: session.ID, Role: models.MessageRoleAssistant, Content: reply, IsVisible: true})
	if err := s.chats.AppendMessages(ctx, messages); err != nil {
		return nil, persistenceError(err, "failed to persist chat turn")
	}

	// The exchange is stored; nothing below may fail the turn, and a client
	// disconnect no longer cancels it.
	bookkeeping := context.WithoutCancel(ctx)
	s.summaries.Refresh(bookkeeping, session)
	s.progress.Digest(bookkeeping, enrollment, session)
	if _, err := s.activity.RecordChatActivity(bookkeeping, enrollment); err != nil {
		recordBookkeepingFailure(s.logger, s.llm.metrics, "activity", err, zap.String("session_id", session.ID))
	}

	result := &models.TurnResult{SessionID: session.ID, Fallback: fallback}
	if len(messages) == 2 {
		result.UserMessage = &messages[0]
	}
	result.Reply = &messages[len(messages)-1]
	return result, nil
}

// resolveModel applies the model override policy. An empty override selects
// the gateway default.
func (s *ChatService) resolveModel(claims *models.JWTClaims, override string) (string, error) {
	override = strings.TrimSpace(override)
	if override == "" {
		return "", nil
	}
	if !claims.HasRole(models.RoleGPT4Privileged, models.RoleAdmin) {
		return "", appErrors.ErrModelNotAllowed
	}
	if _, ok := s.privileged[override]; !ok {
		return "", appErrors.Clone(appErrors.ErrModelNotAllowed, "model is not available")
	}
	return override, nil
}

func (s *ChatService) ownedSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, *models.EnrollmentDetail, error) {
	session, err := s.chats.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "chat session not found")
		}
		return nil, nil, persistenceError(err, "failed to load chat session")
	}
	enrollment, err := s.enrollments.FindDetail(ctx, session.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "chat session not found")
		}
		return nil, nil, persistenceError(err, "failed to load enrollment")
	}
	if enrollment.UserID != userID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "chat session not found")
	}
	return session, enrollment, nil
}

func (s *ChatService) view(ctx context.Context, session *models.ChatSession, courseID string) (*models.ChatView, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, persistenceError(err, "failed to load course")
	}
	messages, err := s.chats.ListVisible(ctx, session.ID)
	if err != nil {
		return nil, persistenceError(err, "failed to load transcript")
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return &models.ChatView{Session: session, Course: course, Messages: messages}, nil
}

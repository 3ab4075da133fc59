package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/alers-api/internal/llm"
	"github.com/noah-isme/alers-api/internal/models"
)

// fakeChatStore keeps sessions and messages in memory, mimicking the SQL
// ordering of the chat repository.
type fakeChatStore struct {
	mu        sync.Mutex
	sessions  map[string]*models.ChatSession
	messages  []models.Message
	nextID    int64
	appendErr error
	appends   int
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{sessions: make(map[string]*models.ChatSession)}
}

func (f *fakeChatStore) addSession(session *models.ChatSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
}

func (f *fakeChatStore) add(sessionID string, role models.MessageRole, content string, visible bool) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := models.Message{
		ID:            f.nextID,
		ChatSessionID: sessionID,
		Role:          role,
		Content:       content,
		CreatedAt:     time.Unix(0, 0).Add(time.Duration(f.nextID) * time.Second),
		IsVisible:     visible,
	}
	f.messages = append(f.messages, m)
	return m
}

func (f *fakeChatStore) CreateSessionWithSeed(_ context.Context, session *models.ChatSession, seed []models.Message) error {
	if session.ID == "" {
		session.ID = "session-new"
	}
	f.addSession(session)
	for i := range seed {
		seed[i] = f.add(session.ID, seed[i].Role, seed[i].Content, seed[i].IsVisible)
	}
	return nil
}

func (f *fakeChatStore) FindSession(_ context.Context, id string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (f *fakeChatStore) NewestSession(_ context.Context, enrollmentID string) (*models.ChatSession, error) {
	sessions, _ := f.ListSessions(context.Background(), enrollmentID)
	if len(sessions) == 0 {
		return nil, sql.ErrNoRows
	}
	return &sessions[0], nil
}

func (f *fakeChatStore) ListSessions(_ context.Context, enrollmentID string) ([]models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatSession
	for _, s := range f.sessions {
		if s.EnrollmentID == enrollmentID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out, nil
}

func (f *fakeChatStore) filter(keep func(models.Message) bool) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeChatStore) ListMessages(_ context.Context, sessionID string) ([]models.Message, error) {
	return f.filter(func(m models.Message) bool { return m.ChatSessionID == sessionID }), nil
}

func (f *fakeChatStore) ListSystemMessages(_ context.Context, sessionID string) ([]models.Message, error) {
	return f.filter(func(m models.Message) bool {
		return m.ChatSessionID == sessionID && m.Role == models.MessageRoleSystem
	}), nil
}

func (f *fakeChatStore) ListVisible(_ context.Context, sessionID string) ([]models.Message, error) {
	return f.filter(func(m models.Message) bool { return m.ChatSessionID == sessionID && m.IsVisible }), nil
}

func (f *fakeChatStore) RecentVisible(_ context.Context, sessionID string, limit int) ([]models.Message, error) {
	all := f.filter(func(m models.Message) bool {
		return m.ChatSessionID == sessionID && m.IsVisible && m.Role != models.MessageRoleSystem
	})
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (f *fakeChatStore) UnsummarizedMessages(_ context.Context, enrollmentID string, afterID int64) ([]models.Message, error) {
	f.mu.Lock()
	sessions := make(map[string]bool)
	for id, s := range f.sessions {
		sessions[id] = s.EnrollmentID == enrollmentID
	}
	f.mu.Unlock()
	return f.filter(func(m models.Message) bool {
		return sessions[m.ChatSessionID] && m.IsVisible && m.Role != models.MessageRoleSystem && m.ID > afterID
	}), nil
}

func (f *fakeChatStore) AppendMessages(_ context.Context, messages []models.Message) error {
	f.mu.Lock()
	f.appends++
	err := f.appendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	for i := range messages {
		messages[i] = f.add(messages[i].ChatSessionID, messages[i].Role, messages[i].Content, messages[i].IsVisible)
	}
	return nil
}

func (f *fakeChatStore) EndSession(_ context.Context, id string, ts time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.End != nil {
		return false, nil
	}
	s.End = &ts
	return true, nil
}

func (f *fakeChatStore) visibleCount(sessionID string) int {
	return len(f.filter(func(m models.Message) bool { return m.ChatSessionID == sessionID && m.IsVisible }))
}

type fakeSummaryStore struct {
	summary *models.EnrollmentSummary
	saves   int
	saveErr error
}

func (f *fakeSummaryStore) FindByEnrollment(_ context.Context, enrollmentID string) (*models.EnrollmentSummary, error) {
	if f.summary == nil || f.summary.EnrollmentID != enrollmentID {
		return nil, sql.ErrNoRows
	}
	copied := *f.summary
	return &copied, nil
}

func (f *fakeSummaryStore) Save(_ context.Context, enrollmentID, text string, lastMessageID int64) (bool, error) {
	if f.saveErr != nil {
		return false, f.saveErr
	}
	f.saves++
	if f.summary != nil && f.summary.HighWaterMark() >= lastMessageID {
		return false, nil
	}
	mark := lastMessageID
	f.summary = &models.EnrollmentSummary{EnrollmentID: enrollmentID, Summary: text, LastSummarizedMessageID: &mark, UpdatedAt: time.Now()}
	return true, nil
}

type fakeStream struct {
	fragments []string
	failAfter error
	idx       int
	text      string
	err       error
	closed    bool
}

func (s *fakeStream) Next() bool {
	if s.idx < len(s.fragments) {
		s.text = s.fragments[s.idx]
		s.idx++
		return true
	}
	s.err = s.failAfter
	return false
}

func (s *fakeStream) Text() string { return s.text }
func (s *fakeStream) Err() error   { return s.err }
func (s *fakeStream) Close() error { s.closed = true; return nil }

// fakeGateway scripts completion results and records every request.
type fakeGateway struct {
	mu sync.Mutex

	completeText string
	completeErr  error
	completeFn   func(req llm.Request) (string, error)

	streamFragments []string
	streamFailAfter error
	streamOpenErr   error

	completeCalls []llm.Request
	streamCalls   []llm.Request
	streams       []*fakeStream
}

func (g *fakeGateway) Complete(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completeCalls = append(g.completeCalls, req)
	if g.completeFn != nil {
		return g.completeFn(req)
	}
	return g.completeText, g.completeErr
}

func (g *fakeGateway) Stream(_ context.Context, req llm.Request) (FragmentStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.streamCalls = append(g.streamCalls, req)
	if g.streamOpenErr != nil {
		return nil, g.streamOpenErr
	}
	stream := &fakeStream{fragments: g.streamFragments, failAfter: g.streamFailAfter}
	g.streams = append(g.streams, stream)
	return stream, nil
}

func (g *fakeGateway) DefaultModel() string { return "gpt-4o-mini" }

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.completeCalls) + len(g.streamCalls)
}

var errTransport = &llm.Error{Op: "stream", Err: errors.New("connection reset by peer")}

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alers-api/internal/middleware"
	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/service"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

type fakeChatSrv struct {
	fragments []string
	result    *models.TurnResult
	err       error
	// failAfter fails the turn once the fragments have been delivered.
	failAfter bool
	streamed  bool
	lastReq   models.ChatTurnRequest
	ended     string
}

func (f *fakeChatSrv) Open(context.Context, string, string) (*models.ChatView, error) {
	return &models.ChatView{Session: &models.ChatSession{ID: "s1"}}, f.err
}

func (f *fakeChatSrv) NewSession(_ context.Context, _, _ string, req models.NewSessionRequest) (*models.ChatSession, error) {
	title := req.Title
	return &models.ChatSession{ID: "s2", Title: &title}, f.err
}

func (f *fakeChatSrv) Sessions(context.Context, string, string) ([]models.ChatSession, error) {
	return []models.ChatSession{{ID: "s1"}}, f.err
}

func (f *fakeChatSrv) Transcript(context.Context, string, string) (*models.ChatView, error) {
	return &models.ChatView{}, f.err
}

func (f *fakeChatSrv) EndSession(_ context.Context, _, sessionID string) (*models.ChatSession, error) {
	f.ended = sessionID
	return &models.ChatSession{ID: sessionID}, f.err
}

func (f *fakeChatSrv) Greet(context.Context, string, string) (*models.Message, error) {
	return &models.Message{Content: "Hallo!"}, f.err
}

func (f *fakeChatSrv) TakeTurn(_ context.Context, _ *models.JWTClaims, _ string, req models.ChatTurnRequest, onFragment service.FragmentFunc) (*models.TurnResult, error) {
	f.lastReq = req
	f.streamed = onFragment != nil
	if f.err != nil && !f.failAfter {
		return nil, f.err
	}
	if onFragment != nil {
		for _, fragment := range f.fragments {
			if err := onFragment(fragment); err != nil {
				return nil, err
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func turnContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/sessions/s1/messages", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "sessionId", Value: "s1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1"})
	return c, rec
}

func TestChatHandlerTurnStreamsDeltasThenDone(t *testing.T) {
	srv := &fakeChatSrv{
		fragments: []string{"Hal", "lo"},
		result:    &models.TurnResult{SessionID: "s1", Reply: &models.Message{ID: 2, Content: "Hallo"}},
	}
	c, rec := turnContext(`{"message":"hoi"}`)

	NewChatHandler(srv).Turn(c)

	assert.True(t, srv.streamed)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event:delta")
	assert.Contains(t, body, `"text":"Hal"`)
	assert.Contains(t, body, "event:done")
	assert.Less(t, strings.Index(body, `"text":"lo"`), strings.Index(body, "event:done"))
	assert.Contains(t, body, `"content":"Hallo"`)
}

func TestChatHandlerTurnErrorBeforeFirstFragmentIsJSON(t *testing.T) {
	srv := &fakeChatSrv{err: appErrors.ErrServiceNotConfigured}
	c, rec := turnContext(`{"message":"hoi"}`)

	NewChatHandler(srv).Turn(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SERVICE_NOT_CONFIGURED", env.Error.Code)
}

func TestChatHandlerTurnErrorAfterFragmentsIsEvent(t *testing.T) {
	srv := &fakeChatSrv{fragments: []string{"Hal"}, err: appErrors.ErrGatewayFailure, failAfter: true}
	c, rec := turnContext(`{"message":"hoi"}`)

	NewChatHandler(srv).Turn(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "event:error")
	assert.Contains(t, body, "GATEWAY_FAILURE")
	assert.NotContains(t, body, "event:done")
}

func TestChatHandlerTurnStopsOnClientAbort(t *testing.T) {
	srv := &fakeChatSrv{fragments: []string{"Hal", "lo"}, result: &models.TurnResult{}}
	c, rec := turnContext(`{"message":"hoi"}`)
	ctx, cancel := context.WithCancel(c.Request.Context())
	cancel()
	c.Request = c.Request.WithContext(ctx)

	NewChatHandler(srv).Turn(c)

	assert.NotContains(t, rec.Body.String(), "event:delta")
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestChatHandlerTurnBlockingWhenStreamDisabled(t *testing.T) {
	srv := &fakeChatSrv{result: &models.TurnResult{SessionID: "s1", Reply: &models.Message{Content: "Hallo"}}}
	c, rec := turnContext(`{"message":"hoi","stream":false,"model":"gpt-4o"}`)

	NewChatHandler(srv).Turn(c)

	assert.False(t, srv.streamed)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gpt-4o", srv.lastReq.Model)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, rec.Body.String(), `"content":"Hallo"`)
}

func TestChatHandlerTurnRejectsMalformedBody(t *testing.T) {
	c, rec := turnContext(`{"message":`)

	NewChatHandler(&fakeChatSrv{}).Turn(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandlerEndUsesPathSession(t *testing.T) {
	srv := &fakeChatSrv{}
	c, rec := newTestContext(http.MethodPost, "/sessions/s9/end")
	c.Params = gin.Params{{Key: "sessionId", Value: "s9"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1"})

	NewChatHandler(srv).End(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s9", srv.ended)
}

func TestChatHandlerNewSessionWithoutBody(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/courses/c1/sessions")
	c.Params = gin.Params{{Key: "courseId", Value: "c1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1"})

	NewChatHandler(&fakeChatSrv{}).NewSession(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestChatHandlerGreetConflict(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/sessions/s1/greeting")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1"})

	NewChatHandler(&fakeChatSrv{err: appErrors.ErrConflict}).Greet(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/service"
	"github.com/noah-isme/alers-api/pkg/response"
)

type chatService interface {
	Open(ctx context.Context, userID, courseID string) (*models.ChatView, error)
	NewSession(ctx context.Context, userID, courseID string, req models.NewSessionRequest) (*models.ChatSession, error)
	Sessions(ctx context.Context, userID, courseID string) ([]models.ChatSession, error)
	Transcript(ctx context.Context, userID, sessionID string) (*models.ChatView, error)
	EndSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error)
	Greet(ctx context.Context, userID, sessionID string) (*models.Message, error)
	TakeTurn(ctx context.Context, claims *models.JWTClaims, sessionID string, req models.ChatTurnRequest, onFragment service.FragmentFunc) (*models.TurnResult, error)
}

// ChatHandler serves the tutor conversation endpoints.
type ChatHandler struct {
	service chatService
}

// NewChatHandler constructs the handler.
func NewChatHandler(svc chatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// Open godoc
// @Summary Open the current chat for a course
// @Description Returns the latest open session, creating and seeding one when needed.
// @Tags Chat
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 428 {object} response.Envelope
// @Router /courses/{courseId}/chat [get]
func (h *ChatHandler) Open(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.service.Open(c.Request.Context(), claims.UserID, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// NewSession godoc
// @Summary Start a new chat session
// @Tags Chat
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body models.NewSessionRequest false "Session payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{courseId}/sessions [post]
func (h *ChatHandler) NewSession(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.NewSessionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.service.NewSession(c.Request.Context(), claims.UserID, c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Sessions godoc
// @Summary List chat sessions of a course
// @Tags Chat
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/sessions [get]
func (h *ChatHandler) Sessions(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	sessions, err := h.service.Sessions(c.Request.Context(), claims.UserID, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Transcript godoc
// @Summary Visible transcript of a session
// @Tags Chat
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{sessionId} [get]
func (h *ChatHandler) Transcript(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.service.Transcript(c.Request.Context(), claims.UserID, c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Greet godoc
// @Summary Generate the opening tutor message
// @Tags Chat
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions/{sessionId}/greeting [post]
func (h *ChatHandler) Greet(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	message, err := h.service.Greet(c.Request.Context(), claims.UserID, c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// End godoc
// @Summary End a chat session
// @Tags Chat
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/end [post]
func (h *ChatHandler) End(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	session, err := h.service.EndSession(c.Request.Context(), claims.UserID, c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Turn godoc
// @Summary Send a learner message
// @Description Streams the reply as server-sent events ("delta" then "done") unless stream is false.
// @Tags Chat
// @Accept json
// @Produce json
// @Produce text/event-stream
// @Param sessionId path string true "Session ID"
// @Param payload body models.ChatTurnRequest true "Turn payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions/{sessionId}/messages [post]
func (h *ChatHandler) Turn(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.ChatTurnRequest
	if !bindJSON(c, &req, "invalid chat message") {
		return
	}
	sessionID := c.Param("sessionId")

	if !wantsStream(req.Stream) {
		result, err := h.service.TakeTurn(c.Request.Context(), claims, sessionID, req, nil)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, result, nil)
		return
	}

	stream := newTurnStream(c)
	result, err := h.service.TakeTurn(c.Request.Context(), claims, sessionID, req, stream.fragment())
	stream.finish(result, err)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/service"
	"github.com/noah-isme/alers-api/pkg/response"
)

type intakeService interface {
	Open(ctx context.Context, userID string) (*models.IntakeView, error)
	Greet(ctx context.Context, userID string) (*models.IntakeMessage, error)
	TakeTurn(ctx context.Context, userID string, req models.ChatTurnRequest, onFragment service.FragmentFunc) (*models.IntakeTurnResult, error)
	Finish(ctx context.Context, userID string) (*models.StudentProfile, error)
}

// IntakeHandler serves the profile-building conversation.
type IntakeHandler struct {
	service intakeService
}

// NewIntakeHandler constructs the handler.
func NewIntakeHandler(svc intakeService) *IntakeHandler {
	return &IntakeHandler{service: svc}
}

// Open godoc
// @Summary Open the intake conversation
// @Tags Intake
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /intake [get]
func (h *IntakeHandler) Open(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.service.Open(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Greet godoc
// @Summary Generate the intake greeting
// @Tags Intake
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /intake/greeting [post]
func (h *IntakeHandler) Greet(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	message, err := h.service.Greet(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// Turn godoc
// @Summary Answer the intake interviewer
// @Tags Intake
// @Accept json
// @Produce json
// @Produce text/event-stream
// @Param payload body models.ChatTurnRequest true "Turn payload"
// @Success 200 {object} response.Envelope
// @Router /intake/messages [post]
func (h *IntakeHandler) Turn(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.ChatTurnRequest
	if !bindJSON(c, &req, "invalid intake message") {
		return
	}

	if !wantsStream(req.Stream) {
		result, err := h.service.TakeTurn(c.Request.Context(), claims.UserID, req, nil)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, result, nil)
		return
	}

	stream := newTurnStream(c)
	result, err := h.service.TakeTurn(c.Request.Context(), claims.UserID, req, stream.fragment())
	stream.finish(result, err)
}

// Finish godoc
// @Summary Complete the intake and store the profile summary
// @Tags Intake
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /intake/finish [post]
func (h *IntakeHandler) Finish(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	profile, err := h.service.Finish(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

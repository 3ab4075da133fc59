package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/pkg/response"
)

type userService interface {
	List(ctx context.Context) ([]models.User, error)
	SetRoles(ctx context.Context, actorID string, req models.UpdateRolesRequest) (*models.User, error)
	LoginActivity(ctx context.Context) ([]models.LoginActivity, error)
}

// UserHandler exposes account administration.
type UserHandler struct {
	service userService
}

// NewUserHandler constructs the handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List accounts
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, nil)
}

// SetRoles godoc
// @Summary Replace the roles of an account
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.UpdateRolesRequest true "Roles payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/roles [put]
func (h *UserHandler) SetRoles(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.UpdateRolesRequest
	if !bindJSON(c, &req, "invalid roles payload") {
		return
	}
	user, err := h.service.SetRoles(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// LoginActivity godoc
// @Summary Login counts per account
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/login-activity [get]
func (h *UserHandler) LoginActivity(c *gin.Context) {
	rows, err := h.service.LoginActivity(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

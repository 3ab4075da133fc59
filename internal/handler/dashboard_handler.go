package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alers-api/internal/middleware"
	"github.com/noah-isme/alers-api/internal/models"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
	"github.com/noah-isme/alers-api/pkg/export"
	"github.com/noah-isme/alers-api/pkg/response"
)

type dashboardService interface {
	Learner(ctx context.Context, userID string) (*models.LearnerDashboard, error)
	Teacher(ctx context.Context, filter models.DashboardFilter) ([]models.Dashboard, bool, error)
	Export(ctx context.Context, filter models.DashboardFilter, format string) (*export.File, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Learner godoc
// @Summary Learner dashboard
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Learner(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	summary, err := h.service.Learner(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Teacher godoc
// @Summary Enrollment activity across learners
// @Tags Dashboard
// @Produce json
// @Param course query string false "Course ID"
// @Param search query string false "Student, course or creator name filter"
// @Success 200 {object} response.Envelope
// @Router /dashboard/teacher [get]
func (h *DashboardHandler) Teacher(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	rows, cacheHit, err := h.service.Teacher(c.Request.Context(), dashboardFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	meta["count"] = len(rows)
	response.JSON(c, http.StatusOK, rows, nil, meta)
}

// Export godoc
// @Summary Download the teacher dashboard
// @Tags Dashboard
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param course query string false "Course ID"
// @Param search query string false "Name filter"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /dashboard/teacher/export [get]
func (h *DashboardHandler) Export(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	file, err := h.service.Export(c.Request.Context(), dashboardFilter(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func dashboardFilter(c *gin.Context) models.DashboardFilter {
	return models.DashboardFilter{
		Course: strings.TrimSpace(c.Query("course")),
		Search: c.Query("search"),
	}
}

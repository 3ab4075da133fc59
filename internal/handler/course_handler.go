package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, userID string) ([]models.CourseListItem, error)
	Curriculum(ctx context.Context, userID, courseID string) (*models.Curriculum, error)
}

type enrollmentService interface {
	Enroll(ctx context.Context, userID, courseID string) (*models.EnrollResult, error)
	RecordCheckpoint(ctx context.Context, req models.CheckpointRequest) (*models.Checkpoint, error)
}

// CourseHandler exposes the course catalogue and enrollment endpoints.
type CourseHandler struct {
	courses     courseService
	enrollments enrollmentService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(courses courseService, enrollments enrollmentService) *CourseHandler {
	return &CourseHandler{courses: courses, enrollments: enrollments}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	items, err := h.courses.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Enroll godoc
// @Summary Enroll in a course
// @Description Idempotent. Returns 201 when a new enrollment was created.
// @Tags Courses
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/enroll [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), claims.UserID, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Created {
		response.Created(c, result)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Curriculum godoc
// @Summary Course curriculum with completion marks
// @Tags Courses
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/curriculum [get]
func (h *CourseHandler) Curriculum(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	tree, err := h.courses.Curriculum(c.Request.Context(), claims.UserID, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tree, nil)
}

// RecordCheckpoint godoc
// @Summary Mark a specification as completed
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body models.CheckpointRequest true "Checkpoint payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /checkpoints [post]
func (h *CourseHandler) RecordCheckpoint(c *gin.Context) {
	var req models.CheckpointRequest
	if !bindJSON(c, &req, "invalid checkpoint payload") {
		return
	}
	checkpoint, err := h.enrollments.RecordCheckpoint(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, checkpoint)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alers-api/internal/middleware"
	"github.com/noah-isme/alers-api/internal/models"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
	"github.com/noah-isme/alers-api/pkg/export"
)

type fakeDashboardSrv struct {
	learner    *models.LearnerDashboard
	teacher    []models.Dashboard
	teacherHit bool
	exportFile *export.File
	err        error
	lastFilter models.DashboardFilter
	lastFormat string
	lastUser   string
}

func (f *fakeDashboardSrv) Learner(_ context.Context, userID string) (*models.LearnerDashboard, error) {
	f.lastUser = userID
	return f.learner, f.err
}

func (f *fakeDashboardSrv) Teacher(_ context.Context, filter models.DashboardFilter) ([]models.Dashboard, bool, error) {
	f.lastFilter = filter
	return f.teacher, f.teacherHit, f.err
}

func (f *fakeDashboardSrv) Export(_ context.Context, filter models.DashboardFilter, format string) (*export.File, error) {
	f.lastFilter = filter
	f.lastFormat = format
	return f.exportFile, f.err
}

type responseEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, rec
}

func TestDashboardHandlerLearnerRequiresClaims(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{})
	c, rec := newTestContext(http.MethodGet, "/dashboard")

	handler.Learner(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardHandlerLearnerSuccess(t *testing.T) {
	srv := &fakeDashboardSrv{learner: &models.LearnerDashboard{IntakeCompleted: true}}
	handler := NewDashboardHandler(srv)
	c, rec := newTestContext(http.MethodGet, "/dashboard")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1"})

	handler.Learner(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", srv.lastUser)
	assert.Contains(t, rec.Body.String(), `"intake_completed":true`)
}

func TestDashboardHandlerTeacherSetsCacheMeta(t *testing.T) {
	srv := &fakeDashboardSrv{teacher: []models.Dashboard{{ID: "d1", Student: "Ada"}}, teacherHit: true}
	handler := NewDashboardHandler(srv)
	c, rec := newTestContext(http.MethodGet, "/dashboard/teacher?course=%20c1%20&search=Ada")

	handler.Teacher(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Equal(t, float64(1), env.Meta["count"])
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, models.DashboardFilter{Course: "c1", Search: "Ada"}, srv.lastFilter)
}

func TestDashboardHandlerExportWritesAttachment(t *testing.T) {
	srv := &fakeDashboardSrv{exportFile: &export.File{Name: "dashboards-20260101.csv", ContentType: "text/csv", Data: []byte("Student\nAda\n")}}
	handler := NewDashboardHandler(srv)
	c, rec := newTestContext(http.MethodGet, "/dashboard/teacher/export?format=csv")

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", srv.lastFormat)
	assert.Equal(t, `attachment; filename="dashboards-20260101.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Student\nAda\n", rec.Body.String())
}

func TestDashboardHandlerExportInvalidFormat(t *testing.T) {
	srv := &fakeDashboardSrv{err: appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")}
	handler := NewDashboardHandler(srv)
	c, rec := newTestContext(http.MethodGet, "/dashboard/teacher/export?format=xls")

	handler.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

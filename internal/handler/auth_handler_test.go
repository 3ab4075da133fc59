package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/alers-api/internal/middleware"
	"github.com/noah-isme/alers-api/internal/models"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

type fakeAuthSrv struct {
	lastLogin models.LoginRequest
	err       error
}

func (f *fakeAuthSrv) Register(_ context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.UserInfo{ID: "u1", Email: req.Email}, nil
}

func (f *fakeAuthSrv) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastLogin = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "token"}, nil
}

func (f *fakeAuthSrv) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID}, f.err
}

func jsonContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

func TestAuthHandlerLoginUsesFirstForwardedHop(t *testing.T) {
	srv := &fakeAuthSrv{}
	c, rec := jsonContext(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"secret123"}`)
	c.Request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	NewAuthHandler(srv).Login(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "203.0.113.7", srv.lastLogin.IP)
	assert.Contains(t, rec.Body.String(), `"access_token":"token"`)
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	c, rec := jsonContext(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"nope"}`)

	NewAuthHandler(&fakeAuthSrv{err: appErrors.ErrInvalidCredentials}).Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerRegisterCreated(t *testing.T) {
	c, rec := jsonContext(http.MethodPost, "/auth/register", `{"email":"ada@example.com","username":"ada","password":"secret123"}`)

	NewAuthHandler(&fakeAuthSrv{}).Register(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAuthHandlerRegisterDuplicate(t *testing.T) {
	c, rec := jsonContext(http.MethodPost, "/auth/register", `{"email":"ada@example.com","username":"ada","password":"secret123"}`)

	NewAuthHandler(&fakeAuthSrv{err: appErrors.ErrConflict}).Register(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/auth/me")
	NewAuthHandler(&fakeAuthSrv{}).Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/auth/me")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u7"})
	NewAuthHandler(&fakeAuthSrv{}).Me(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u7"`)
}

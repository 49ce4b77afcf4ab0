package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/middleware"
	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type authServiceMock struct {
	loginResp *models.LoginResponse
	loginErr  error
	lastLogin models.LoginRequest
	info      *models.UserInfo
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastLogin = req
	return m.loginResp, m.loginErr
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	return m.loginResp, m.loginErr
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "new"}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID string, meta models.LoginRequest) error {
	return nil
}

func (m *authServiceMock) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	return nil
}

func (m *authServiceMock) Me(ctx context.Context, claims *models.JWTClaims) (*models.UserInfo, error) {
	return m.info, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	mockSvc := &authServiceMock{loginResp: &models.LoginResponse{AccessToken: "token"}}
	handler := NewAuthHandler(mockSvc)

	body, _ := json.Marshal(map[string]string{"email": "a@b.c", "password": "secret"})
	c, w := newGinContext(http.MethodPost, "/auth/login", body)
	c.Request.Header.Set("User-Agent", "test-agent")
	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@b.c", mockSvc.lastLogin.Email)
	assert.Equal(t, "test-agent", mockSvc.lastLogin.UserAgent)
}

func TestAuthHandlerLoginBlocked(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{loginErr: appErrors.ErrAccountBlocked})

	body, _ := json.Marshal(map[string]string{"email": "a@b.c", "password": "secret"})
	c, w := newGinContext(http.MethodPost, "/auth/login", body)
	handler.Login(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Access Restricted", env.Error.Message)
}

func TestAuthHandlerLoginInternalError(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{loginErr: errors.New("db down")})

	body, _ := json.Marshal(map[string]string{"email": "a@b.c", "password": "secret"})
	c, w := newGinContext(http.MethodPost, "/auth/login", body)
	handler.Login(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	roll := int64(99999)
	handler := NewAuthHandler(&authServiceMock{info: &models.UserInfo{ID: "u-1", Role: models.RoleStudent, RollNo: &roll, Fallback: true}})

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1"})
	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &info))
	assert.True(t, info.Fallback)
	assert.Equal(t, int64(99999), *info.RollNo)
}

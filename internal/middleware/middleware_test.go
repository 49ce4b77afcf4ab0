package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type heartbeatStub struct {
	users []string
	err   error
}

func (h *heartbeatStub) Heartbeat(ctx context.Context, userID string) (bool, error) {
	h.users = append(h.users, userID)
	return true, h.err
}

type accountStub struct {
	blocked map[string]bool
	checked []string
}

func (a *accountStub) CheckActive(ctx context.Context, userID string) error {
	a.checked = append(a.checked, userID)
	if a.blocked[userID] {
		return appErrors.ErrAccountBlocked
	}
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type observerStub struct {
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	chain := append(handlers, func(c *gin.Context) {
		if claims := Claims(c); claims != nil {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	router.GET("/items/:id", chain...)
	return router
}

func serve(router *gin.Engine, target, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	router := newRouter(JWT(validatorStub{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin}}))

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/items/1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/items/1", "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/items/1", "Bearer bad").Code)

	w := serve(router, "/items/1", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", w.Body.String())
}

func TestQueryJWT(t *testing.T) {
	router := newRouter(QueryJWT(validatorStub{claims: &models.JWTClaims{UserID: "u-2"}}))

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/items/1", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, "/items/1?token=good", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, "/items/1", "Bearer good").Code)
}

func TestActiveAccountRejectsBlockedHolderOfValidToken(t *testing.T) {
	accounts := &accountStub{blocked: map[string]bool{}}
	student := validatorStub{claims: &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent, RollNo: 101}}
	router := newRouter(JWT(student), ActiveAccount(accounts))

	w := serve(router, "/items/1", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", w.Body.String())

	accounts.blocked["stu-1"] = true
	w = serve(router, "/items/1", "Bearer good")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrAccountBlocked.Code)
	assert.Equal(t, []string{"stu-1", "stu-1"}, accounts.checked)

	assert.Equal(t, http.StatusUnauthorized, serve(newRouter(ActiveAccount(accounts)), "/items/1", "").Code)
}

func TestRBAC(t *testing.T) {
	faculty := validatorStub{claims: &models.JWTClaims{UserID: "f", Role: models.RoleFaculty}}

	assert.Equal(t, http.StatusOK, serve(newRouter(JWT(faculty), Staff()), "/items/1", "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(newRouter(JWT(faculty), AdminOnly()), "/items/1", "Bearer good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(newRouter(AdminOnly()), "/items/1", "").Code)
}

func TestPresenceHeartbeatsAuthenticatedUsers(t *testing.T) {
	beats := &heartbeatStub{err: errors.New("redis down")}
	router := newRouter(JWT(validatorStub{claims: &models.JWTClaims{UserID: "u-4"}}), Presence(beats, nil))

	require.Equal(t, http.StatusOK, serve(router, "/items/1", "Bearer good").Code)
	assert.Equal(t, []string{"u-4"}, beats.users)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	audit := &auditStub{}
	router := newRouter(JWT(validatorStub{claims: &models.JWTClaims{UserID: "u-5"}}), Audit(audit, nil, models.AuditActionExportRequest, "exports"))

	require.Equal(t, http.StatusOK, serve(router, "/items/42", "Bearer good").Code)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "u-5", *audit.logs[0].UserID)
	assert.Equal(t, "42", *audit.logs[0].ResourceID)

	serve(router, "/items/42", "")
	assert.Len(t, audit.logs, 1)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &observerStub{}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	serve(router, "/items/7", "")
	serve(router, "/missing", "")
	assert.Equal(t, []string{"/items/:id", "unmatched"}, observer.paths)
}

func TestReportMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	meta := ReportMeta(c, true, time.Now())
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
	assert.Equal(t, meta, ExtractMeta(c))
}

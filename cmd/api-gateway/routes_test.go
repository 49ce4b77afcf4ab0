package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/internal/handler"
	"github.com/noah-isme/ams-api/internal/service"
	"github.com/noah-isme/ams-api/pkg/config"
)

func newTestApplication() *application {
	metrics := service.NewMetricsService()
	return &application{
		cfg:     &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"},
		logger:  zap.NewNop(),
		metrics: metrics,
		handlers: handlers{
			auth:     handler.NewAuthHandler(nil),
			profile:  handler.NewProfileHandler(nil, nil),
			users:    handler.NewUserHandler(nil),
			students: handler.NewStudentHandler(nil, 0),
			catalog:  handler.NewCatalogHandler(nil, nil),
			sessions: handler.NewSessionHandler(nil),
			records:  handler.NewRecordHandler(nil),
			tasks:    handler.NewTaskHandler(nil),
			settings: handler.NewSettingsHandler(nil),
			reports:  handler.NewReportHandler(nil),
			exports:  handler.NewExportHandler(nil),
			metrics:  handler.NewMetricsHandler(metrics, nil),
		},
	}
}

func TestRoutesRegisterWithoutConflicts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := newTestApplication()

	var r *gin.Engine
	require.NotPanics(t, func() { r = app.routes() })

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/auth/login",
		"GET /api/v1/exports/download/:token",
		"GET /api/v1/exports/:id",
		"POST /api/v1/scan",
		"POST /api/v1/scan/batch",
		"GET /api/v1/records/lookup/:roll",
		"DELETE /api/v1/records/:id",
		"GET /api/v1/users/attendance/:roll",
		"GET /api/v1/reports/audit",
		"GET /metrics",
	} {
		assert.True(t, registered[want], want)
	}
	assert.False(t, registered["GET /docs/*any"])
	assert.False(t, registered["GET /ws/sync"])
}

func TestRoutesRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newTestApplication().routes()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    nil,
	})

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "disabled", body.Checks["redis"])
}

func TestMetricsHandlerReadyDegraded(t *testing.T) {
	handler := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": func(ctx context.Context) error { return errors.New("connection refused") },
	})

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordCheckin(service.CheckinAccepted)
	handler := NewMetricsHandler(metrics, nil)

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "attendance_checkins_total"))
}

func TestMetricsHandlerSystemSnapshot(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.SetRealtimeClients(2)
	handler := NewMetricsHandler(metrics, nil)

	c, w := newGinContext(http.MethodGet, "/metrics/system", nil)
	handler.System(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data")
}

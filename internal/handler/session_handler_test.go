package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/dto"
	"github.com/noah-isme/ams-api/internal/middleware"
	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type sessionServiceMock struct {
	started   *dto.SessionResponse
	png       []byte
	scan      *dto.ScanResult
	err       error
	lastID    int64
	lastScan  dto.ScanRequest
	lastActor *models.JWTClaims
}

func (m *sessionServiceMock) Start(ctx context.Context, req dto.StartSessionRequest, actor *models.JWTClaims) (*dto.SessionResponse, error) {
	m.lastActor = actor
	return m.started, m.err
}

func (m *sessionServiceMock) QRImage(ctx context.Context, recordID int64, actor *models.JWTClaims) ([]byte, error) {
	m.lastID = recordID
	return m.png, m.err
}

func (m *sessionServiceMock) Renew(ctx context.Context, recordID int64, actor *models.JWTClaims) (*dto.SessionResponse, error) {
	m.lastID = recordID
	return m.started, m.err
}

func (m *sessionServiceMock) End(ctx context.Context, recordID int64, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	m.lastID = recordID
	return &models.AttendanceRecord{ID: recordID}, m.err
}

func (m *sessionServiceMock) LiveCount(ctx context.Context, recordID int64) (*dto.LiveCountResponse, error) {
	m.lastID = recordID
	return &dto.LiveCountResponse{RecordID: recordID, Present: 3, Total: 45, Active: true}, m.err
}

func (m *sessionServiceMock) Batch(ctx context.Context, recordID int64, req dto.BatchRequest, actor *models.JWTClaims) (*dto.BatchResponse, error) {
	return &dto.BatchResponse{}, m.err
}

func (m *sessionServiceMock) BatchImage(ctx context.Context, recordID int64, req dto.BatchRequest, actor *models.JWTClaims) ([]byte, error) {
	return m.png, m.err
}

func (m *sessionServiceMock) Scan(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*dto.ScanResult, error) {
	m.lastScan = req
	return m.scan, m.err
}

func (m *sessionServiceMock) RedeemBatch(ctx context.Context, req dto.RedeemBatchRequest, actor *models.JWTClaims) (*dto.RedeemBatchResult, error) {
	return &dto.RedeemBatchResult{}, m.err
}

func facultyActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty, RollNo: 7}
}

func TestSessionHandlerStart(t *testing.T) {
	mockSvc := &sessionServiceMock{started: &dto.SessionResponse{QRContent: "{}"}}
	handler := NewSessionHandler(mockSvc)

	body, _ := json.Marshal(dto.StartSessionRequest{LectureName: "Physics", FacultyName: "Dr. Rao"})
	c, w := newGinContext(http.MethodPost, "/sessions", body)
	c.Set(middleware.ContextUserKey, facultyActor())
	handler.Start(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "fac-1", mockSvc.lastActor.UserID)
}

func TestSessionHandlerStartRejectsMalformedBody(t *testing.T) {
	handler := NewSessionHandler(&sessionServiceMock{})

	c, w := newGinContext(http.MethodPost, "/sessions", []byte("{"))
	c.Set(middleware.ContextUserKey, facultyActor())
	handler.Start(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerQRImageServesPNG(t *testing.T) {
	png := []byte("\x89PNG\r\n")
	mockSvc := &sessionServiceMock{png: png}
	handler := NewSessionHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/sessions/12/qr", nil)
	c.Params = gin.Params{{Key: "id", Value: "12"}}
	c.Set(middleware.ContextUserKey, facultyActor())
	handler.QRImage(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, png, w.Body.Bytes())
	assert.Equal(t, int64(12), mockSvc.lastID)
}

func TestSessionHandlerRejectsBadID(t *testing.T) {
	handler := NewSessionHandler(&sessionServiceMock{})

	c, w := newGinContext(http.MethodGet, "/sessions/abc/live", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.LiveCount(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerScanMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"expired", appErrors.ErrQRExpired, http.StatusGone},
		{"closed", appErrors.ErrSessionClosed, http.StatusConflict},
		{"mismatch", appErrors.ErrTokenMismatch, http.StatusForbidden},
		{"duplicate", appErrors.ErrAlreadyCheckedIn, http.StatusConflict},
		{"invalid", appErrors.ErrInvalidQR, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewSessionHandler(&sessionServiceMock{err: tc.err})
			body, _ := json.Marshal(dto.ScanRequest{Payload: "{}"})
			c, w := newGinContext(http.MethodPost, "/scan", body)
			c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu", Role: models.RoleStudent, RollNo: 3})
			handler.Scan(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestSessionHandlerScanSuccess(t *testing.T) {
	mockSvc := &sessionServiceMock{scan: &dto.ScanResult{RecordID: 5, LectureName: "Physics", Message: "Marked Present for Physics"}}
	handler := NewSessionHandler(mockSvc)

	body, _ := json.Marshal(dto.ScanRequest{Payload: `{"rid":5}`, DeviceID: "dev-1"})
	c, w := newGinContext(http.MethodPost, "/scan", body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu", Role: models.RoleStudent, RollNo: 3})
	handler.Scan(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dev-1", mockSvc.lastScan.DeviceID)
	var result dto.ScanResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, "Marked Present for Physics", result.Message)
}

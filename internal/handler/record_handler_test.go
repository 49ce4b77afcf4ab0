package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/middleware"
	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type recordsServiceMock struct {
	lastFilter models.RecordFilter
	lastFull   bool
	lastActor  string
	lastReq    models.ManualRecordRequest
}

func (m *recordsServiceMock) CreateManual(ctx context.Context, req models.ManualRecordRequest, actorID string) (*models.AttendanceRecord, error) {
	m.lastReq = req
	m.lastActor = actorID
	return &models.AttendanceRecord{ID: 1, LectureName: req.LectureName}, nil
}

func (m *recordsServiceMock) UpdateManual(ctx context.Context, id int64, req models.ManualRecordRequest, actorID string) (*models.AttendanceRecord, error) {
	return &models.AttendanceRecord{ID: id}, nil
}

func (m *recordsServiceMock) Delete(ctx context.Context, id int64, actorID string) error {
	return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
}

func (m *recordsServiceMock) List(ctx context.Context, filter models.RecordFilter, full bool) ([]models.AttendanceRecord, error) {
	m.lastFilter = filter
	m.lastFull = full
	return []models.AttendanceRecord{}, nil
}

func (m *recordsServiceMock) Get(ctx context.Context, id int64) (*models.AttendanceRecord, error) {
	return &models.AttendanceRecord{ID: id}, nil
}

func (m *recordsServiceMock) LookupRoll(ctx context.Context, roll int64, actorID string) (*models.ScanLogEntry, error) {
	return &models.ScanLogEntry{RollNo: roll, Found: true}, nil
}

func (m *recordsServiceMock) ScanLog(ctx context.Context, actorID string) ([]models.ScanLogEntry, error) {
	return []models.ScanLogEntry{}, nil
}

type settingsServiceMock struct {
	role models.UserRole
}

func (m *settingsServiceMock) PanelVisibility(ctx context.Context, role models.UserRole) (models.PanelVisibility, error) {
	m.role = role
	return models.DefaultPanelVisibility(), nil
}

func (m *settingsServiceMock) UpdatePanelVisibility(ctx context.Context, flags models.PanelVisibility, actor *models.JWTClaims) (models.PanelVisibility, error) {
	return flags, nil
}

func TestRecordHandlerListParsesFilters(t *testing.T) {
	mockSvc := &recordsServiceMock{}
	handler := NewRecordHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/records?date=2024-03-04&lecture=Math&full=true", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastFilter.Date)
	assert.Equal(t, "2024-03-04", mockSvc.lastFilter.Date.Format("2006-01-02"))
	assert.Equal(t, "Math", mockSvc.lastFilter.Lecture)
	assert.True(t, mockSvc.lastFull)
}

func TestRecordHandlerListRejectsBadDate(t *testing.T) {
	handler := NewRecordHandler(&recordsServiceMock{})

	c, w := newGinContext(http.MethodGet, "/records?date=03/04/2024", nil)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordHandlerCreate(t *testing.T) {
	mockSvc := &recordsServiceMock{}
	handler := NewRecordHandler(mockSvc)

	body, _ := json.Marshal(models.ManualRecordRequest{Date: "2024-03-04", LectureName: "Math", FacultyName: "Dr. Rao", SelectedRolls: []int64{1, 2}})
	c, w := newGinContext(http.MethodPost, "/records", body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty})
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "fac-1", mockSvc.lastActor)
	assert.Equal(t, []int64{1, 2}, mockSvc.lastReq.SelectedRolls)
}

func TestRecordHandlerDeleteNotFound(t *testing.T) {
	handler := NewRecordHandler(&recordsServiceMock{})

	c, w := newGinContext(http.MethodDelete, "/records/9", nil)
	c.Params = gin.Params{{Key: "id", Value: "9"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	handler.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettingsHandlerUsesCallerRole(t *testing.T) {
	mockSvc := &settingsServiceMock{}
	handler := NewSettingsHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/settings/panels", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu", Role: models.RoleStudent})
	handler.PanelVisibility(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleStudent, mockSvc.role)
}

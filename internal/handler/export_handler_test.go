package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ams-api/internal/middleware"
	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/internal/service"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

type exportServiceMock struct {
	status      *models.ExportJobStatus
	err         error
	download    *service.ExportDownload
	downloadErr error
	lastToken   string
}

func (m *exportServiceMock) CreateJob(ctx context.Context, req models.CreateExportRequest, actor *models.JWTClaims) (*models.ExportJobStatus, error) {
	return m.status, m.err
}

func (m *exportServiceMock) GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*models.ExportJobStatus, error) {
	return m.status, m.err
}

func (m *exportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	m.lastToken = token
	return m.download, m.downloadErr
}

func TestExportHandlerCreate(t *testing.T) {
	mockSvc := &exportServiceMock{status: &models.ExportJobStatus{ID: "job-1", Status: models.ExportStatusQueued}}
	handler := NewExportHandler(mockSvc)

	body, _ := json.Marshal(models.CreateExportRequest{Type: models.ExportTypeRecords, Format: models.ExportFormatCSV})
	c, w := newGinContext(http.MethodPost, "/exports", body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	handler.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestExportHandlerStatusForbidden(t *testing.T) {
	handler := NewExportHandler(&exportServiceMock{err: appErrors.ErrForbidden})

	c, w := newGinContext(http.MethodGet, "/exports/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "other", Role: models.RoleFaculty})
	handler.Status(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Lecture\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	mockSvc := &exportServiceMock{download: &service.ExportDownload{
		File:        file,
		Size:        13,
		Filename:    "records.csv",
		ContentType: "text/csv",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	handler := NewExportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/exports/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", mockSvc.lastToken)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "records.csv")
	assert.Equal(t, "Date,Lecture\n", w.Body.String())
}

func TestExportHandlerDisabled(t *testing.T) {
	handler := NewExportHandler(nil)

	c, w := newGinContext(http.MethodGet, "/exports/download/tok", nil)
	handler.Download(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

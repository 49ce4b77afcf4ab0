package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/internal/service"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/response"
)

type exportJobService interface {
	CreateJob(ctx context.Context, req models.CreateExportRequest, actor *models.JWTClaims) (*models.ExportJobStatus, error)
	GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*models.ExportJobStatus, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler exposes asynchronous exports.
type ExportHandler struct {
	service exportJobService
}

// NewExportHandler constructs the handler. A nil service answers every call with FEATURE_DISABLED.
func NewExportHandler(svc exportJobService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Create godoc
// @Summary Request an export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body models.CreateExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrFeatureDisabled)
		return
	}
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.CreateExportRequest
	if !bindJSON(c, &req, "invalid export request") {
		return
	}
	status, err := h.service.CreateJob(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, status, nil)
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrFeatureDisabled)
		return
	}
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download an export
// @Description The signed token is the credential; no bearer token is required
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrFeatureDisabled)
		return
	}
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=\"%s\"", download.Filename),
		"Cache-Control":       "no-store",
		"X-Expires-At":        download.ExpiresAt.UTC().Format(time.RFC3339),
	}
	c.DataFromReader(http.StatusOK, download.Size, download.ContentType, download.File, headers)
}

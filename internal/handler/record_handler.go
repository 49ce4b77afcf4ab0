package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/response"
)

type recordsService interface {
	CreateManual(ctx context.Context, req models.ManualRecordRequest, actorID string) (*models.AttendanceRecord, error)
	UpdateManual(ctx context.Context, id int64, req models.ManualRecordRequest, actorID string) (*models.AttendanceRecord, error)
	Delete(ctx context.Context, id int64, actorID string) error
	List(ctx context.Context, filter models.RecordFilter, full bool) ([]models.AttendanceRecord, error)
	Get(ctx context.Context, id int64) (*models.AttendanceRecord, error)
	LookupRoll(ctx context.Context, roll int64, actorID string) (*models.ScanLogEntry, error)
	ScanLog(ctx context.Context, actorID string) ([]models.ScanLogEntry, error)
}

// RecordHandler manages attendance records and manual roll marking.
type RecordHandler struct {
	service recordsService
}

// NewRecordHandler constructs the handler.
func NewRecordHandler(svc recordsService) *RecordHandler {
	return &RecordHandler{service: svc}
}

// List godoc
// @Summary List attendance records
// @Description Newest first with details. Returns 20 records, or 200 with full=true.
// @Tags Records
// @Produce json
// @Param full query bool false "Raise the limit to 200"
// @Param date query string false "YYYY-MM-DD"
// @Param lecture query string false "Lecture name"
// @Param faculty query string false "Faculty name"
// @Success 200 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) List(c *gin.Context) {
	filter := models.RecordFilter{
		Lecture: c.Query("lecture"),
		Faculty: c.Query("faculty"),
	}
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date parameter"))
			return
		}
		filter.Date = &parsed
	}
	full, _ := strconv.ParseBool(c.Query("full"))

	records, err := h.service.List(c.Request.Context(), filter, full)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Get godoc
// @Summary Get attendance record
// @Tags Records
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	record, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Record attendance manually
// @Description Every roster student is marked P when selected, otherwise A
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body models.ManualRecordRequest true "Manual record"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /records [post]
func (h *RecordHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.ManualRecordRequest
	if !bindJSON(c, &req, "invalid record payload") {
		return
	}
	record, err := h.service.CreateManual(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Update godoc
// @Summary Replace a manual record
// @Tags Records
// @Accept json
// @Produce json
// @Param id path int true "Record ID"
// @Param payload body models.ManualRecordRequest true "Manual record"
// @Success 200 {object} response.Envelope
// @Router /records/{id} [put]
func (h *RecordHandler) Update(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req models.ManualRecordRequest
	if !bindJSON(c, &req, "invalid record payload") {
		return
	}
	record, err := h.service.UpdateManual(c.Request.Context(), id, req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete attendance record
// @Tags Records
// @Param id path int true "Record ID"
// @Success 204 {object} response.Envelope
// @Router /records/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// LookupRoll godoc
// @Summary Look up a typed roll number
// @Description Matches the roll against the roster and appends it to the caller's scan log
// @Tags Records
// @Produce json
// @Param roll path int true "Roll number"
// @Success 200 {object} response.Envelope
// @Router /records/lookup/{roll} [get]
func (h *RecordHandler) LookupRoll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	roll, ok := int64Param(c, "roll")
	if !ok {
		return
	}
	entry, err := h.service.LookupRoll(c.Request.Context(), roll, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// ScanLog godoc
// @Summary Recent roll lookups
// @Tags Records
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /records/scan-log [get]
func (h *RecordHandler) ScanLog(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	entries, err := h.service.ScanLog(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ams-api/internal/dto"
	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/response"
)

const pngContentType = "image/png"

type sessionService interface {
	Start(ctx context.Context, req dto.StartSessionRequest, actor *models.JWTClaims) (*dto.SessionResponse, error)
	QRImage(ctx context.Context, recordID int64, actor *models.JWTClaims) ([]byte, error)
	Renew(ctx context.Context, recordID int64, actor *models.JWTClaims) (*dto.SessionResponse, error)
	End(ctx context.Context, recordID int64, actor *models.JWTClaims) (*models.AttendanceRecord, error)
	LiveCount(ctx context.Context, recordID int64) (*dto.LiveCountResponse, error)
	Batch(ctx context.Context, recordID int64, req dto.BatchRequest, actor *models.JWTClaims) (*dto.BatchResponse, error)
	BatchImage(ctx context.Context, recordID int64, req dto.BatchRequest, actor *models.JWTClaims) ([]byte, error)
	Scan(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*dto.ScanResult, error)
	RedeemBatch(ctx context.Context, req dto.RedeemBatchRequest, actor *models.JWTClaims) (*dto.RedeemBatchResult, error)
}

// SessionHandler exposes QR attendance sessions.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Start godoc
// @Summary Start a QR session
// @Description Creates an active attendance record and returns its QR payload. The code expires after the session TTL.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.StartSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.StartSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.service.Start(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// QRImage godoc
// @Summary Session QR code
// @Description Renders the current session payload as a PNG
// @Tags Sessions
// @Produce png
// @Param id path int true "Record ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/qr [get]
func (h *SessionHandler) QRImage(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	png, err := h.service.QRImage(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Image(c, pngContentType, png)
}

// Renew godoc
// @Summary Renew session QR
// @Description Rotates the session token and restarts the expiry window
// @Tags Sessions
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/renew [post]
func (h *SessionHandler) Renew(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	session, err := h.service.Renew(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// End godoc
// @Summary End session
// @Description Closes the session and finalizes its present count and time slot
// @Tags Sessions
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	record, err := h.service.End(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// LiveCount godoc
// @Summary Live check-in count
// @Tags Sessions
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/live [get]
func (h *SessionHandler) LiveCount(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	count, err := h.service.LiveCount(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, count, nil)
}

// Batch godoc
// @Summary Build a batch QR payload
// @Description Encodes rolls collected offline so another device can redeem them
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path int true "Record ID"
// @Param payload body dto.BatchRequest true "Rolls"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/batch [post]
func (h *SessionHandler) Batch(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req dto.BatchRequest
	if !bindJSON(c, &req, "invalid batch payload") {
		return
	}
	batch, err := h.service.Batch(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// BatchImage godoc
// @Summary Batch QR code
// @Tags Sessions
// @Accept json
// @Produce png
// @Param id path int true "Record ID"
// @Param payload body dto.BatchRequest true "Rolls"
// @Success 200 {file} file
// @Router /sessions/{id}/batch/qr [post]
func (h *SessionHandler) BatchImage(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req dto.BatchRequest
	if !bindJSON(c, &req, "invalid batch payload") {
		return
	}
	png, err := h.service.BatchImage(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Image(c, pngContentType, png)
}

// Scan godoc
// @Summary Check in with a scanned QR
// @Description Students submit the scanned payload. Errors: 400 invalid QR, 410 expired, 404 unknown session, 409 closed or duplicate, 403 token mismatch.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.ScanRequest true "Scanned payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /scan [post]
func (h *SessionHandler) Scan(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.ScanRequest
	if !bindJSON(c, &req, "invalid scan payload") {
		return
	}
	result, err := h.service.Scan(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RedeemBatch godoc
// @Summary Redeem a batch QR
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.RedeemBatchRequest true "Scanned batch payload"
// @Success 200 {object} response.Envelope
// @Router /scan/batch [post]
func (h *SessionHandler) RedeemBatch(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.RedeemBatchRequest
	if !bindJSON(c, &req, "invalid batch payload") {
		return
	}
	result, err := h.service.RedeemBatch(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

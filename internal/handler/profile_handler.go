package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ams-api/internal/models"
	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/response"
)

type profileService interface {
	Heartbeat(ctx context.Context, userID string) (bool, error)
	MyAttendance(ctx context.Context, roll int64) (*models.StudentHistory, error)
}

type notificationLister interface {
	List(ctx context.Context, userID string) ([]models.Notification, error)
}

// ProfileHandler serves the caller's own presence, history and notifications.
type ProfileHandler struct {
	profile       profileService
	notifications notificationLister
}

// NewProfileHandler constructs the handler.
func NewProfileHandler(profile profileService, notifications notificationLister) *ProfileHandler {
	return &ProfileHandler{profile: profile, notifications: notifications}
}

// Heartbeat godoc
// @Summary Presence heartbeat
// @Description Refreshes last_active_at. Writes are throttled per user.
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /profile/heartbeat [post]
func (h *ProfileHandler) Heartbeat(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	written, err := h.profile.Heartbeat(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": written}, nil)
}

// MyAttendance godoc
// @Summary Student attendance history
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /profile/attendance [get]
func (h *ProfileHandler) MyAttendance(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if claims.RollNo <= 0 {
		response.Error(c, appErrors.ErrNoRollNumber)
		return
	}
	history, err := h.profile.MyAttendance(c.Request.Context(), claims.RollNo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Notifications godoc
// @Summary Recent notifications
// @Description Returns the five most recent notifications for the caller
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *ProfileHandler) Notifications(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	items, err := h.notifications.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

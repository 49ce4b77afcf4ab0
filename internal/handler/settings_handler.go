package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/response"
)

type settingsService interface {
	PanelVisibility(ctx context.Context, role models.UserRole) (models.PanelVisibility, error)
	UpdatePanelVisibility(ctx context.Context, flags models.PanelVisibility, actor *models.JWTClaims) (models.PanelVisibility, error)
}

// SettingsHandler exposes dashboard panel visibility.
type SettingsHandler struct {
	service settingsService
}

// NewSettingsHandler constructs the handler.
func NewSettingsHandler(svc settingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// PanelVisibility godoc
// @Summary Dashboard panel visibility
// @Description true means hidden. Admins always receive every panel as visible.
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings/panels [get]
func (h *SettingsHandler) PanelVisibility(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	flags, err := h.service.PanelVisibility(c.Request.Context(), claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flags, nil)
}

// UpdatePanelVisibility godoc
// @Summary Hide or show dashboard panels
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body map[string]bool true "Panel flags"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /settings/panels [put]
func (h *SettingsHandler) UpdatePanelVisibility(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var flags models.PanelVisibility
	if !bindJSON(c, &flags, "invalid panel payload") {
		return
	}
	updated, err := h.service.UpdatePanelVisibility(c.Request.Context(), flags, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

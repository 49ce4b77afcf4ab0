package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/response"
)

type syncServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// RealtimeHandler upgrades authenticated clients to the sync websocket.
type RealtimeHandler struct {
	hub    syncServer
	logger *zap.Logger
}

// NewRealtimeHandler constructs the handler. A nil hub disables the endpoint.
func NewRealtimeHandler(hub syncServer, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, logger: logger}
}

// Sync godoc
// @Summary Realtime sync socket
// @Description Websocket emitting {type:"sync", tables:[...]} frames after data changes
// @Tags Realtime
// @Param token query string true "Access token"
// @Success 101
// @Router /ws/sync [get]
func (h *RealtimeHandler) Sync(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.ErrFeatureDisabled)
		return
	}
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, claims.UserID); err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}

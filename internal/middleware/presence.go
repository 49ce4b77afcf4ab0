package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Heartbeater refreshes a user's last activity.
type Heartbeater interface {
	Heartbeat(ctx context.Context, userID string) (bool, error)
}

// Presence refreshes last_active_at for the authenticated user once the request has run.
// The heartbeat store throttles writes, so most calls are a single redis round trip.
func Presence(heartbeater Heartbeater, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()
		if heartbeater == nil {
			return
		}
		claims := Claims(c)
		if claims == nil {
			return
		}
		if _, err := heartbeater.Heartbeat(c.Request.Context(), claims.UserID); err != nil {
			logger.Warn("presence heartbeat failed", zap.String("user_id", claims.UserID), zap.Error(err))
		}
	}
}

package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/ams-api/pkg/errors"
	"github.com/noah-isme/ams-api/pkg/response"
)

// AccountChecker reports whether an authenticated account may still be served.
type AccountChecker interface {
	CheckActive(ctx context.Context, userID string) error
}

// ActiveAccount rejects requests from accounts blocked or deleted after their token was issued.
// It must run after JWT or QueryJWT.
func ActiveAccount(checker AccountChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if checker == nil {
			c.Next()
			return
		}
		if err := checker.CheckActive(c.Request.Context(), claims.UserID); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

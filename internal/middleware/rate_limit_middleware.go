// internal/middleware/rate_limit_middleware.go
package middleware

import (
	"context"
	"net/http"
	"time"

	xerrors "bargain-service/internal/pkg/errors"
	"bargain-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type APIRateLimiter interface {
	CheckAPIRateLimit(ctx context.Context, userID int64, endpoint string, maxRequests int64, window time.Duration) (bool, error)
}

// RateLimit caps authenticated requests per user and endpoint. Limiter
// failures let the request through.
func RateLimit(limiter APIRateLimiter, endpoint string, maxRequests int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || maxRequests <= 0 {
			c.Next()
			return
		}

		userID, ok := CurrentUser(c)
		if !ok {
			c.Next()
			return
		}

		allowed, err := limiter.CheckAPIRateLimit(c.Request.Context(), userID, endpoint, int64(maxRequests), window)
		if err != nil {
			logger.Warn("rate limiter unavailable",
				zap.Int64("user_id", userID),
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if !allowed {
			response.Error(c, http.StatusTooManyRequests, "too many requests, please slow down", xerrors.KindRateLimited)
			return
		}
		c.Next()
	}
}

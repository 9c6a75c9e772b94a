// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"strings"

	"bargain-service/internal/pkg/jwt"
	"bargain-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

type RevocationChecker interface {
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

type AuthMiddleware struct {
	verifier    TokenVerifier
	revocations RevocationChecker
	logger      *zap.Logger
}

// NewAuthMiddleware builds the bearer-token middleware. revocations may be nil
// when Redis is disabled.
func NewAuthMiddleware(verifier TokenVerifier, revocations RevocationChecker, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:    verifier,
		revocations: revocations,
		logger:      logger,
	}
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "missing authorization token")
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			_ = c.Error(err)
			response.Unauthorized(c, "invalid or expired token")
			return
		}

		if m.revocations != nil && claims.ID != "" {
			revoked, err := m.revocations.IsTokenBlacklisted(c.Request.Context(), claims.ID)
			if err != nil {
				// fail closed
				m.logger.Error("failed to check token revocation",
					zap.Int64("user_id", claims.UserID),
					zap.Error(err),
				)
				response.Unauthorized(c, "could not verify session, please try again")
				return
			}
			if revoked {
				response.Unauthorized(c, "session has been revoked")
				return
			}
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxJTI, claims.ID)
		c.Set(ctxRoles, claims.Roles)
		c.Set(ctxShopDomain, claims.ShopDomain)

		c.Next()
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

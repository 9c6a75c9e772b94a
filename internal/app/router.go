// internal/app/router.go
package app

import (
	"context"
	"net/http"
	"time"

	"bargain-service/internal/config"
	bargainingHandler "bargain-service/internal/handlers/bargaining"
	billingHandler "bargain-service/internal/handlers/billing"
	membershipHandler "bargain-service/internal/handlers/membership"
	"bargain-service/internal/middleware"
	xerrors "bargain-service/internal/pkg/errors"
	"bargain-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	BargainingHandler *bargainingHandler.BargainingHandler
	MembershipHandler *membershipHandler.MembershipHandler
	BillingHandler    *billingHandler.BillingHandler
	AuthMiddleware    *middleware.AuthMiddleware
	RateLimiter       middleware.APIRateLimiter
	RateLimits        config.RateLimitConfig
	Health            HealthChecker
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	mutations := func(endpoint string) gin.HandlerFunc {
		return middleware.RateLimit(h.RateLimiter, endpoint, h.RateLimits.Mutations, h.RateLimits.Window, logger)
	}

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := h.Health.Ping(ctx); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			response.Error(c, http.StatusServiceUnavailable, "storage unavailable", xerrors.KindPersistence)
			return
		}
		response.Success(c, http.StatusOK, "ok", gin.H{"status": "ok"})
	})

	// ==================== Public Routes ====================
	api.GET("/membership/plans", h.MembershipHandler.ListPlans)
	api.GET("/billing/confirm", h.BillingHandler.Confirm)

	// ==================== Bargaining ====================
	bargaining := api.Group("/bargaining")
	bargaining.Use(h.AuthMiddleware.Auth())
	{
		bargaining.GET("/limits", h.BargainingHandler.GetLimits)
		bargaining.GET("/settings", h.BargainingHandler.GetSettings)
		bargaining.POST("/enable", mutations("bargaining.enable"), h.BargainingHandler.Enable)
		bargaining.POST("/disable", mutations("bargaining.disable"), h.BargainingHandler.Disable)
		bargaining.POST("/bulk",
			middleware.RateLimit(h.RateLimiter, "bargaining.bulk", h.RateLimits.Bulk, h.RateLimits.Window, logger),
			h.BargainingHandler.BulkUpdate,
		)
	}

	// ==================== Membership ====================
	membership := api.Group("/membership")
	membership.Use(h.AuthMiddleware.Auth())
	{
		membership.GET("", h.MembershipHandler.GetCurrent)
		membership.POST("/change", mutations("membership.change"), h.MembershipHandler.ChangePlan)
		membership.GET("/history", h.MembershipHandler.ListHistory)
		membership.GET("/events", h.MembershipHandler.ListEvents)
	}

	// ==================== Billing ====================
	billing := api.Group("/billing")
	billing.Use(h.AuthMiddleware.Auth())
	{
		billing.POST("/cancel", mutations("billing.cancel"), h.BillingHandler.Cancel)
	}
}

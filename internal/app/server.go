// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bargain-service/internal/billing"
	"bargain-service/internal/cache"
	"bargain-service/internal/config"
	"bargain-service/internal/db"
	bargainingHandler "bargain-service/internal/handlers/bargaining"
	billingHandler "bargain-service/internal/handlers/billing"
	membershipHandler "bargain-service/internal/handlers/membership"
	"bargain-service/internal/middleware"
	"bargain-service/internal/pkg/jwt"
	"bargain-service/internal/pkg/session"
	bargainsvc "bargain-service/internal/service/bargaining"
	membershipsvc "bargain-service/internal/service/membership"
	"bargain-service/internal/service/quota"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	logger *zap.Logger
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Run builds the dependency graph, serves HTTP and blocks until ctx is
// cancelled, then drains in-flight requests and releases connections.
func (s *Server) Run(ctx context.Context) error {
	// ----- Storage -----
	repos, err := openRepositories(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	defer repos.close()

	// ----- Redis -----
	var (
		redisClient *redis.Client
		plans       membershipsvc.PlanStore = repos.plans
		revocations middleware.RevocationChecker
		rateLimiter middleware.APIRateLimiter
	)
	if s.cfg.Redis.Enabled {
		redisClient, err = db.NewRedisClient(ctx, db.RedisConfig{
			Addresses: s.cfg.Redis.Addresses,
			Password:  s.cfg.Redis.Password,
			DB:        s.cfg.Redis.DB,
			PoolSize:  s.cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				s.logger.Warn("failed to close redis client", zap.Error(err))
			}
		}()
		s.logger.Info("connected to redis", zap.Strings("addresses", s.cfg.Redis.Addresses))

		planCache := cache.NewPlanCache(repos.plans, redisClient, s.cfg.Quota.PlanCacheTTL, s.logger)
		// migrations may have reseeded plans
		if err := planCache.Invalidate(ctx); err != nil {
			s.logger.Warn("failed to invalidate plan cache", zap.Error(err))
		}
		plans = planCache
		revocations = session.NewRevocations(redisClient)
		rateLimiter = session.NewRateLimiter(redisClient)
	} else {
		s.logger.Warn("redis disabled: plan cache, rate limits and token revocation are off")
	}

	// ----- JWT -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Billing -----
	gateway := billing.NewShopifyGateway(billing.Config{
		APIVersion:  s.cfg.Billing.APIVersion,
		TestCharges: s.cfg.Billing.TestCharges,
		Timeout:     s.cfg.Billing.Timeout,
	})
	returnURLs := billing.NewReturnURLSigner(s.cfg.Billing.ReturnURL, s.cfg.Billing.SigningSecret)

	// ----- Services -----
	ledger := quota.NewLedger(repos.memberships, plans, repos.settings, s.cfg.Quota.FreeProductLimit, s.logger)
	bargainingService := bargainsvc.NewBargainingService(repos.settings, ledger, repos.storefront, repos.tx, s.logger)
	membershipService := membershipsvc.NewMembershipService(
		plans,
		repos.memberships,
		repos.audit,
		repos.storefront,
		gateway,
		returnURLs,
		repos.tx,
		s.logger,
	)

	// ----- HTTP -----
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(s.logger),
		middleware.CORSMiddleware(s.cfg.CORSOrigins),
	)

	SetupRouter(engine, s.logger, &Handlers{
		BargainingHandler: bargainingHandler.NewBargainingHandler(bargainingService),
		MembershipHandler: membershipHandler.NewMembershipHandler(membershipService),
		BillingHandler:    billingHandler.NewBillingHandler(membershipService, returnURLs),
		AuthMiddleware:    middleware.NewAuthMiddleware(jwtManager.Verifier, revocations, s.logger),
		RateLimiter:       rateLimiter,
		RateLimits:        s.cfg.Limits,
		Health:            repos.tx,
	})

	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening",
			zap.String("addr", s.cfg.HTTPAddr),
			zap.String("storage", s.cfg.StorageDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// internal/app/storage.go
package app

import (
	"context"
	"fmt"

	"bargain-service/internal/config"
	"bargain-service/internal/db"
	"bargain-service/internal/repository/memory"
	"bargain-service/internal/repository/postgres"
	bargainsvc "bargain-service/internal/service/bargaining"
	membershipsvc "bargain-service/internal/service/membership"
	"bargain-service/internal/service/quota"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type settingsRepository interface {
	bargainsvc.SettingsStore
	quota.EnabledProductCounter
}

type storefrontRepository interface {
	membershipsvc.StoreLookup
	bargainsvc.ProductSource
}

type txRunner interface {
	WithUserTx(ctx context.Context, userID int64, fn func(ctx context.Context, tx pgx.Tx) error) error
	Ping(ctx context.Context) error
}

// repositories is the storage surface the services are built from. Both
// drivers fill it with the same shapes.
type repositories struct {
	plans       membershipsvc.PlanStore
	memberships membershipsvc.MembershipStore
	audit       membershipsvc.AuditStore
	settings    settingsRepository
	storefront  storefrontRepository
	tx          txRunner
	close       func()
}

func openRepositories(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*repositories, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			plans:       store.Plans(),
			memberships: store.Memberships(),
			audit:       store.Audit(),
			settings:    store.Settings(),
			storefront:  store.Storefront(),
			tx:          store,
			close:       func() {},
		}, nil

	case config.StorageDriverPostgres:
		pool, err := db.ConnectDB(ctx, db.PostgresConfig{
			ConnURL:           cfg.Postgres.ConnURL,
			MaxConns:          cfg.Postgres.MaxConns,
			MinConns:          cfg.Postgres.MinConns,
			MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
			RetryAttempts:     cfg.Postgres.RetryAttempts,
			RetryInterval:     cfg.Postgres.RetryInterval,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}

		if cfg.Postgres.MigrateOnStart {
			if err := db.Migrate(ctx, pool, "up", logger); err != nil {
				pool.Close()
				return nil, err
			}
		}

		return &repositories{
			plans:       postgres.NewMembershipPlanRepository(pool),
			memberships: postgres.NewUserMembershipRepository(pool),
			audit:       postgres.NewMembershipAuditRepository(pool),
			settings:    postgres.NewBargainingSettingRepository(pool),
			storefront:  postgres.NewStorefrontRepository(pool),
			tx:          postgres.NewDB(pool),
			close:       pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

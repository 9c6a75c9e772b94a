//go:build integration

package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"bargain-service/internal/db"
	"bargain-service/internal/domain/bargaining"
	"bargain-service/internal/domain/membership"
	xerrors "bargain-service/internal/pkg/errors"
	"bargain-service/internal/repository/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Run with: PG_TEST_CONN_URL=postgres://... go test -tags integration ./internal/repository/postgres/
func openPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_TEST_CONN_URL")
	if url == "" {
		t.Skip("PG_TEST_CONN_URL not set")
	}

	ctx := context.Background()
	pool, err := db.ConnectDB(ctx, db.PostgresConfig{
		ConnURL:           url,
		MaxConns:          8,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: time.Minute,
		RetryAttempts:     1,
		RetryInterval:     time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool, "up", zap.NewNop()))
	return pool
}

// testUser returns an id unlikely to collide with earlier runs and removes
// its rows afterwards.
func testUser(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	userID := time.Now().UnixNano() % 1_000_000_000
	t.Cleanup(func() {
		ctx := context.Background()
		for _, table := range []string{"bargaining_settings", "membership_history", "billing_events", "user_memberships"} {
			_, _ = pool.Exec(ctx, "DELETE FROM "+table+" WHERE user_id = $1", userID)
		}
	})
	return userID
}

func TestWithUserTx_SerializesSameUser(t *testing.T) {
	pool := openPool(t)
	store := postgres.NewDB(pool)
	userID := testUser(t, pool)
	ctx := context.Background()

	entered := make(chan struct{})
	var released, acquired time.Time
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, store.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
			close(entered)
			time.Sleep(300 * time.Millisecond)
			released = time.Now()
			return nil
		}))
	}()
	go func() {
		defer wg.Done()
		<-entered
		assert.NoError(t, store.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
			acquired = time.Now()
			return nil
		}))
	}()
	wg.Wait()

	assert.False(t, acquired.Before(released), "second transaction ran while the first held the lock")
}

func TestWithUserTx_OtherUsersDoNotWait(t *testing.T) {
	pool := openPool(t)
	store := postgres.NewDB(pool)
	ctx := context.Background()

	hold := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithUserTx(ctx, 1_000_000_001, func(ctx context.Context, tx pgx.Tx) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	start := time.Now()
	require.NoError(t, store.WithUserTx(ctx, 1_000_000_002, func(ctx context.Context, tx pgx.Tx) error { return nil }))
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	close(hold)
	require.NoError(t, <-done)
}

func TestWithUserTx_RollsBackOnError(t *testing.T) {
	pool := openPool(t)
	store := postgres.NewDB(pool)
	settings := postgres.NewBargainingSettingRepository(pool)
	userID := testUser(t, pool)
	ctx := context.Background()

	err := store.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		require.NoError(t, settings.UpsertWithTx(ctx, tx, &bargaining.Setting{
			UserID: userID, ProductID: "P1", VariantID: "V1", Enabled: true,
			MinPrice: 10, OriginalPrice: 20, Behavior: bargaining.BehaviorNormal,
		}))
		return xerrors.ErrDuplicateEntry
	})
	require.ErrorIs(t, err, xerrors.ErrDuplicateEntry)

	count, err := settings.CountEnabledDistinctProducts(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpsertWithTx_UpdatesInPlaceAndClamps(t *testing.T) {
	pool := openPool(t)
	store := postgres.NewDB(pool)
	settings := postgres.NewBargainingSettingRepository(pool)
	userID := testUser(t, pool)
	ctx := context.Background()

	first := &bargaining.Setting{
		UserID: userID, ProductID: "P1", VariantID: "V1", Enabled: true,
		MinPrice: 40, OriginalPrice: 50, Behavior: bargaining.BehaviorLow,
	}
	second := &bargaining.Setting{
		UserID: userID, ProductID: "P1", VariantID: "V1", Enabled: true,
		MinPrice: 90, OriginalPrice: 60, Behavior: bargaining.BehaviorHigh,
	}
	require.NoError(t, store.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		if err := settings.UpsertWithTx(ctx, tx, first); err != nil {
			return err
		}
		return settings.UpsertWithTx(ctx, tx, second)
	}))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 60.0, second.MinPrice)

	rows, err := settings.ListByProducts(ctx, userID, []string{"P1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 60.0, rows[0].MinPrice)
	assert.Equal(t, bargaining.BehaviorHigh, rows[0].Behavior)
}

func TestSupersedePendingWithTx(t *testing.T) {
	pool := openPool(t)
	store := postgres.NewDB(pool)
	plans := postgres.NewMembershipPlanRepository(pool)
	memberships := postgres.NewUserMembershipRepository(pool)
	userID := testUser(t, pool)
	ctx := context.Background()

	pro, err := plans.FindBySlug(ctx, "pro")
	require.NoError(t, err)

	session := "01HSESSIONINTEGRATION00000"
	require.NoError(t, store.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		if err := memberships.CreateWithTx(ctx, tx, &membership.UserMembership{
			UserID: userID, PlanID: pro.ID, Status: membership.StatusPending,
			StartDate: time.Now(), SessionID: &session,
		}); err != nil {
			return err
		}

		n, err := memberships.SupersedePendingWithTx(ctx, tx, userID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		row, err := memberships.FindBySessionWithTx(ctx, tx, userID, session)
		require.NoError(t, err)
		assert.Equal(t, membership.StatusCancelled, row.Status)
		assert.NotNil(t, row.EndDate)

		_, err = memberships.FindPendingWithTx(ctx, tx, userID, pro.ID)
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
		return nil
	}))
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"bargain-service/internal/domain/bargaining"
	"bargain-service/internal/domain/membership"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithUserTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithUserTx(ctx, 1, func(ctx context.Context, tx pgx.Tx) error {
		require.NoError(t, s.Memberships().CreateWithTx(ctx, tx, &membership.UserMembership{UserID: 1, PlanID: 1, Status: membership.StatusActive}))
		require.NoError(t, s.Settings().UpsertWithTx(ctx, tx, &bargaining.Setting{UserID: 1, ProductID: "P1", VariantID: "V1", Enabled: true, MinPrice: 5, OriginalPrice: 10}))
		require.NoError(t, s.Audit().AppendEventWithTx(ctx, tx, &membership.BillingEvent{UserID: 1, EventType: membership.EventChanged}))
		require.NoError(t, s.Audit().AppendEvent(ctx, &membership.BillingEvent{UserID: 1, EventType: membership.EventChangeInitiated}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Empty(t, s.Memberships().All(1))
	count, err := s.Settings().CountEnabledDistinctProducts(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)

	events, err := s.Audit().ListEvents(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, membership.EventChangeInitiated, events[0].EventType)
}

func TestWithUserTx_CommitsAudit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.WithUserTx(ctx, 1, func(ctx context.Context, tx pgx.Tx) error {
		return s.Audit().AppendHistoryWithTx(ctx, tx, &membership.HistoryEntry{UserID: 1, ToPlanID: 1, ChangeType: membership.ChangeSwitch})
	})
	require.NoError(t, err)

	history, err := s.Audit().ListHistory(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestWithUserTx_HonorsContextWhileWaiting(t *testing.T) {
	s := NewStore()
	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = s.WithUserTx(context.Background(), 1, func(ctx context.Context, tx pgx.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithUserTx(ctx, 1, func(ctx context.Context, tx pgx.Tx) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestMemberships_Uniqueness(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Memberships()

	require.NoError(t, repo.CreateWithTx(ctx, nil, &membership.UserMembership{UserID: 1, PlanID: 1, Status: membership.StatusActive}))
	err := repo.CreateWithTx(ctx, nil, &membership.UserMembership{UserID: 1, PlanID: 2, Status: membership.StatusActive})
	assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)

	require.NoError(t, repo.CreateWithTx(ctx, nil, &membership.UserMembership{UserID: 1, PlanID: 2, Status: membership.StatusPending}))
	err = repo.CreateWithTx(ctx, nil, &membership.UserMembership{UserID: 1, PlanID: 2, Status: membership.StatusPending})
	assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)

	pending, err := repo.FindPendingWithTx(ctx, nil, 1, 2)
	require.NoError(t, err)
	err = repo.ActivateWithTx(ctx, nil, pending.ID, membership.Activation{StartDate: time.Now()})
	assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)
}

func TestSettings_UpsertKeepsIdentityAndClamps(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Settings()

	first := &bargaining.Setting{UserID: 1, ProductID: "P1", VariantID: "V1", Enabled: true, MinPrice: 50, OriginalPrice: 40}
	require.NoError(t, repo.UpsertWithTx(ctx, nil, first))
	assert.Equal(t, 40.0, first.MinPrice)

	second := &bargaining.Setting{UserID: 1, ProductID: "P1", VariantID: "V1", Enabled: false, MinPrice: 10, OriginalPrice: 40}
	require.NoError(t, repo.UpsertWithTx(ctx, nil, second))
	assert.Equal(t, first.ID, second.ID)

	all, err := repo.ListByProducts(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Enabled)

	err = repo.UpsertWithTx(ctx, nil, &bargaining.Setting{UserID: 1, ProductID: "P2", VariantID: "V1", OriginalPrice: 0})
	assert.ErrorIs(t, err, bargaining.ErrInvalidPrice)
}

// internal/service/quota/ledger.go
package quota

import (
	"context"
	"errors"
	"fmt"

	"bargain-service/internal/domain/bargaining"
	"bargain-service/internal/domain/membership"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const defaultFreeProductLimit = 10

type ActiveMembershipReader interface {
	FindActiveByUser(ctx context.Context, userID int64) (*membership.UserMembership, error)
	FindActiveByUserWithTx(ctx context.Context, tx pgx.Tx, userID int64) (*membership.UserMembership, error)
}

type PlanReader interface {
	FindByID(ctx context.Context, id int64) (*membership.Plan, error)
	FindBySlug(ctx context.Context, slug string) (*membership.Plan, error)
}

type EnabledProductCounter interface {
	CountEnabledDistinctProducts(ctx context.Context, userID int64) (int, error)
	CountEnabledDistinctProductsWithTx(ctx context.Context, tx pgx.Tx, userID int64) (int, error)
}

// Ledger answers "how many products may this user bargain on, and how many
// do they already". Plan resolution never fails: any lookup error degrades to
// the free tier. Counting errors are returned since a wrong count would let
// the limit be crossed.
type Ledger struct {
	memberships      ActiveMembershipReader
	plans            PlanReader
	counter          EnabledProductCounter
	freeProductLimit int
	logger           *zap.Logger
}

func NewLedger(
	memberships ActiveMembershipReader,
	plans PlanReader,
	counter EnabledProductCounter,
	freeProductLimit int,
	logger *zap.Logger,
) *Ledger {
	if freeProductLimit <= 0 {
		freeProductLimit = defaultFreeProductLimit
	}
	return &Ledger{
		memberships:      memberships,
		plans:            plans,
		counter:          counter,
		freeProductLimit: freeProductLimit,
		logger:           logger,
	}
}

// GetLimits is the read-only view used by the dashboard.
func (l *Ledger) GetLimits(ctx context.Context, userID int64) (bargaining.Limits, error) {
	plan := l.resolvePlan(ctx, nil, userID)

	count, err := l.counter.CountEnabledDistinctProducts(ctx, userID)
	if err != nil {
		return bargaining.Limits{}, xerrors.Persistence(fmt.Errorf("failed to count enabled products: %w", err))
	}

	return bargaining.NewLimits(plan.ProductLimit, count, plan.Slug, plan.Name), nil
}

// GetLimitsWithTx reads plan and count inside the caller's per-user
// transaction, so the answer holds until the transaction ends.
func (l *Ledger) GetLimitsWithTx(ctx context.Context, tx pgx.Tx, userID int64) (bargaining.Limits, error) {
	plan := l.resolvePlan(ctx, tx, userID)

	count, err := l.counter.CountEnabledDistinctProductsWithTx(ctx, tx, userID)
	if err != nil {
		return bargaining.Limits{}, xerrors.Persistence(fmt.Errorf("failed to count enabled products: %w", err))
	}

	return bargaining.NewLimits(plan.ProductLimit, count, plan.Slug, plan.Name), nil
}

func (l *Ledger) resolvePlan(ctx context.Context, tx pgx.Tx, userID int64) *membership.Plan {
	var (
		active *membership.UserMembership
		err    error
	)
	if tx != nil {
		active, err = l.memberships.FindActiveByUserWithTx(ctx, tx, userID)
	} else {
		active, err = l.memberships.FindActiveByUser(ctx, userID)
	}

	switch {
	case err == nil:
		plan, planErr := l.plans.FindByID(ctx, active.PlanID)
		if planErr == nil {
			return plan
		}
		l.logger.Warn("active membership plan lookup failed, using free tier",
			zap.Int64("user_id", userID),
			zap.Int64("plan_id", active.PlanID),
			zap.Error(planErr),
		)
		return l.freePlan(ctx, userID, true)
	case errors.Is(err, xerrors.ErrNotFound):
		return l.freePlan(ctx, userID, false)
	default:
		l.logger.Warn("active membership lookup failed, using free tier",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return l.freePlan(ctx, userID, true)
	}
}

// freePlan loads the free tier. When degraded, an unlimited free tier is
// capped at the configured limit: a failed lookup must not widen the quota.
func (l *Ledger) freePlan(ctx context.Context, userID int64, degraded bool) *membership.Plan {
	plan, err := l.plans.FindBySlug(ctx, membership.FreePlanSlug)
	if err == nil {
		if degraded && plan.IsUnlimited() {
			capped := *plan
			capped.ProductLimit = l.freeProductLimit
			return &capped
		}
		return plan
	}

	l.logger.Warn("free plan lookup failed, using configured limit",
		zap.Int64("user_id", userID),
		zap.Int("product_limit", l.freeProductLimit),
		zap.Error(err),
	)
	return &membership.Plan{
		Slug:         membership.FreePlanSlug,
		Name:         "Free",
		ProductLimit: l.freeProductLimit,
	}
}

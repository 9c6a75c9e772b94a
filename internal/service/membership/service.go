// internal/service/membership/service.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bargain-service/internal/domain/membership"
	"bargain-service/internal/domain/store"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type PlanStore interface {
	FindByID(ctx context.Context, id int64) (*membership.Plan, error)
	FindBySlug(ctx context.Context, slug string) (*membership.Plan, error)
	List(ctx context.Context) ([]*membership.Plan, error)
}

type MembershipStore interface {
	FindActiveByUser(ctx context.Context, userID int64) (*membership.UserMembership, error)
	FindActiveByUserWithTx(ctx context.Context, tx pgx.Tx, userID int64) (*membership.UserMembership, error)
	FindPendingWithTx(ctx context.Context, tx pgx.Tx, userID, planID int64) (*membership.UserMembership, error)
	CreateWithTx(ctx context.Context, tx pgx.Tx, m *membership.UserMembership) error
	RefreshPendingWithTx(ctx context.Context, tx pgx.Tx, id int64, sessionID, chargeID string) error
	ActivateWithTx(ctx context.Context, tx pgx.Tx, id int64, a membership.Activation) error
	CancelActiveWithTx(ctx context.Context, tx pgx.Tx, userID int64, at time.Time) (*membership.UserMembership, error)
	SupersedePendingWithTx(ctx context.Context, tx pgx.Tx, userID int64, at time.Time) (int, error)
	FindBySessionWithTx(ctx context.Context, tx pgx.Tx, userID int64, sessionID string) (*membership.UserMembership, error)
}

type AuditStore interface {
	AppendHistoryWithTx(ctx context.Context, tx pgx.Tx, e *membership.HistoryEntry) error
	AppendEventWithTx(ctx context.Context, tx pgx.Tx, e *membership.BillingEvent) error
	AppendEvent(ctx context.Context, e *membership.BillingEvent) error
	ListHistory(ctx context.Context, userID int64, limit int) ([]*membership.HistoryEntry, error)
	ListEvents(ctx context.Context, userID int64, limit int) ([]*membership.BillingEvent, error)
}

type StoreLookup interface {
	FindByUser(ctx context.Context, userID int64) (*store.Store, error)
}

type BillingGateway interface {
	InitiateCharge(ctx context.Context, plan *membership.Plan, st *store.Store, returnURL string) (*membership.Charge, error)
	FetchChargeDetails(ctx context.Context, chargeID string, st *store.Store) (*membership.ChargeDetails, error)
}

type ReturnURLBuilder interface {
	Build(userID, planID int64, sessionID string) (string, error)
}

// TxRunner runs fn in a transaction serialized per user.
type TxRunner interface {
	WithUserTx(ctx context.Context, userID int64, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type MembershipService struct {
	plans       PlanStore
	memberships MembershipStore
	audit       AuditStore
	stores      StoreLookup
	gateway     BillingGateway
	returnURLs  ReturnURLBuilder
	tx          TxRunner
	logger      *zap.Logger
	now         func() time.Time
}

func NewMembershipService(
	plans PlanStore,
	memberships MembershipStore,
	audit AuditStore,
	stores StoreLookup,
	gateway BillingGateway,
	returnURLs ReturnURLBuilder,
	tx TxRunner,
	logger *zap.Logger,
) *MembershipService {
	return &MembershipService{
		plans:       plans,
		memberships: memberships,
		audit:       audit,
		stores:      stores,
		gateway:     gateway,
		returnURLs:  returnURLs,
		tx:          tx,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ========== Reads ==========

// ListPlans returns every plan ordered by price
func (s *MembershipService) ListPlans(ctx context.Context) ([]*membership.Plan, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, xerrors.Persistence(fmt.Errorf("failed to list plans: %w", err))
	}
	return plans, nil
}

// GetCurrentMembership returns the active membership and its plan. Users
// without one are reported on the free plan.
func (s *MembershipService) GetCurrentMembership(ctx context.Context, userID int64) (*membership.MembershipOverview, error) {
	active, err := s.memberships.FindActiveByUser(ctx, userID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.Persistence(fmt.Errorf("failed to load active membership: %w", err))
	}

	if active != nil {
		plan, err := s.loadPlan(ctx, active.PlanID)
		if err != nil {
			return nil, err
		}
		return &membership.MembershipOverview{Membership: active, Plan: plan}, nil
	}

	free, err := s.freePlan(ctx)
	if err != nil {
		return nil, err
	}
	return &membership.MembershipOverview{Plan: free}, nil
}

// ListHistory returns the user's plan changes, newest first
func (s *MembershipService) ListHistory(ctx context.Context, userID int64, limit int) ([]*membership.HistoryEntry, error) {
	entries, err := s.audit.ListHistory(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, xerrors.Persistence(fmt.Errorf("failed to list membership history: %w", err))
	}
	return entries, nil
}

// ListBillingEvents returns the user's billing audit trail, newest first
func (s *MembershipService) ListBillingEvents(ctx context.Context, userID int64, limit int) ([]*membership.BillingEvent, error) {
	events, err := s.audit.ListEvents(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, xerrors.Persistence(fmt.Errorf("failed to list billing events: %w", err))
	}
	return events, nil
}

// ========== Helpers ==========

func (s *MembershipService) loadPlan(ctx context.Context, planID int64) (*membership.Plan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.PlanNotFound(err)
	}
	if err != nil {
		return nil, xerrors.Persistence(fmt.Errorf("failed to load plan %d: %w", planID, err))
	}
	return plan, nil
}

func (s *MembershipService) freePlan(ctx context.Context) (*membership.Plan, error) {
	plan, err := s.plans.FindBySlug(ctx, membership.FreePlanSlug)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.PlanNotFound(err)
	}
	if err != nil {
		return nil, xerrors.Persistence(fmt.Errorf("failed to load free plan: %w", err))
	}
	return plan, nil
}

// planOf resolves the plan of a membership being replaced. It only feeds
// the history change type, so a failed lookup is logged and treated as unknown.
func (s *MembershipService) planOf(ctx context.Context, m *membership.UserMembership) *membership.Plan {
	if m == nil {
		return nil
	}
	plan, err := s.plans.FindByID(ctx, m.PlanID)
	if err != nil {
		s.logger.Warn("failed to load previous plan",
			zap.Int64("user_id", m.UserID),
			zap.Int64("plan_id", m.PlanID),
			zap.Error(err),
		)
		return nil
	}
	return plan
}

func (s *MembershipService) findActiveWithTx(ctx context.Context, tx pgx.Tx, userID int64) (*membership.UserMembership, error) {
	active, err := s.memberships.FindActiveByUserWithTx(ctx, tx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, nil
	}
	return active, err
}

// appendEventBestEffort writes an audit event outside any transaction.
// Losing one of these never blocks the user-facing operation.
func (s *MembershipService) appendEventBestEffort(ctx context.Context, e *membership.BillingEvent) {
	if err := s.audit.AppendEvent(ctx, e); err != nil {
		s.logger.Warn("failed to append billing event",
			zap.Int64("user_id", e.UserID),
			zap.String("event_type", string(e.EventType)),
			zap.Error(err),
		)
	}
}

func newSessionID() string {
	return ulid.Make().String()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func int64Ptr(v int64) *int64 {
	return &v
}

func planIDOf(m *membership.UserMembership) *int64 {
	if m == nil {
		return nil
	}
	return int64Ptr(m.PlanID)
}

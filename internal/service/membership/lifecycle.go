// internal/service/membership/lifecycle.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bargain-service/internal/domain/membership"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ConfirmInput is what the provider's redirect carries back.
type ConfirmInput struct {
	UserID    int64
	PlanID    int64
	ChargeID  string
	SessionID string
}

// ChangePlan moves the user to a plan. Free plans switch within one
// transaction; paid plans start a charge and return the provider's
// confirmation URL, leaving a pending membership behind.
func (s *MembershipService) ChangePlan(ctx context.Context, userID int64, req *membership.ChangePlanRequest) (*membership.ChangePlanResult, error) {
	plan, err := s.loadPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	if plan.IsFree() {
		return s.switchToFree(ctx, userID, plan, req.Reason)
	}
	return s.startPaidChange(ctx, userID, plan, req.Reason)
}

func (s *MembershipService) switchToFree(ctx context.Context, userID int64, plan *membership.Plan, reason string) (*membership.ChangePlanResult, error) {
	now := s.now()
	var result, previous *membership.UserMembership
	changed := false

	err := s.tx.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.supersedePendingWithTx(ctx, tx, userID, now); err != nil {
			return err
		}

		current, err := s.findActiveWithTx(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("failed to load active membership: %w", err)
		}
		if current != nil && current.PlanID == plan.ID {
			result = current
			return nil
		}

		result, previous, err = s.replaceActiveWithTx(ctx, tx, userID, plan, reason, nil, now)
		if err != nil {
			return err
		}
		changed = true

		return s.audit.AppendEventWithTx(ctx, tx, &membership.BillingEvent{
			UserID:    userID,
			EventType: membership.EventChanged,
			PlanID:    int64Ptr(plan.ID),
			Status:    string(membership.StatusActive),
			Details: map[string]interface{}{
				"reason":        reason,
				"membership_id": result.ID,
				"from_plan_id":  planIDOf(previous),
			},
		})
	})
	if err != nil {
		s.logger.Error("failed to switch to free plan",
			zap.Int64("user_id", userID),
			zap.Int64("plan_id", plan.ID),
			zap.Error(err),
		)
		return nil, xerrors.Classify(err)
	}

	if changed {
		s.logger.Info("membership changed",
			zap.Int64("user_id", userID),
			zap.Int64("membership_id", result.ID),
			zap.Int64("plan_id", plan.ID),
			zap.Int64p("from_plan_id", planIDOf(previous)),
		)
	}

	return &membership.ChangePlanResult{Completed: true, Membership: result}, nil
}

func (s *MembershipService) startPaidChange(ctx context.Context, userID int64, plan *membership.Plan, reason string) (*membership.ChangePlanResult, error) {
	st, err := s.stores.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.Persistence(fmt.Errorf("failed to load store: %w", err))
	}
	if !st.Connected() {
		return nil, xerrors.StoreNotConnected()
	}

	current, err := s.memberships.FindActiveByUser(ctx, userID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.Persistence(fmt.Errorf("failed to load active membership: %w", err))
	}
	if current != nil && current.PlanID == plan.ID {
		return &membership.ChangePlanResult{Completed: true, Membership: current}, nil
	}

	sessionID := newSessionID()
	s.appendEventBestEffort(ctx, &membership.BillingEvent{
		UserID:    userID,
		EventType: membership.EventChangeInitiated,
		PlanID:    int64Ptr(plan.ID),
		Status:    "initiated",
		SessionID: &sessionID,
		Details: map[string]interface{}{
			"reason":       reason,
			"from_plan_id": planIDOf(current),
		},
	})

	returnURL, err := s.returnURLs.Build(userID, plan.ID, sessionID)
	if err != nil {
		return nil, xerrors.Gateway("the billing request could not be prepared", err)
	}

	charge, err := s.gateway.InitiateCharge(ctx, plan, st, returnURL)
	if err != nil {
		s.logger.Error("failed to initiate charge",
			zap.Int64("user_id", userID),
			zap.Int64("plan_id", plan.ID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, xerrors.Gateway("the billing provider could not start the charge, please try again", err)
	}

	var pending *membership.UserMembership
	reused := false

	err = s.tx.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		existing, err := s.memberships.FindPendingWithTx(ctx, tx, userID, plan.ID)
		switch {
		case err == nil:
			if err := s.memberships.RefreshPendingWithTx(ctx, tx, existing.ID, sessionID, charge.ChargeID); err != nil {
				return err
			}
			existing.SessionID = &sessionID
			existing.ExternalChargeID = optional(charge.ChargeID)
			pending = existing
			reused = true
		case errors.Is(err, xerrors.ErrNotFound):
			pending = &membership.UserMembership{
				UserID:           userID,
				PlanID:           plan.ID,
				Status:           membership.StatusPending,
				StartDate:        s.now(),
				BillingStatus:    optional(charge.Status),
				ExternalChargeID: optional(charge.ChargeID),
				SessionID:        &sessionID,
			}
			if err := s.memberships.CreateWithTx(ctx, tx, pending); err != nil {
				return err
			}
		default:
			return fmt.Errorf("failed to load pending membership: %w", err)
		}

		if err := s.audit.AppendEventWithTx(ctx, tx, &membership.BillingEvent{
			UserID:    userID,
			EventType: membership.EventPendingCreated,
			PlanID:    int64Ptr(plan.ID),
			Status:    string(membership.StatusPending),
			SessionID: &sessionID,
			Details: map[string]interface{}{
				"membership_id": pending.ID,
				"reused":        reused,
			},
		}); err != nil {
			return err
		}

		return s.audit.AppendEventWithTx(ctx, tx, &membership.BillingEvent{
			UserID:    userID,
			EventType: membership.EventChargeCreated,
			ChargeID:  optional(charge.ChargeID),
			PlanID:    int64Ptr(plan.ID),
			Status:    charge.Status,
			SessionID: &sessionID,
			Details: map[string]interface{}{
				"confirmation_url": charge.ConfirmationURL,
			},
		})
	})
	if err != nil {
		s.logger.Error("failed to record pending membership",
			zap.Int64("user_id", userID),
			zap.Int64("plan_id", plan.ID),
			zap.String("charge_id", charge.ChargeID),
			zap.Error(err),
		)
		return nil, xerrors.Classify(err)
	}

	s.logger.Info("paid plan change pending confirmation",
		zap.Int64("user_id", userID),
		zap.Int64("membership_id", pending.ID),
		zap.Int64("plan_id", plan.ID),
		zap.String("charge_id", charge.ChargeID),
		zap.Bool("reused_pending", reused),
	)

	return &membership.ChangePlanResult{
		Completed:       false,
		Membership:      pending,
		ConfirmationURL: charge.ConfirmationURL,
		SessionID:       sessionID,
	}, nil
}

// ConfirmBilling finishes a paid plan change after the merchant approved the
// charge. Provider details are optional enrichment: when they cannot be
// fetched the membership is still activated.
func (s *MembershipService) ConfirmBilling(ctx context.Context, in ConfirmInput) (*membership.UserMembership, error) {
	plan, err := s.loadPlan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}

	details := s.fetchChargeDetails(ctx, in.UserID, in.ChargeID)
	if details != nil && chargeRejected(details.Status) {
		s.appendEventBestEffort(ctx, &membership.BillingEvent{
			UserID:    in.UserID,
			EventType: membership.EventChargeRejected,
			ChargeID:  optional(in.ChargeID),
			PlanID:    int64Ptr(plan.ID),
			Status:    details.Status,
			SessionID: optional(in.SessionID),
			Details:   details.Raw,
		})
		return nil, xerrors.Gateway("the charge was not approved", fmt.Errorf("charge %s is %s", in.ChargeID, details.Status))
	}

	now := s.now()
	var result *membership.UserMembership
	replay := false

	err = s.tx.WithUserTx(ctx, in.UserID, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.findActiveWithTx(ctx, tx, in.UserID)
		if err != nil {
			return fmt.Errorf("failed to load active membership: %w", err)
		}
		if isSameCharge(current, plan.ID, in.ChargeID) {
			result = current
			replay = true
			return nil
		}

		pending, err := s.memberships.FindPendingWithTx(ctx, tx, in.UserID, plan.ID)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return fmt.Errorf("failed to load pending membership: %w", err)
		}

		if pending == nil {
			// Already on the plan with nothing left to confirm.
			if current != nil && current.PlanID == plan.ID {
				result = current
				replay = true
				return nil
			}
			if err := s.rejectSupersededWithTx(ctx, tx, in); err != nil {
				return err
			}
		}

		previous, err := s.memberships.CancelActiveWithTx(ctx, tx, in.UserID, now)
		if err != nil {
			return err
		}

		activation := buildActivation(now, in, details)

		if pending == nil {
			s.logger.Warn("no pending membership for confirmed charge, creating one",
				zap.Int64("user_id", in.UserID),
				zap.Int64("plan_id", plan.ID),
				zap.String("charge_id", in.ChargeID),
			)
			result = &membership.UserMembership{
				UserID:    in.UserID,
				PlanID:    plan.ID,
				Status:    membership.StatusActive,
				StartDate: now,
			}
			applyActivation(result, activation)
			if err := s.memberships.CreateWithTx(ctx, tx, result); err != nil {
				return err
			}
		} else {
			if !membership.CanTransition(pending.Status, membership.StatusActive) {
				return fmt.Errorf("membership %d cannot go from %s to active", pending.ID, pending.Status)
			}
			if in.SessionID != "" && pending.SessionID != nil && *pending.SessionID != in.SessionID {
				s.logger.Warn("confirmation session differs from pending attempt",
					zap.Int64("user_id", in.UserID),
					zap.Int64("membership_id", pending.ID),
					zap.String("session_id", in.SessionID),
					zap.String("pending_session_id", *pending.SessionID),
				)
			}
			if err := s.memberships.ActivateWithTx(ctx, tx, pending.ID, activation); err != nil {
				return err
			}
			pending.Status = membership.StatusActive
			applyActivation(pending, activation)
			result = pending
		}

		if err := s.supersedePendingWithTx(ctx, tx, in.UserID, now); err != nil {
			return err
		}

		if err := s.audit.AppendHistoryWithTx(ctx, tx, &membership.HistoryEntry{
			UserID:     in.UserID,
			FromPlanID: planIDOf(previous),
			ToPlanID:   plan.ID,
			ChangeDate: now,
			ChangeType: membership.ChangeTypeFor(s.planOf(ctx, previous), plan),
		}); err != nil {
			return err
		}

		return s.audit.AppendEventWithTx(ctx, tx, &membership.BillingEvent{
			UserID:    in.UserID,
			EventType: membership.EventBillingConfirmed,
			ChargeID:  optional(in.ChargeID),
			PlanID:    int64Ptr(plan.ID),
			Status:    string(membership.StatusActive),
			SessionID: optional(in.SessionID),
			Details: map[string]interface{}{
				"membership_id":   result.ID,
				"from_plan_id":    planIDOf(previous),
				"details_fetched": details != nil,
			},
		})
	})
	if err != nil {
		s.logger.Error("failed to confirm billing",
			zap.Int64("user_id", in.UserID),
			zap.Int64("plan_id", plan.ID),
			zap.String("charge_id", in.ChargeID),
			zap.Error(err),
		)
		return nil, xerrors.Classify(err)
	}

	if replay {
		s.logger.Info("billing confirmation replayed",
			zap.Int64("user_id", in.UserID),
			zap.String("charge_id", in.ChargeID),
		)
		return result, nil
	}

	s.logger.Info("billing confirmed",
		zap.Int64("user_id", in.UserID),
		zap.Int64("membership_id", result.ID),
		zap.Int64("plan_id", plan.ID),
		zap.String("charge_id", in.ChargeID),
	)
	return result, nil
}

// CancelBilling drops the user back to the free plan. The recurring charge at
// the provider is left as it is; only local state changes.
func (s *MembershipService) CancelBilling(ctx context.Context, userID int64, reason string) (*membership.UserMembership, error) {
	free, err := s.freePlan(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var result, previous *membership.UserMembership

	err = s.tx.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.supersedePendingWithTx(ctx, tx, userID, now); err != nil {
			return err
		}

		current, err := s.findActiveWithTx(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("failed to load active membership: %w", err)
		}
		if current == nil || current.PlanID == free.ID {
			result = current
			return nil
		}

		downgrade := membership.ChangeDowngrade
		result, previous, err = s.replaceActiveWithTx(ctx, tx, userID, free, reason, &downgrade, now)
		if err != nil {
			return err
		}

		return s.audit.AppendEventWithTx(ctx, tx, &membership.BillingEvent{
			UserID:    userID,
			EventType: membership.EventCancelled,
			ChargeID:  previous.ExternalChargeID,
			PlanID:    int64Ptr(previous.PlanID),
			Status:    string(membership.StatusCancelled),
			SessionID: previous.SessionID,
			Details: map[string]interface{}{
				"reason":                    reason,
				"cancelled_membership_id":   previous.ID,
				"fallback_membership_id":    result.ID,
				"provider_charge_cancelled": false,
			},
		})
	})
	if err != nil {
		s.logger.Error("failed to cancel billing",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil, xerrors.Classify(err)
	}

	if previous != nil {
		s.logger.Warn("membership cancelled locally, provider charge left untouched",
			zap.Int64("user_id", userID),
			zap.Int64("cancelled_membership_id", previous.ID),
			zap.Stringp("charge_id", previous.ExternalChargeID),
		)
	}

	return result, nil
}

// replaceActiveWithTx cancels whatever is active and activates plan in its
// place, recording the history entry. A nil changeType is derived from prices.
func (s *MembershipService) replaceActiveWithTx(
	ctx context.Context,
	tx pgx.Tx,
	userID int64,
	plan *membership.Plan,
	reason string,
	changeType *membership.ChangeType,
	now time.Time,
) (*membership.UserMembership, *membership.UserMembership, error) {
	previous, err := s.memberships.CancelActiveWithTx(ctx, tx, userID, now)
	if err != nil {
		return nil, nil, err
	}

	next := &membership.UserMembership{
		UserID:    userID,
		PlanID:    plan.ID,
		Status:    membership.StatusActive,
		StartDate: now,
	}
	if err := s.memberships.CreateWithTx(ctx, tx, next); err != nil {
		return nil, nil, err
	}

	kind := membership.ChangeTypeFor(s.planOf(ctx, previous), plan)
	if changeType != nil {
		kind = *changeType
	}

	if err := s.audit.AppendHistoryWithTx(ctx, tx, &membership.HistoryEntry{
		UserID:     userID,
		FromPlanID: planIDOf(previous),
		ToPlanID:   plan.ID,
		ChangeDate: now,
		Reason:     optional(reason),
		ChangeType: kind,
	}); err != nil {
		return nil, nil, err
	}

	return next, previous, nil
}

// supersedePendingWithTx cancels the user's unconfirmed paid attempts.
func (s *MembershipService) supersedePendingWithTx(ctx context.Context, tx pgx.Tx, userID int64, now time.Time) error {
	n, err := s.memberships.SupersedePendingWithTx(ctx, tx, userID, now)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("superseded pending memberships",
			zap.Int64("user_id", userID),
			zap.Int("count", n),
		)
	}
	return nil
}

// rejectSupersededWithTx refuses a confirmation whose billing session belongs
// to an attempt that was superseded or has already ended.
func (s *MembershipService) rejectSupersededWithTx(ctx context.Context, tx pgx.Tx, in ConfirmInput) error {
	if in.SessionID == "" {
		return nil
	}
	row, err := s.memberships.FindBySessionWithTx(ctx, tx, in.UserID, in.SessionID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load membership for session: %w", err)
	}
	if row.Status == membership.StatusCancelled {
		return xerrors.InvalidInput("this confirmation link is no longer valid, start the plan change again", nil)
	}
	return nil
}

func (s *MembershipService) fetchChargeDetails(ctx context.Context, userID int64, chargeID string) *membership.ChargeDetails {
	if chargeID == "" {
		return nil
	}

	st, err := s.stores.FindByUser(ctx, userID)
	if err != nil || !st.Connected() {
		s.logger.Warn("cannot fetch charge details without a connected store",
			zap.Int64("user_id", userID),
			zap.String("charge_id", chargeID),
			zap.Error(err),
		)
		return nil
	}

	details, err := s.gateway.FetchChargeDetails(ctx, chargeID, st)
	if err != nil {
		s.logger.Warn("failed to fetch charge details, confirming without them",
			zap.Int64("user_id", userID),
			zap.String("charge_id", chargeID),
			zap.Error(err),
		)
		return nil
	}
	return details
}

func buildActivation(now time.Time, in ConfirmInput, details *membership.ChargeDetails) membership.Activation {
	a := membership.Activation{
		StartDate: now,
		ChargeID:  optional(in.ChargeID),
		SessionID: optional(in.SessionID),
	}
	if details != nil {
		a.NextBillingDate = details.BillingOn
		a.TrialEndDate = details.TrialEndsOn
		a.BillingStatus = optional(details.Status)
		a.BillingDetails = details.Raw
	}
	return a
}

// applyActivation mirrors ActivateWithTx on the in-memory row.
func applyActivation(m *membership.UserMembership, a membership.Activation) {
	m.StartDate = a.StartDate
	m.EndDate = nil
	if a.ChargeID != nil {
		m.ExternalChargeID = a.ChargeID
	}
	if a.SessionID != nil {
		m.SessionID = a.SessionID
	}
	if a.NextBillingDate != nil {
		m.NextBillingDate = a.NextBillingDate
	}
	if a.TrialEndDate != nil {
		m.TrialEndDate = a.TrialEndDate
	}
	if a.BillingStatus != nil {
		m.BillingStatus = a.BillingStatus
	}
	if len(a.BillingDetails) > 0 {
		m.BillingDetails = a.BillingDetails
	}
}

func isSameCharge(current *membership.UserMembership, planID int64, chargeID string) bool {
	return current != nil &&
		chargeID != "" &&
		current.PlanID == planID &&
		current.ExternalChargeID != nil &&
		*current.ExternalChargeID == chargeID
}

func chargeRejected(status string) bool {
	switch status {
	case "declined", "expired", "cancelled":
		return true
	default:
		return false
	}
}

// internal/repository/postgres/user_membership_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bargain-service/internal/domain/membership"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserMembershipRepository struct {
	db *pgxpool.Pool
}

func NewUserMembershipRepository(db *pgxpool.Pool) *UserMembershipRepository {
	return &UserMembershipRepository{db: db}
}

const membershipColumns = `
	id, user_id, plan_id, status, start_date, end_date, next_billing_date, trial_end_date,
	billing_status, billing_details, external_charge_id, session_id, created_at, updated_at`

// CreateWithTx creates a membership row within a transaction
func (r *UserMembershipRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, m *membership.UserMembership) error {
	query := `
		INSERT INTO user_memberships (
			user_id, plan_id, status, start_date, end_date, next_billing_date, trial_end_date,
			billing_status, billing_details, external_charge_id, session_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	details, err := marshalJSON(m.BillingDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal billing details: %w", err)
	}

	err = tx.QueryRow(
		ctx, query,
		m.UserID, m.PlanID, m.Status, m.StartDate, m.EndDate, m.NextBillingDate, m.TrialEndDate,
		m.BillingStatus, details, m.ExternalChargeID, m.SessionID,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to create membership: %w", xerrors.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	return nil
}

// FindActiveByUser retrieves the active membership outside a transaction.
// Use it for display only; decisions read through FindActiveByUserWithTx.
func (r *UserMembershipRepository) FindActiveByUser(ctx context.Context, userID int64) (*membership.UserMembership, error) {
	return r.findActive(ctx, r.db, userID)
}

// FindActiveByUserWithTx retrieves the active membership within a transaction
func (r *UserMembershipRepository) FindActiveByUserWithTx(ctx context.Context, tx pgx.Tx, userID int64) (*membership.UserMembership, error) {
	return r.findActive(ctx, tx, userID)
}

func (r *UserMembershipRepository) findActive(ctx context.Context, q querier, userID int64) (*membership.UserMembership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM user_memberships
		WHERE user_id = $1 AND status = 'active'
		LIMIT 1`

	m, err := scanMembership(q.QueryRow(ctx, query, userID))
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active membership: %w", err)
	}
	return m, nil
}

// FindPendingWithTx retrieves the pending attempt for a (user, plan) pair
func (r *UserMembershipRepository) FindPendingWithTx(ctx context.Context, tx pgx.Tx, userID, planID int64) (*membership.UserMembership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM user_memberships
		WHERE user_id = $1 AND plan_id = $2 AND status = 'pending'
		LIMIT 1
		FOR UPDATE`

	m, err := scanMembership(tx.QueryRow(ctx, query, userID, planID))
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending membership: %w", err)
	}
	return m, nil
}

// RefreshPendingWithTx re-tags a reused pending row with a new billing attempt
func (r *UserMembershipRepository) RefreshPendingWithTx(ctx context.Context, tx pgx.Tx, id int64, sessionID, chargeID string) error {
	query := `
		UPDATE user_memberships
		SET session_id = $2, external_charge_id = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := tx.Exec(ctx, query, id, sessionID, chargeID)
	if err != nil {
		return fmt.Errorf("failed to refresh pending membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ActivateWithTx promotes a pending row to active
func (r *UserMembershipRepository) ActivateWithTx(ctx context.Context, tx pgx.Tx, id int64, a membership.Activation) error {
	query := `
		UPDATE user_memberships
		SET status = 'active',
		    start_date = $2,
		    end_date = NULL,
		    external_charge_id = COALESCE($3, external_charge_id),
		    session_id = COALESCE($4, session_id),
		    next_billing_date = COALESCE($5, next_billing_date),
		    trial_end_date = COALESCE($6, trial_end_date),
		    billing_status = COALESCE($7, billing_status),
		    billing_details = COALESCE($8, billing_details),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	details, err := marshalJSON(a.BillingDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal billing details: %w", err)
	}

	result, err := tx.Exec(ctx, query,
		id, a.StartDate, a.ChargeID, a.SessionID,
		a.NextBillingDate, a.TrialEndDate, a.BillingStatus, details,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to activate membership: %w", xerrors.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to activate membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// CancelActiveWithTx cancels the user's active membership and returns it.
// It returns nil, nil when the user has nothing active.
func (r *UserMembershipRepository) CancelActiveWithTx(ctx context.Context, tx pgx.Tx, userID int64, at time.Time) (*membership.UserMembership, error) {
	query := `
		UPDATE user_memberships
		SET status = 'cancelled', end_date = $2, updated_at = NOW()
		WHERE user_id = $1 AND status = 'active'
		RETURNING ` + membershipColumns

	m, err := scanMembership(tx.QueryRow(ctx, query, userID, at))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel active membership: %w", err)
	}
	return m, nil
}

// SupersedePendingWithTx cancels every pending attempt of the user so that
// an old confirmation link can no longer activate it.
func (r *UserMembershipRepository) SupersedePendingWithTx(ctx context.Context, tx pgx.Tx, userID int64, at time.Time) (int, error) {
	query := `
		UPDATE user_memberships
		SET status = 'cancelled', end_date = $2, updated_at = NOW()
		WHERE user_id = $1 AND status = 'pending'
	`

	result, err := tx.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to supersede pending memberships: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// FindBySessionWithTx returns the latest row tagged with a billing session
func (r *UserMembershipRepository) FindBySessionWithTx(ctx context.Context, tx pgx.Tx, userID int64, sessionID string) (*membership.UserMembership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM user_memberships
		WHERE user_id = $1 AND session_id = $2
		ORDER BY id DESC
		LIMIT 1`

	m, err := scanMembership(tx.QueryRow(ctx, query, userID, sessionID))
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership by session: %w", err)
	}
	return m, nil
}

func scanMembership(row pgx.Row) (*membership.UserMembership, error) {
	var m membership.UserMembership
	var details []byte

	err := row.Scan(
		&m.ID, &m.UserID, &m.PlanID, &m.Status, &m.StartDate, &m.EndDate,
		&m.NextBillingDate, &m.TrialEndDate, &m.BillingStatus, &details,
		&m.ExternalChargeID, &m.SessionID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, &m.BillingDetails); err != nil {
			return nil, fmt.Errorf("failed to decode billing details: %w", err)
		}
	}
	return &m, nil
}

// marshalJSON returns nil for an empty map so the column keeps NULL/default.
func marshalJSON(v map[string]interface{}) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

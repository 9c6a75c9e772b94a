// internal/repository/postgres/membership_audit_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"bargain-service/internal/domain/membership"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipAuditRepository owns the append-only history and billing event logs.
type MembershipAuditRepository struct {
	db *pgxpool.Pool
}

func NewMembershipAuditRepository(db *pgxpool.Pool) *MembershipAuditRepository {
	return &MembershipAuditRepository{db: db}
}

// AppendHistoryWithTx records a committed plan change
func (r *MembershipAuditRepository) AppendHistoryWithTx(ctx context.Context, tx pgx.Tx, e *membership.HistoryEntry) error {
	query := `
		INSERT INTO membership_history (user_id, from_plan_id, to_plan_id, change_date, reason, change_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := tx.QueryRow(ctx, query,
		e.UserID, e.FromPlanID, e.ToPlanID, e.ChangeDate, e.Reason, e.ChangeType,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to append membership history: %w", err)
	}
	return nil
}

// AppendEventWithTx records a billing event as part of a larger transaction
func (r *MembershipAuditRepository) AppendEventWithTx(ctx context.Context, tx pgx.Tx, e *membership.BillingEvent) error {
	return r.appendEvent(ctx, tx, e)
}

// AppendEvent records a billing event on its own
func (r *MembershipAuditRepository) AppendEvent(ctx context.Context, e *membership.BillingEvent) error {
	return r.appendEvent(ctx, r.db, e)
}

func (r *MembershipAuditRepository) appendEvent(ctx context.Context, q querier, e *membership.BillingEvent) error {
	query := `
		INSERT INTO billing_events (user_id, event_type, charge_id, plan_id, status, session_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	details := e.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal event details: %w", err)
	}

	err = q.QueryRow(ctx, query,
		e.UserID, e.EventType, e.ChargeID, e.PlanID, e.Status, e.SessionID, detailsJSON,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append billing event: %w", err)
	}
	return nil
}

// ListHistory returns the newest history entries first
func (r *MembershipAuditRepository) ListHistory(ctx context.Context, userID int64, limit int) ([]*membership.HistoryEntry, error) {
	query := `
		SELECT id, user_id, from_plan_id, to_plan_id, change_date, reason, change_type
		FROM membership_history
		WHERE user_id = $1
		ORDER BY change_date DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership history: %w", err)
	}
	defer rows.Close()

	var entries []*membership.HistoryEntry
	for rows.Next() {
		var e membership.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.FromPlanID, &e.ToPlanID, &e.ChangeDate, &e.Reason, &e.ChangeType); err != nil {
			return nil, fmt.Errorf("failed to scan membership history: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ListEvents returns the newest billing events first
func (r *MembershipAuditRepository) ListEvents(ctx context.Context, userID int64, limit int) ([]*membership.BillingEvent, error) {
	query := `
		SELECT id, user_id, event_type, charge_id, plan_id, status, session_id, details, created_at
		FROM billing_events
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing events: %w", err)
	}
	defer rows.Close()

	var events []*membership.BillingEvent
	for rows.Next() {
		var e membership.BillingEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.ChargeID, &e.PlanID, &e.Status, &e.SessionID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan billing event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode billing event details: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

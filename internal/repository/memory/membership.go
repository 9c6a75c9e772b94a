// internal/repository/memory/membership.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bargain-service/internal/domain/membership"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type PlanRepository struct {
	s *Store
}

func (r *PlanRepository) FindByID(ctx context.Context, id int64) (*membership.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.plans {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *PlanRepository) FindBySlug(ctx context.Context, slug string) (*membership.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.plans {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

// List returns plans ordered by price
func (r *PlanRepository) List(ctx context.Context) ([]*membership.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	plans := make([]*membership.Plan, 0, len(r.s.plans))
	for _, p := range r.s.plans {
		cp := *p
		plans = append(plans, &cp)
	}
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Price < plans[j].Price })
	return plans, nil
}

type MembershipRepository struct {
	s *Store
}

// CreateWithTx enforces the same uniqueness as the partial indexes: one
// active row per user and one pending row per (user, plan).
func (r *MembershipRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, m *membership.UserMembership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.memberships[m.UserID] {
		if conflicts(existing, m.Status, m.PlanID) {
			return fmt.Errorf("failed to create membership: %w", xerrors.ErrDuplicateEntry)
		}
	}

	now := r.s.now()
	m.ID = r.s.id()
	m.CreatedAt = now
	m.UpdatedAt = now
	r.s.memberships[m.UserID] = append(r.s.memberships[m.UserID], copyMembership(m))
	return nil
}

func (r *MembershipRepository) FindActiveByUser(ctx context.Context, userID int64) (*membership.UserMembership, error) {
	return r.findActive(userID)
}

func (r *MembershipRepository) FindActiveByUserWithTx(ctx context.Context, tx pgx.Tx, userID int64) (*membership.UserMembership, error) {
	return r.findActive(userID)
}

func (r *MembershipRepository) findActive(userID int64) (*membership.UserMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.memberships[userID] {
		if m.Status == membership.StatusActive {
			return copyMembership(m), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *MembershipRepository) FindPendingWithTx(ctx context.Context, tx pgx.Tx, userID, planID int64) (*membership.UserMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.memberships[userID] {
		if m.Status == membership.StatusPending && m.PlanID == planID {
			return copyMembership(m), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *MembershipRepository) RefreshPendingWithTx(ctx context.Context, tx pgx.Tx, id int64, sessionID, chargeID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.byID(id)
	if m == nil || m.Status != membership.StatusPending {
		return xerrors.ErrNotFound
	}
	m.SessionID = &sessionID
	m.ExternalChargeID = nil
	if chargeID != "" {
		m.ExternalChargeID = &chargeID
	}
	m.UpdatedAt = r.s.now()
	return nil
}

func (r *MembershipRepository) ActivateWithTx(ctx context.Context, tx pgx.Tx, id int64, a membership.Activation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.byID(id)
	if m == nil || m.Status != membership.StatusPending {
		return xerrors.ErrNotFound
	}
	for _, other := range r.s.memberships[m.UserID] {
		if other.ID != id && other.Status == membership.StatusActive {
			return fmt.Errorf("failed to activate membership: %w", xerrors.ErrDuplicateEntry)
		}
	}

	m.Status = membership.StatusActive
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
		m.BillingDetails = copyDetails(a.BillingDetails)
	}
	m.UpdatedAt = r.s.now()
	return nil
}

// CancelActiveWithTx returns nil, nil when nothing is active.
func (r *MembershipRepository) CancelActiveWithTx(ctx context.Context, tx pgx.Tx, userID int64, at time.Time) (*membership.UserMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.memberships[userID] {
		if m.Status == membership.StatusActive {
			m.Status = membership.StatusCancelled
			end := at
			m.EndDate = &end
			m.UpdatedAt = r.s.now()
			return copyMembership(m), nil
		}
	}
	return nil, nil
}

// SupersedePendingWithTx cancels every pending row of the user.
func (r *MembershipRepository) SupersedePendingWithTx(ctx context.Context, tx pgx.Tx, userID int64, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, m := range r.s.memberships[userID] {
		if m.Status != membership.StatusPending {
			continue
		}
		m.Status = membership.StatusCancelled
		end := at
		m.EndDate = &end
		m.UpdatedAt = r.s.now()
		n++
	}
	return n, nil
}

func (r *MembershipRepository) FindBySessionWithTx(ctx context.Context, tx pgx.Tx, userID int64, sessionID string) (*membership.UserMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := r.s.memberships[userID]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].SessionID != nil && *rows[i].SessionID == sessionID {
			return copyMembership(rows[i]), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

// All returns every row of the user in creation order.
func (r *MembershipRepository) All(userID int64) []*membership.UserMembership {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyMemberships(r.s.memberships[userID])
}

// byID must be called with mu held.
func (r *MembershipRepository) byID(id int64) *membership.UserMembership {
	for _, rows := range r.s.memberships {
		for _, m := range rows {
			if m.ID == id {
				return m
			}
		}
	}
	return nil
}

func conflicts(existing *membership.UserMembership, status membership.Status, planID int64) bool {
	switch status {
	case membership.StatusActive:
		return existing.Status == membership.StatusActive
	case membership.StatusPending:
		return existing.Status == membership.StatusPending && existing.PlanID == planID
	default:
		return false
	}
}

type AuditRepository struct {
	s *Store
}

// AppendHistoryWithTx is buffered until the transaction commits.
func (r *AuditRepository) AppendHistoryWithTx(ctx context.Context, tx pgx.Tx, e *membership.HistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e.ID = r.s.id()
	if e.ChangeDate.IsZero() {
		e.ChangeDate = r.s.now()
	}
	cp := *e
	if state := txFrom(ctx); state != nil {
		state.history = append(state.history, &cp)
		return nil
	}
	r.s.history[e.UserID] = append(r.s.history[e.UserID], &cp)
	return nil
}

func (r *AuditRepository) AppendEventWithTx(ctx context.Context, tx pgx.Tx, e *membership.BillingEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := r.stamp(e)
	if state := txFrom(ctx); state != nil {
		state.events = append(state.events, cp)
		return nil
	}
	r.s.events[e.UserID] = append(r.s.events[e.UserID], cp)
	return nil
}

// AppendEvent writes immediately, even when called inside a transaction.
func (r *AuditRepository) AppendEvent(ctx context.Context, e *membership.BillingEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.events[e.UserID] = append(r.s.events[e.UserID], r.stamp(e))
	return nil
}

// stamp must be called with mu held.
func (r *AuditRepository) stamp(e *membership.BillingEvent) *membership.BillingEvent {
	e.ID = r.s.id()
	e.CreatedAt = r.s.now()
	cp := *e
	cp.Details = copyDetails(e.Details)
	return &cp
}

// ListHistory returns entries newest first
func (r *AuditRepository) ListHistory(ctx context.Context, userID int64, limit int) ([]*membership.HistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := r.s.history[userID]
	out := make([]*membership.HistoryEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *rows[i]
		out = append(out, &cp)
	}
	return out, nil
}

// ListEvents returns events newest first
func (r *AuditRepository) ListEvents(ctx context.Context, userID int64, limit int) ([]*membership.BillingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := r.s.events[userID]
	out := make([]*membership.BillingEvent, 0, len(rows))
	for i := len(rows) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *rows[i]
		cp.Details = copyDetails(rows[i].Details)
		out = append(out, &cp)
	}
	return out, nil
}

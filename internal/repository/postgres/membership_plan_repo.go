// internal/repository/postgres/membership_plan_repo.go
package postgres

import (
	"context"
	"fmt"

	"bargain-service/internal/domain/membership"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type MembershipPlanRepository struct {
	db *pgxpool.Pool
}

func NewMembershipPlanRepository(db *pgxpool.Pool) *MembershipPlanRepository {
	return &MembershipPlanRepository{db: db}
}

const planColumns = `id, slug, name, price::float8, product_limit, trial_days, features, created_at`

// FindByID retrieves a plan by ID
func (r *MembershipPlanRepository) FindByID(ctx context.Context, id int64) (*membership.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM membership_plans WHERE id = $1`

	plan, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership plan: %w", err)
	}
	return plan, nil
}

// FindBySlug retrieves a plan by its slug
func (r *MembershipPlanRepository) FindBySlug(ctx context.Context, slug string) (*membership.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM membership_plans WHERE slug = $1`

	plan, err := scanPlan(r.db.QueryRow(ctx, query, slug))
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership plan: %w", err)
	}
	return plan, nil
}

// List returns every plan ordered by price
func (r *MembershipPlanRepository) List(ctx context.Context) ([]*membership.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM membership_plans ORDER BY price ASC, id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership plans: %w", err)
	}
	defer rows.Close()

	var plans []*membership.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func scanPlan(row pgx.Row) (*membership.Plan, error) {
	var plan membership.Plan
	var features pq.StringArray

	err := row.Scan(
		&plan.ID, &plan.Slug, &plan.Name, &plan.Price,
		&plan.ProductLimit, &plan.TrialDays, &features, &plan.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	plan.Features = []string(features)
	if plan.Features == nil {
		plan.Features = []string{}
	}
	return &plan, nil
}

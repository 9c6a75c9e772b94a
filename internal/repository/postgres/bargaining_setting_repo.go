// internal/repository/postgres/bargaining_setting_repo.go
package postgres

import (
	"context"
	"fmt"

	"bargain-service/internal/domain/bargaining"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BargainingSettingRepository struct {
	db *pgxpool.Pool
}

func NewBargainingSettingRepository(db *pgxpool.Pool) *BargainingSettingRepository {
	return &BargainingSettingRepository{db: db}
}

const settingColumns = `
	id, user_id, product_id, variant_id, enabled, min_price::float8, original_price::float8,
	behavior, created_at, updated_at`

// UpsertWithTx writes a setting keyed on (user, product, variant). The price
// floor is clamped again here so no caller can store min_price > original_price.
func (r *BargainingSettingRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, s *bargaining.Setting) error {
	minPrice, err := bargaining.ClampMinPrice(bargaining.MinPriceSpec{
		Type:  bargaining.MinPriceFixed,
		Value: s.MinPrice,
	}, s.OriginalPrice)
	if err != nil {
		return err
	}
	s.MinPrice = minPrice

	query := `
		INSERT INTO bargaining_settings (user_id, product_id, variant_id, enabled, min_price, original_price, behavior)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, product_id, variant_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    min_price = EXCLUDED.min_price,
		    original_price = EXCLUDED.original_price,
		    behavior = EXCLUDED.behavior,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		s.UserID, s.ProductID, s.VariantID, s.Enabled, s.MinPrice, s.OriginalPrice, s.Behavior,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert bargaining setting: %w", err)
	}
	return nil
}

// DisableWithTx turns a setting off and returns it, or ErrNotFound when the
// variant was never configured.
func (r *BargainingSettingRepository) DisableWithTx(ctx context.Context, tx pgx.Tx, userID int64, productID, variantID string) (*bargaining.Setting, error) {
	query := `
		UPDATE bargaining_settings
		SET enabled = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND product_id = $2 AND variant_id = $3
		RETURNING ` + settingColumns

	s, err := scanSetting(tx.QueryRow(ctx, query, userID, productID, variantID))
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to disable bargaining setting: %w", err)
	}
	return s, nil
}

// EnabledProductsWithTx reports which of productIDs already have at least one
// enabled variant.
func (r *BargainingSettingRepository) EnabledProductsWithTx(ctx context.Context, tx pgx.Tx, userID int64, productIDs []string) (map[string]bool, error) {
	enabled := make(map[string]bool, len(productIDs))
	if len(productIDs) == 0 {
		return enabled, nil
	}

	query := `
		SELECT DISTINCT product_id
		FROM bargaining_settings
		WHERE user_id = $1 AND enabled AND product_id = ANY($2)
	`

	rows, err := tx.Query(ctx, query, userID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load enabled products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		if err := rows.Scan(&productID); err != nil {
			return nil, fmt.Errorf("failed to scan enabled product: %w", err)
		}
		enabled[productID] = true
	}
	return enabled, rows.Err()
}

// CountEnabledDistinctProducts counts products with at least one enabled variant
func (r *BargainingSettingRepository) CountEnabledDistinctProducts(ctx context.Context, userID int64) (int, error) {
	return r.countEnabled(ctx, r.db, userID)
}

// CountEnabledDistinctProductsWithTx is CountEnabledDistinctProducts inside a transaction
func (r *BargainingSettingRepository) CountEnabledDistinctProductsWithTx(ctx context.Context, tx pgx.Tx, userID int64) (int, error) {
	return r.countEnabled(ctx, tx, userID)
}

func (r *BargainingSettingRepository) countEnabled(ctx context.Context, q querier, userID int64) (int, error) {
	query := `SELECT COUNT(DISTINCT product_id) FROM bargaining_settings WHERE user_id = $1 AND enabled`

	var count int
	if err := q.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count enabled products: %w", err)
	}
	return count, nil
}

// ListByProducts returns the settings for the given products, or every
// setting of the user when productIDs is empty.
func (r *BargainingSettingRepository) ListByProducts(ctx context.Context, userID int64, productIDs []string) ([]*bargaining.Setting, error) {
	query := `SELECT ` + settingColumns + `
		FROM bargaining_settings
		WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR product_id = ANY($2))
		ORDER BY product_id, variant_id`

	if productIDs == nil {
		productIDs = []string{}
	}

	rows, err := r.db.Query(ctx, query, userID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list bargaining settings: %w", err)
	}
	defer rows.Close()

	var settings []*bargaining.Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bargaining setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func scanSetting(row pgx.Row) (*bargaining.Setting, error) {
	var s bargaining.Setting
	err := row.Scan(
		&s.ID, &s.UserID, &s.ProductID, &s.VariantID, &s.Enabled,
		&s.MinPrice, &s.OriginalPrice, &s.Behavior, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// internal/repository/postgres/storefront_repo.go
package postgres

import (
	"context"
	"fmt"

	"bargain-service/internal/domain/catalog"
	"bargain-service/internal/domain/store"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StorefrontRepository reads the store connection and the catalog snapshot
// maintained by the storefront installer and the catalog sync.
type StorefrontRepository struct {
	db *pgxpool.Pool
}

func NewStorefrontRepository(db *pgxpool.Pool) *StorefrontRepository {
	return &StorefrontRepository{db: db}
}

// FindByUser retrieves the user's store connection
func (r *StorefrontRepository) FindByUser(ctx context.Context, userID int64) (*store.Store, error) {
	query := `
		SELECT id, user_id, shop_domain, access_token, installed_at, uninstalled_at
		FROM stores
		WHERE user_id = $1
	`

	var s store.Store
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.ShopDomain, &s.AccessToken, &s.InstalledAt, &s.UninstalledAt,
	)
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find store: %w", err)
	}
	return &s, nil
}

const variantColumns = `user_id, product_id, variant_id, title, price::float8, inventory_quantity, updated_at`

// GetVariant retrieves one variant snapshot
func (r *StorefrontRepository) GetVariant(ctx context.Context, userID int64, productID, variantID string) (*catalog.Variant, error) {
	query := `SELECT ` + variantColumns + `
		FROM product_variants
		WHERE user_id = $1 AND product_id = $2 AND variant_id = $3`

	var v catalog.Variant
	err := r.db.QueryRow(ctx, query, userID, productID, variantID).Scan(
		&v.UserID, &v.ProductID, &v.VariantID, &v.Title, &v.Price, &v.InventoryQuantity, &v.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product variant: %w", err)
	}
	return &v, nil
}

// ListVariants returns every variant of a product
func (r *StorefrontRepository) ListVariants(ctx context.Context, userID int64, productID string) ([]*catalog.Variant, error) {
	query := `SELECT ` + variantColumns + `
		FROM product_variants
		WHERE user_id = $1 AND product_id = $2
		ORDER BY variant_id`

	rows, err := r.db.Query(ctx, query, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list product variants: %w", err)
	}
	defer rows.Close()

	var variants []*catalog.Variant
	for rows.Next() {
		var v catalog.Variant
		if err := rows.Scan(&v.UserID, &v.ProductID, &v.VariantID, &v.Title, &v.Price, &v.InventoryQuantity, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product variant: %w", err)
		}
		variants = append(variants, &v)
	}
	return variants, rows.Err()
}

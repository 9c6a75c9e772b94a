// internal/repository/memory/bargaining.go
package memory

import (
	"context"
	"sort"

	"bargain-service/internal/domain/bargaining"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type SettingRepository struct {
	s *Store
}

// UpsertWithTx re-clamps the floor the same way the postgres repository does.
func (r *SettingRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, in *bargaining.Setting) error {
	minPrice, err := bargaining.ClampMinPrice(bargaining.MinPriceSpec{
		Type:  bargaining.MinPriceFixed,
		Value: in.MinPrice,
	}, in.OriginalPrice)
	if err != nil {
		return err
	}
	in.MinPrice = minPrice

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := r.s.settings[in.UserID]
	if rows == nil {
		rows = make(map[settingKey]*bargaining.Setting)
		r.s.settings[in.UserID] = rows
	}

	now := r.s.now()
	key := settingKey{productID: in.ProductID, variantID: in.VariantID}
	if existing, ok := rows[key]; ok {
		in.ID = existing.ID
		in.CreatedAt = existing.CreatedAt
	} else {
		in.ID = r.s.id()
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	cp := *in
	rows[key] = &cp
	return nil
}

func (r *SettingRepository) DisableWithTx(ctx context.Context, tx pgx.Tx, userID int64, productID, variantID string) (*bargaining.Setting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.settings[userID][settingKey{productID: productID, variantID: variantID}]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	existing.Enabled = false
	existing.UpdatedAt = r.s.now()
	cp := *existing
	return &cp, nil
}

func (r *SettingRepository) EnabledProductsWithTx(ctx context.Context, tx pgx.Tx, userID int64, productIDs []string) (map[string]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	enabled := make(map[string]bool, len(productIDs))
	for key, setting := range r.s.settings[userID] {
		if setting.Enabled && wanted[key.productID] {
			enabled[key.productID] = true
		}
	}
	return enabled, nil
}

func (r *SettingRepository) CountEnabledDistinctProducts(ctx context.Context, userID int64) (int, error) {
	return r.countEnabled(userID), nil
}

func (r *SettingRepository) CountEnabledDistinctProductsWithTx(ctx context.Context, tx pgx.Tx, userID int64) (int, error) {
	return r.countEnabled(userID), nil
}

func (r *SettingRepository) countEnabled(userID int64) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	products := make(map[string]struct{})
	for key, setting := range r.s.settings[userID] {
		if setting.Enabled {
			products[key.productID] = struct{}{}
		}
	}
	return len(products)
}

// ListByProducts returns every setting of the user when productIDs is empty.
func (r *SettingRepository) ListByProducts(ctx context.Context, userID int64, productIDs []string) ([]*bargaining.Setting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	var out []*bargaining.Setting
	for key, setting := range r.s.settings[userID] {
		if len(wanted) > 0 && !wanted[key.productID] {
			continue
		}
		cp := *setting
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].VariantID < out[j].VariantID
	})
	return out, nil
}

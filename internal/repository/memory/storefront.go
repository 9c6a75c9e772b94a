// internal/repository/memory/storefront.go
package memory

import (
	"context"
	"sort"

	"bargain-service/internal/domain/catalog"
	"bargain-service/internal/domain/store"
	xerrors "bargain-service/internal/pkg/errors"
)

type StorefrontRepository struct {
	s *Store
}

func (r *StorefrontRepository) FindByUser(ctx context.Context, userID int64) (*store.Store, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.stores[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *StorefrontRepository) GetVariant(ctx context.Context, userID int64, productID, variantID string) (*catalog.Variant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, v := range r.s.variants[userID] {
		if v.ProductID == productID && v.VariantID == variantID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *StorefrontRepository) ListVariants(ctx context.Context, userID int64, productID string) ([]*catalog.Variant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*catalog.Variant
	for _, v := range r.s.variants[userID] {
		if v.ProductID == productID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

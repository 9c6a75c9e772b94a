// internal/service/bargaining/service.go
package bargaining

import (
	"context"
	"errors"
	"fmt"

	"bargain-service/internal/domain/bargaining"
	"bargain-service/internal/domain/catalog"
	xerrors "bargain-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	skipNoInventory  = "no_inventory"
	skipInvalidPrice = "invalid_price"
	skipNotFound     = "variant_not_found"
)

type SettingsStore interface {
	UpsertWithTx(ctx context.Context, tx pgx.Tx, s *bargaining.Setting) error
	DisableWithTx(ctx context.Context, tx pgx.Tx, userID int64, productID, variantID string) (*bargaining.Setting, error)
	EnabledProductsWithTx(ctx context.Context, tx pgx.Tx, userID int64, productIDs []string) (map[string]bool, error)
	CountEnabledDistinctProductsWithTx(ctx context.Context, tx pgx.Tx, userID int64) (int, error)
	ListByProducts(ctx context.Context, userID int64, productIDs []string) ([]*bargaining.Setting, error)
}

type QuotaLedger interface {
	GetLimits(ctx context.Context, userID int64) (bargaining.Limits, error)
	GetLimitsWithTx(ctx context.Context, tx pgx.Tx, userID int64) (bargaining.Limits, error)
}

// ProductSource reads the synced catalog snapshot.
type ProductSource interface {
	GetVariant(ctx context.Context, userID int64, productID, variantID string) (*catalog.Variant, error)
	ListVariants(ctx context.Context, userID int64, productID string) ([]*catalog.Variant, error)
}

type TxRunner interface {
	WithUserTx(ctx context.Context, userID int64, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type BargainingService struct {
	settings SettingsStore
	quota    QuotaLedger
	products ProductSource
	tx       TxRunner
	logger   *zap.Logger
}

func NewBargainingService(
	settings SettingsStore,
	quota QuotaLedger,
	products ProductSource,
	tx TxRunner,
	logger *zap.Logger,
) *BargainingService {
	return &BargainingService{
		settings: settings,
		quota:    quota,
		products: products,
		tx:       tx,
		logger:   logger,
	}
}

// GetLimits returns the user's current quota picture
func (s *BargainingService) GetLimits(ctx context.Context, userID int64) (bargaining.Limits, error) {
	return s.quota.GetLimits(ctx, userID)
}

// GetSettings returns stored settings for the given products, or all of them
func (s *BargainingService) GetSettings(ctx context.Context, userID int64, productIDs []string) ([]*bargaining.Setting, error) {
	settings, err := s.settings.ListByProducts(ctx, userID, productIDs)
	if err != nil {
		return nil, xerrors.Persistence(fmt.Errorf("failed to list bargaining settings: %w", err))
	}
	if settings == nil {
		settings = []*bargaining.Setting{}
	}
	return settings, nil
}

// EnableFromCatalog resolves price and inventory from the catalog snapshot
// and enables bargaining on the variant.
func (s *BargainingService) EnableFromCatalog(ctx context.Context, userID int64, req *bargaining.EnableRequest) (*bargaining.SettingResult, error) {
	behavior, err := bargaining.ParseBehavior(req.Behavior)
	if err != nil {
		return nil, xerrors.InvalidInput("behavior must be one of low, normal or high", err)
	}

	variant, err := s.products.GetVariant(ctx, userID, req.ProductID, req.VariantID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.InvalidInput("product variant not found", err)
	}
	if err != nil {
		return nil, xerrors.Persistence(fmt.Errorf("failed to load product variant: %w", err))
	}

	return s.Enable(ctx, userID, bargaining.EnableInput{
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		MinPrice:      bargaining.MinPriceSpec{Type: req.MinPriceType, Value: req.MinPriceValue},
		Behavior:      behavior,
		OriginalPrice: variant.Price,
		InventoryQty:  variant.InventoryQuantity,
	})
}

// Enable turns bargaining on for one variant. Only the first enabled variant
// of a product consumes quota.
func (s *BargainingService) Enable(ctx context.Context, userID int64, in bargaining.EnableInput) (*bargaining.SettingResult, error) {
	if in.InventoryQty <= 0 {
		return nil, xerrors.NoInventory(in.ProductID, in.VariantID)
	}

	minPrice, err := bargaining.ClampMinPrice(in.MinPrice, in.OriginalPrice)
	if err != nil {
		return nil, xerrors.InvalidPrice(err)
	}

	behavior := in.Behavior
	if behavior == "" {
		behavior = bargaining.BehaviorNormal
	}

	var result *bargaining.SettingResult
	err = s.tx.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		limits, err := s.quota.GetLimitsWithTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		enabled, err := s.settings.EnabledProductsWithTx(ctx, tx, userID, []string{in.ProductID})
		if err != nil {
			return err
		}

		alreadyCounted := enabled[in.ProductID]
		if !alreadyCounted && !limits.Allows(1) {
			return quotaExceeded(limits)
		}

		setting := &bargaining.Setting{
			UserID:        userID,
			ProductID:     in.ProductID,
			VariantID:     in.VariantID,
			Enabled:       true,
			MinPrice:      minPrice,
			OriginalPrice: in.OriginalPrice,
			Behavior:      behavior,
		}
		if err := s.settings.UpsertWithTx(ctx, tx, setting); err != nil {
			return upsertError(err)
		}

		if !alreadyCounted {
			limits = limits.WithEnabled(limits.CurrentlyEnabled + 1)
		}
		result = &bargaining.SettingResult{Setting: setting, Limits: limits}
		return nil
	})
	if err != nil {
		s.logFailure("enable bargaining", userID, err, zap.String("product_id", in.ProductID), zap.String("variant_id", in.VariantID))
		return nil, xerrors.Classify(err)
	}

	s.logger.Info("bargaining enabled",
		zap.Int64("user_id", userID),
		zap.String("product_id", in.ProductID),
		zap.String("variant_id", in.VariantID),
		zap.Float64("min_price", result.Setting.MinPrice),
		zap.Int("currently_enabled", result.Limits.CurrentlyEnabled),
	)
	return result, nil
}

// Disable turns bargaining off for one variant. It is never quota-checked and
// disabling a variant that was never configured succeeds with a nil setting.
func (s *BargainingService) Disable(ctx context.Context, userID int64, productID, variantID string) (*bargaining.SettingResult, error) {
	var result *bargaining.SettingResult
	err := s.tx.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		setting, err := s.settings.DisableWithTx(ctx, tx, userID, productID, variantID)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return err
		}

		limits, err := s.quota.GetLimitsWithTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		result = &bargaining.SettingResult{Setting: setting, Limits: limits}
		return nil
	})
	if err != nil {
		s.logFailure("disable bargaining", userID, err, zap.String("product_id", productID), zap.String("variant_id", variantID))
		return nil, xerrors.Classify(err)
	}

	s.logger.Info("bargaining disabled",
		zap.Int64("user_id", userID),
		zap.String("product_id", productID),
		zap.String("variant_id", variantID),
	)
	return result, nil
}

// BulkUpdate applies each selection's settings to its variants. Variants that
// cannot take the settings are skipped, not fatal. The quota is checked once,
// against the number of distinct products the batch newly enables; when that
// check fails nothing is written.
func (s *BargainingService) BulkUpdate(ctx context.Context, userID int64, req *bargaining.BulkUpdateRequest) (*bargaining.BulkUpdateResult, error) {
	plan, err := s.planBulk(ctx, userID, req.Selections)
	if err != nil {
		return nil, err
	}

	result := &bargaining.BulkUpdateResult{
		Updated: make([]bargaining.Setting, 0, len(plan.writes)+len(plan.disables)),
		Skipped: plan.skipped,
	}

	err = s.tx.WithUserTx(ctx, userID, func(ctx context.Context, tx pgx.Tx) error {
		limits, err := s.quota.GetLimitsWithTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		targets := enablingProducts(plan.writes)
		enabled, err := s.settings.EnabledProductsWithTx(ctx, tx, userID, targets)
		if err != nil {
			return err
		}

		delta := 0
		for _, productID := range targets {
			if !enabled[productID] {
				delta++
			}
		}
		if !limits.Allows(delta) {
			return quotaExceeded(limits)
		}

		for _, setting := range plan.writes {
			if err := s.settings.UpsertWithTx(ctx, tx, setting); err != nil {
				return upsertError(err)
			}
			result.Updated = append(result.Updated, *setting)
		}

		for _, key := range plan.disables {
			setting, err := s.settings.DisableWithTx(ctx, tx, userID, key.productID, key.variantID)
			if errors.Is(err, xerrors.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			result.Updated = append(result.Updated, *setting)
		}

		count, err := s.settings.CountEnabledDistinctProductsWithTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.Limits = limits.WithEnabled(count)
		return nil
	})
	if err != nil {
		s.logFailure("bulk update bargaining", userID, err, zap.Int("selections", len(req.Selections)))
		return nil, xerrors.Classify(err)
	}

	s.logger.Info("bargaining bulk update applied",
		zap.Int64("user_id", userID),
		zap.Int("updated", len(result.Updated)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("currently_enabled", result.Limits.CurrentlyEnabled),
	)
	return result, nil
}

type variantKey struct {
	productID string
	variantID string
}

type bulkPlan struct {
	writes   []*bargaining.Setting
	disables []variantKey
	skipped  []bargaining.SkippedVariant
}

// planBulk resolves every selection before the transaction starts. Enabling
// selections are priced against the catalog. Disabling selections only need
// the stored rows, so a variant whose price or listing changed can still be
// turned off.
func (s *BargainingService) planBulk(ctx context.Context, userID int64, selections []bargaining.Selection) (*bulkPlan, error) {
	plan := &bulkPlan{skipped: []bargaining.SkippedVariant{}}

	for _, sel := range selections {
		behavior, err := bargaining.ParseBehavior(sel.Settings.Behavior)
		if err != nil {
			return nil, xerrors.InvalidInput("behavior must be one of low, normal or high", err)
		}

		if !sel.Settings.Enabled {
			keys, err := s.disableTargets(ctx, userID, sel)
			if err != nil {
				return nil, err
			}
			plan.disables = append(plan.disables, keys...)
			continue
		}

		variants, err := s.products.ListVariants(ctx, userID, sel.ProductID)
		if err != nil {
			return nil, xerrors.Persistence(fmt.Errorf("failed to list variants of product %s: %w", sel.ProductID, err))
		}

		selected, missing := selectVariants(variants, sel.VariantIDs)
		for _, variantID := range missing {
			plan.skipped = append(plan.skipped, bargaining.SkippedVariant{ProductID: sel.ProductID, VariantID: variantID, Reason: skipNotFound})
		}

		spec := bargaining.MinPriceSpec{Type: sel.Settings.MinPriceType, Value: sel.Settings.MinPriceValue}
		for _, v := range selected {
			if v.InventoryQuantity <= 0 {
				s.logger.Info("skipping variant without inventory",
					zap.Int64("user_id", userID),
					zap.String("product_id", v.ProductID),
					zap.String("variant_id", v.VariantID),
				)
				plan.skipped = append(plan.skipped, bargaining.SkippedVariant{ProductID: v.ProductID, VariantID: v.VariantID, Reason: skipNoInventory})
				continue
			}

			minPrice, err := bargaining.ClampMinPrice(spec, v.Price)
			if err != nil {
				s.logger.Info("skipping variant with unusable price",
					zap.Int64("user_id", userID),
					zap.String("product_id", v.ProductID),
					zap.String("variant_id", v.VariantID),
					zap.Error(err),
				)
				plan.skipped = append(plan.skipped, bargaining.SkippedVariant{ProductID: v.ProductID, VariantID: v.VariantID, Reason: skipInvalidPrice})
				continue
			}

			plan.writes = append(plan.writes, &bargaining.Setting{
				UserID:        userID,
				ProductID:     v.ProductID,
				VariantID:     v.VariantID,
				Enabled:       true,
				MinPrice:      minPrice,
				OriginalPrice: v.Price,
				Behavior:      behavior,
			})
		}
	}
	return plan, nil
}

// disableTargets lists the variants a disabling selection names, or every
// stored variant of the product when it names none.
func (s *BargainingService) disableTargets(ctx context.Context, userID int64, sel bargaining.Selection) ([]variantKey, error) {
	var keys []variantKey
	if len(sel.VariantIDs) > 0 {
		seen := make(map[string]bool, len(sel.VariantIDs))
		for _, id := range sel.VariantIDs {
			if !seen[id] {
				seen[id] = true
				keys = append(keys, variantKey{productID: sel.ProductID, variantID: id})
			}
		}
		return keys, nil
	}

	stored, err := s.settings.ListByProducts(ctx, userID, []string{sel.ProductID})
	if err != nil {
		return nil, xerrors.Persistence(fmt.Errorf("failed to list settings of product %s: %w", sel.ProductID, err))
	}
	for _, setting := range stored {
		keys = append(keys, variantKey{productID: setting.ProductID, variantID: setting.VariantID})
	}
	return keys, nil
}

func (s *BargainingService) logFailure(op string, userID int64, err error, fields ...zap.Field) {
	fields = append([]zap.Field{zap.Int64("user_id", userID), zap.Error(err)}, fields...)
	if xerrors.KindOf(err) == xerrors.KindPersistence {
		s.logger.Error("failed to "+op, fields...)
		return
	}
	s.logger.Warn("rejected "+op, fields...)
}

// selectVariants keeps the requested variants in request order. An empty
// request selects all of them.
func selectVariants(variants []*catalog.Variant, wanted []string) ([]*catalog.Variant, []string) {
	if len(wanted) == 0 {
		return variants, nil
	}

	byID := make(map[string]*catalog.Variant, len(variants))
	for _, v := range variants {
		byID[v.VariantID] = v
	}

	var selected []*catalog.Variant
	var missing []string
	seen := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		if seen[id] {
			continue
		}
		seen[id] = true
		if v, ok := byID[id]; ok {
			selected = append(selected, v)
		} else {
			missing = append(missing, id)
		}
	}
	return selected, missing
}

func enablingProducts(writes []*bargaining.Setting) []string {
	seen := make(map[string]bool)
	var products []string
	for _, w := range writes {
		if w.Enabled && !seen[w.ProductID] {
			seen[w.ProductID] = true
			products = append(products, w.ProductID)
		}
	}
	return products
}

func quotaExceeded(limits bargaining.Limits) error {
	return xerrors.QuotaExceeded(fmt.Sprintf(
		"bargaining limit reached: the %s plan allows %d products and %d are enabled",
		limits.PlanName, limits.MaxProducts, limits.CurrentlyEnabled,
	))
}

func upsertError(err error) error {
	if errors.Is(err, bargaining.ErrInvalidPrice) {
		return xerrors.InvalidPrice(err)
	}
	return err
}

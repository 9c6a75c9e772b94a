package bargaining

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bargain-service/internal/domain/bargaining"
	"bargain-service/internal/domain/catalog"
	"bargain-service/internal/domain/membership"
	xerrors "bargain-service/internal/pkg/errors"
	"bargain-service/internal/repository/memory"
	"bargain-service/internal/service/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const userID int64 = 42

type fixture struct {
	db  *memory.Store
	svc *BargainingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := memory.NewStore()
	ledger := quota.NewLedger(db.Memberships(), db.Plans(), db.Settings(), 10, zap.NewNop())
	svc := NewBargainingService(db.Settings(), ledger, db.Storefront(), db, zap.NewNop())
	return &fixture{db: db, svc: svc}
}

// subscribe puts the user on a plan directly, bypassing billing.
func (f *fixture) subscribe(t *testing.T, slug string) {
	t.Helper()
	ctx := context.Background()
	plan, err := f.db.Plans().FindBySlug(ctx, slug)
	require.NoError(t, err)
	require.NoError(t, f.db.Memberships().CreateWithTx(ctx, nil, &membership.UserMembership{
		UserID: userID,
		PlanID: plan.ID,
		Status: membership.StatusActive,
	}))
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.db.Settings().CountEnabledDistinctProducts(context.Background(), userID)
	require.NoError(t, err)
	return n
}

func input(productID, variantID string, qty int) bargaining.EnableInput {
	return bargaining.EnableInput{
		ProductID:     productID,
		VariantID:     variantID,
		MinPrice:      bargaining.MinPriceSpec{Type: bargaining.MinPricePercentage, Value: 80},
		OriginalPrice: 100,
		InventoryQty:  qty,
	}
}

func TestEnable_FirstProductOnFreePlan(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Enable(context.Background(), userID, input("P1", "V1", 5))
	require.NoError(t, err)

	assert.Equal(t, 80.0, res.Setting.MinPrice)
	assert.Equal(t, 100.0, res.Setting.OriginalPrice)
	assert.True(t, res.Setting.Enabled)
	assert.Equal(t, bargaining.BehaviorNormal, res.Setting.Behavior)
	assert.Equal(t, 1, res.Limits.CurrentlyEnabled)
	assert.Equal(t, 10, res.Limits.MaxProducts)
	assert.Equal(t, 9, res.Limits.Remaining)
}

func TestEnable_RejectsWhenLimitReached(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 10; i++ {
		_, err := f.svc.Enable(context.Background(), userID, input(fmt.Sprintf("P%d", i), "V1", 1))
		require.NoError(t, err)
	}

	_, err := f.svc.Enable(context.Background(), userID, input("P11", "V1", 1))
	require.Error(t, err)
	assert.Equal(t, xerrors.KindQuotaExceeded, xerrors.KindOf(err))
	assert.Contains(t, xerrors.PublicMessage(err), "limit reached")
	assert.Equal(t, 10, f.count(t))

	settings, err := f.svc.GetSettings(context.Background(), userID, []string{"P11"})
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestEnable_SecondVariantDoesNotConsumeQuota(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 10; i++ {
		_, err := f.svc.Enable(context.Background(), userID, input(fmt.Sprintf("P%d", i), "V1", 1))
		require.NoError(t, err)
	}

	res, err := f.svc.Enable(context.Background(), userID, input("P3", "V2", 1))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Limits.CurrentlyEnabled)
	assert.Equal(t, 10, f.count(t))
}

func TestEnable_IsIdempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Enable(context.Background(), userID, input("P1", "V1", 3))
	require.NoError(t, err)
	second, err := f.svc.Enable(context.Background(), userID, input("P1", "V1", 3))
	require.NoError(t, err)

	assert.Equal(t, first.Setting.ID, second.Setting.ID)
	assert.Equal(t, first.Setting.MinPrice, second.Setting.MinPrice)
	assert.Equal(t, 1, second.Limits.CurrentlyEnabled)

	settings, err := f.svc.GetSettings(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Len(t, settings, 1)
}

func TestEnable_NoInventoryWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Enable(context.Background(), userID, input("P1", "V1", 0))
	require.Error(t, err)
	assert.Equal(t, xerrors.KindNoInventory, xerrors.KindOf(err))

	settings, err := f.svc.GetSettings(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestEnable_InvalidPrice(t *testing.T) {
	f := newFixture(t)

	in := input("P1", "V1", 1)
	in.OriginalPrice = 0
	_, err := f.svc.Enable(context.Background(), userID, in)
	require.Error(t, err)
	assert.Equal(t, xerrors.KindInvalidPrice, xerrors.KindOf(err))
}

func TestEnable_ClampsFixedFloorAboveOriginal(t *testing.T) {
	f := newFixture(t)

	in := input("P1", "V1", 1)
	in.MinPrice = bargaining.MinPriceSpec{Type: bargaining.MinPriceFixed, Value: 250}
	res, err := f.svc.Enable(context.Background(), userID, in)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Setting.MinPrice)
}

func TestEnable_UnlimitedPlanNeverRejects(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "unlimited")

	for i := 1; i <= 25; i++ {
		res, err := f.svc.Enable(context.Background(), userID, input(fmt.Sprintf("P%d", i), "V1", 1))
		require.NoError(t, err)
		assert.True(t, res.Limits.Unlimited)
		assert.Equal(t, -1, res.Limits.Remaining)
	}
	assert.Equal(t, 25, f.count(t))
}

func TestEnable_ConcurrentCallsRespectLimit(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 1; i <= 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Enable(context.Background(), userID, input(fmt.Sprintf("P%d", i), "V1", 1))
			if err != nil {
				assert.Equal(t, xerrors.KindQuotaExceeded, xerrors.KindOf(err))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, f.count(t))
}

func TestEnableFromCatalog_UsesCatalogValues(t *testing.T) {
	f := newFixture(t)
	f.db.PutVariant(&catalog.Variant{UserID: userID, ProductID: "P1", VariantID: "V1", Price: 49.99, InventoryQuantity: 4})
	f.db.PutVariant(&catalog.Variant{UserID: userID, ProductID: "P1", VariantID: "V2", Price: 49.99, InventoryQuantity: 0})

	res, err := f.svc.EnableFromCatalog(context.Background(), userID, &bargaining.EnableRequest{
		ProductID:     "P1",
		VariantID:     "V1",
		MinPriceType:  bargaining.MinPricePercentage,
		MinPriceValue: 90,
		Behavior:      "high",
	})
	require.NoError(t, err)
	assert.Equal(t, 44.99, res.Setting.MinPrice)
	assert.Equal(t, bargaining.BehaviorHigh, res.Setting.Behavior)

	_, err = f.svc.EnableFromCatalog(context.Background(), userID, &bargaining.EnableRequest{ProductID: "P1", VariantID: "V2"})
	assert.Equal(t, xerrors.KindNoInventory, xerrors.KindOf(err))

	_, err = f.svc.EnableFromCatalog(context.Background(), userID, &bargaining.EnableRequest{ProductID: "P1", VariantID: "missing"})
	assert.Equal(t, xerrors.KindInvalidInput, xerrors.KindOf(err))

	_, err = f.svc.EnableFromCatalog(context.Background(), userID, &bargaining.EnableRequest{ProductID: "P1", VariantID: "V1", Behavior: "aggressive"})
	assert.Equal(t, xerrors.KindInvalidInput, xerrors.KindOf(err))
}

func TestDisable_FreesQuota(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Enable(context.Background(), userID, input("P1", "V1", 1))
	require.NoError(t, err)

	res, err := f.svc.Disable(context.Background(), userID, "P1", "V1")
	require.NoError(t, err)
	require.NotNil(t, res.Setting)
	assert.False(t, res.Setting.Enabled)
	assert.Equal(t, 0, res.Limits.CurrentlyEnabled)

	settings, err := f.svc.GetSettings(context.Background(), userID, []string{"P1"})
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.False(t, settings[0].Enabled)
}

func TestDisable_UnknownVariantSucceeds(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Disable(context.Background(), userID, "P1", "V1")
	require.NoError(t, err)
	assert.Nil(t, res.Setting)
}

func TestDisable_NotQuotaCheckedOverLimit(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "unlimited")
	for i := 1; i <= 12; i++ {
		_, err := f.svc.Enable(context.Background(), userID, input(fmt.Sprintf("P%d", i), "V1", 1))
		require.NoError(t, err)
	}

	// Dropping back to free leaves the user above the limit.
	_, err := f.db.Memberships().CancelActiveWithTx(context.Background(), nil, userID, time.Now())
	require.NoError(t, err)

	res, err := f.svc.Disable(context.Background(), userID, "P1", "V1")
	require.NoError(t, err)
	assert.Equal(t, 11, res.Limits.CurrentlyEnabled)
	assert.Equal(t, 0, res.Limits.Remaining)
}

func (f *fixture) seedCatalog(products int, variantsPerProduct int, qty int) {
	for p := 1; p <= products; p++ {
		for v := 1; v <= variantsPerProduct; v++ {
			f.db.PutVariant(&catalog.Variant{
				UserID:            userID,
				ProductID:         fmt.Sprintf("P%d", p),
				VariantID:         fmt.Sprintf("V%d", v),
				Price:             20,
				InventoryQuantity: qty,
			})
		}
	}
}

func enableAll(productIDs ...string) *bargaining.BulkUpdateRequest {
	req := &bargaining.BulkUpdateRequest{}
	for _, id := range productIDs {
		req.Selections = append(req.Selections, bargaining.Selection{
			ProductID: id,
			Settings: bargaining.SettingsConfig{
				Enabled:       true,
				MinPriceType:  bargaining.MinPricePercentage,
				MinPriceValue: 75,
				Behavior:      "low",
			},
		})
	}
	return req
}

func TestBulkUpdate_AppliesToEveryVariant(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(3, 2, 5)

	res, err := f.svc.BulkUpdate(context.Background(), userID, enableAll("P1", "P2", "P3"))
	require.NoError(t, err)

	assert.Len(t, res.Updated, 6)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 3, res.Limits.CurrentlyEnabled)
	for _, s := range res.Updated {
		assert.Equal(t, 15.0, s.MinPrice)
		assert.Equal(t, bargaining.BehaviorLow, s.Behavior)
	}
}

func TestBulkUpdate_SkipsDeadStockAndMissingVariants(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(1, 1, 5)
	f.db.PutVariant(&catalog.Variant{UserID: userID, ProductID: "P1", VariantID: "V2", Price: 20, InventoryQuantity: 0})
	f.db.PutVariant(&catalog.Variant{UserID: userID, ProductID: "P1", VariantID: "V3", Price: 0, InventoryQuantity: 3})

	req := enableAll("P1")
	req.Selections[0].VariantIDs = []string{"V1", "V2", "V3", "V9"}

	res, err := f.svc.BulkUpdate(context.Background(), userID, req)
	require.NoError(t, err)

	require.Len(t, res.Updated, 1)
	assert.Equal(t, "V1", res.Updated[0].VariantID)

	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.VariantID] = s.Reason
	}
	assert.Equal(t, map[string]string{
		"V2": "no_inventory",
		"V3": "invalid_price",
		"V9": "variant_not_found",
	}, reasons)
}

func TestBulkUpdate_ChecksDeltaOnce(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(12, 1, 5)

	for i := 1; i <= 8; i++ {
		_, err := f.svc.Enable(context.Background(), userID, input(fmt.Sprintf("P%d", i), "V1", 1))
		require.NoError(t, err)
	}

	// P1..P8 are already counted; only P9 and P10 are new.
	res, err := f.svc.BulkUpdate(context.Background(), userID, enableAll("P1", "P2", "P3", "P9", "P10"))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Limits.CurrentlyEnabled)

	_, err = f.svc.BulkUpdate(context.Background(), userID, enableAll("P11", "P12"))
	require.Error(t, err)
	assert.Equal(t, xerrors.KindQuotaExceeded, xerrors.KindOf(err))
	assert.Equal(t, 10, f.count(t))
}

func TestBulkUpdate_QuotaFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(11, 1, 5)

	ids := make([]string, 0, 11)
	for i := 1; i <= 11; i++ {
		ids = append(ids, fmt.Sprintf("P%d", i))
	}
	_, err := f.svc.BulkUpdate(context.Background(), userID, enableAll(ids...))
	require.Error(t, err)
	assert.Equal(t, xerrors.KindQuotaExceeded, xerrors.KindOf(err))

	settings, err := f.svc.GetSettings(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func disableAll(productIDs ...string) *bargaining.BulkUpdateRequest {
	req := enableAll(productIDs...)
	for i := range req.Selections {
		req.Selections[i].Settings.Enabled = false
	}
	return req
}

func TestBulkUpdate_DisableNeedsNoQuota(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(2, 2, 5)

	_, err := f.svc.BulkUpdate(context.Background(), userID, enableAll("P1", "P2"))
	require.NoError(t, err)

	res, err := f.svc.BulkUpdate(context.Background(), userID, disableAll("P1", "P2"))
	require.NoError(t, err)
	assert.Len(t, res.Updated, 4)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 0, res.Limits.CurrentlyEnabled)
	for _, s := range res.Updated {
		assert.False(t, s.Enabled)
	}
}

func TestBulkUpdate_DisableIgnoresCatalogChanges(t *testing.T) {
	f := newFixture(t)

	// P1 was never listed in the catalog; P2's price has since dropped to zero.
	_, err := f.svc.Enable(context.Background(), userID, input("P1", "V1", 1))
	require.NoError(t, err)
	_, err = f.svc.Enable(context.Background(), userID, input("P2", "V1", 1))
	require.NoError(t, err)
	f.db.PutVariant(&catalog.Variant{UserID: userID, ProductID: "P2", VariantID: "V1", Price: 0, InventoryQuantity: 0})

	req := disableAll("P1", "P2")
	req.Selections[1].VariantIDs = []string{"V1"}

	res, err := f.svc.BulkUpdate(context.Background(), userID, req)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Updated, 2)
	assert.Equal(t, 80.0, res.Updated[1].MinPrice, "stored floor is kept")
	assert.Equal(t, 0, res.Limits.CurrentlyEnabled)
	assert.Equal(t, 0, f.count(t))
}

func TestBulkUpdate_DisableUnconfiguredVariantIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(1, 2, 5)

	res, err := f.svc.BulkUpdate(context.Background(), userID, disableAll("P1"))
	require.NoError(t, err)
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Skipped)

	settings, err := f.svc.GetSettings(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestBulkUpdate_RejectsUnknownBehavior(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(1, 1, 1)

	req := enableAll("P1")
	req.Selections[0].Settings.Behavior = "pushy"
	_, err := f.svc.BulkUpdate(context.Background(), userID, req)
	assert.Equal(t, xerrors.KindInvalidInput, xerrors.KindOf(err))
}

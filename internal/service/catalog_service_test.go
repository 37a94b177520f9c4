package service

import (
	"context"
	"testing"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogQuotes(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	catalog := NewCatalogService(f.store, NewInventoryLedger(f.store, f.cache))

	tiered := storetest.TieredVariant(t, f.store, "10.00", "4.00", 50)
	require.NoError(t, catalog.AddPriceTier(ctx, &models.PriceTier{
		VariantID: tiered.ID, Basis: models.TierBasisQuantity, Unit: "pcs",
		MinValue: dec("1"), MaxValue: decimal.NewNullDecimal(dec("10")), SalePrice: dec("9.00"),
	}))
	require.NoError(t, catalog.AddPriceTier(ctx, &models.PriceTier{
		VariantID: tiered.ID, Basis: models.TierBasisQuantity, Unit: "pcs",
		MinValue: dec("10"), SalePrice: dec("7.00"),
	}))

	quote, err := catalog.QuoteVariant(ctx, tiered.ID, decPtr("3"), nil)
	require.NoError(t, err)
	assertDec(t, "9", quote.Price)
	assertDec(t, "7", quote.StartsFrom)
	assert.Equal(t, models.PricingModeTiered, quote.PricingMode)
	assert.True(t, quote.TierID.Valid)

	flat := storetest.Variant(t, f.store, "4.00", "1.00", 8)
	bundle := storetest.Bundle(t, f.store, "15.00", map[*models.Variant]int{tiered: 1, flat: 3})

	bundleQuote, err := catalog.QuoteBundle(ctx, bundle.ID)
	require.NoError(t, err)
	assertDec(t, "19", bundleQuote.RegularPrice)
	assertDec(t, "4", bundleQuote.Savings)

	_, err = catalog.QuoteVariant(ctx, uuid.New(), nil, nil)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestCatalogStockSeedsMirror(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	catalog := NewCatalogService(f.store, NewInventoryLedger(f.store, f.cache))

	variant := storetest.Variant(t, f.store, "4.00", "1.00", 8)

	quote, err := catalog.Stock(ctx, variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, quote.Available)

	level, ok, _ := f.cache.GetStock(ctx, variant.ID)
	assert.True(t, ok)
	assert.Equal(t, 8, level)

	require.NoError(t, f.cache.SetStock(ctx, variant.ID, 6))
	quote, err = catalog.Stock(ctx, variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, quote.Available)
}

func TestAddPriceTierRejectsOverlap(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	catalog := NewCatalogService(f.store, NewInventoryLedger(f.store, nil))

	variant := storetest.TieredVariant(t, f.store, "10.00", "4.00", 50)
	require.NoError(t, catalog.AddPriceTier(ctx, &models.PriceTier{
		VariantID: variant.ID, Basis: models.TierBasisWeight, Unit: "kg",
		MinValue: dec("0"), MaxValue: decimal.NewNullDecimal(dec("5")), SalePrice: dec("9.00"),
	}))

	err := catalog.AddPriceTier(ctx, &models.PriceTier{
		VariantID: variant.ID, Basis: models.TierBasisWeight, Unit: "kg",
		MinValue: dec("4"), SalePrice: dec("8.00"),
	})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	require.NoError(t, catalog.AddPriceTier(ctx, &models.PriceTier{
		VariantID: variant.ID, Basis: models.TierBasisWeight, Unit: "g",
		MinValue: dec("4"), SalePrice: dec("8.00"),
	}))

	err = catalog.AddPriceTier(ctx, &models.PriceTier{
		VariantID: uuid.New(), Basis: models.TierBasisWeight, Unit: "kg",
		MinValue: dec("0"), SalePrice: dec("8.00"),
	})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	tiers, err := f.store.GetPriceTiers(ctx, variant.ID)
	require.NoError(t, err)
	assert.Len(t, tiers, 2)
}

func TestLedgerRefreshAndSync(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	ledger := NewInventoryLedger(f.store, f.cache)

	first := storetest.Variant(t, f.store, "4.00", "1.00", 8)
	second := storetest.Variant(t, f.store, "4.00", "1.00", 3)

	require.NoError(t, ledger.SyncAll(ctx))
	level, ok, _ := f.cache.GetStock(ctx, second.ID)
	require.True(t, ok)
	assert.Equal(t, 3, level)

	require.NoError(t, f.store.DecrementStock(ctx, first.ID, 5))
	require.NoError(t, ledger.Refresh(ctx, []uuid.UUID{first.ID}))
	level, _, _ = f.cache.GetStock(ctx, first.ID)
	assert.Equal(t, 3, level)

	assert.NoError(t, NewInventoryLedger(f.store, nil).Refresh(ctx, []uuid.UUID{first.ID}))
}

package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartService(t *testing.T) (*CartService, *checkoutFixture) {
	t.Helper()
	f := newCheckoutFixture(t)
	return NewCartService(f.store, func() time.Time { return fixedNow }), f
}

func TestAddVariantMergesLinesAndResolvesTier(t *testing.T) {
	svc, f := newCartService(t)
	ctx := context.Background()

	customer, cart := storetest.User(t, f.store)
	variant := storetest.TieredVariant(t, f.store, "10.00", "4.00", 50)
	catalog := NewCatalogService(f.store, NewInventoryLedger(f.store, nil))
	for _, tr := range []models.PriceTier{
		{VariantID: variant.ID, Basis: models.TierBasisQuantity, Unit: "pcs", MinValue: dec("1"), MaxValue: decimal.NewNullDecimal(dec("10")), SalePrice: dec("9.00")},
		{VariantID: variant.ID, Basis: models.TierBasisQuantity, Unit: "pcs", MinValue: dec("10"), SalePrice: dec("7.00")},
	} {
		tr := tr
		require.NoError(t, catalog.AddPriceTier(ctx, &tr))
	}

	updated, err := svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 4})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assertDec(t, "9", updated.Items[0].UnitPrice)

	updated, err = svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 6})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, 10, updated.Items[0].Quantity)
	assertDec(t, "7", updated.Items[0].UnitPrice)

	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.Equal(fixedNow))

	updated, err = svc.UpdateQuantity(ctx, customer, cart.ID, updated.Items[0].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Items[0].Quantity)
	assertDec(t, "9", updated.Items[0].UnitPrice)
}

func TestAddVariantChecksStock(t *testing.T) {
	svc, f := newCartService(t)
	ctx := context.Background()

	customer, cart := storetest.User(t, f.store)
	variant := storetest.Variant(t, f.store, "10.00", "4.00", 3)

	_, err := svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 2})
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientStock))

	loaded, err := svc.GetCart(ctx, customer, cart.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 2, loaded.Items[0].Quantity)
}

func TestAddVariantValidation(t *testing.T) {
	svc, f := newCartService(t)
	ctx := context.Background()

	customer, cart := storetest.User(t, f.store)
	variant := storetest.Variant(t, f.store, "10.00", "4.00", 3)

	_, err := svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 0})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	weight := dec("-1")
	_, err = svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 1, Weight: &weight})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: uuid.New(), Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestAddBundleChecksEveryConstituent(t *testing.T) {
	svc, f := newCartService(t)
	ctx := context.Background()

	customer, cart := storetest.User(t, f.store)
	shirt := storetest.Variant(t, f.store, "10.00", "4.00", 10)
	socks := storetest.Variant(t, f.store, "5.00", "1.00", 3)
	bundle := storetest.Bundle(t, f.store, "12.00", map[*models.Variant]int{shirt: 1, socks: 2})

	updated, err := svc.AddBundle(ctx, customer, cart.ID, &AddBundleRequest{BundleID: bundle.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assertDec(t, "12", updated.Items[0].UnitPrice)

	_, err = svc.AddBundle(ctx, customer, cart.ID, &AddBundleRequest{BundleID: bundle.ID, Quantity: 1})
	typed := apperr.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperr.CodeInsufficientStock, typed.Code())
	assert.Equal(t, apperr.StockShortage{VariantID: socks.ID.String(), Requested: 4, Available: 3}, typed.Details())
}

func TestCartMutationsRespectOwnershipAndConversion(t *testing.T) {
	svc, f := newCartService(t)
	ctx := context.Background()

	customer, cart := storetest.User(t, f.store)
	stranger, _ := storetest.User(t, f.store)
	variant := storetest.Variant(t, f.store, "10.00", "4.00", 10)

	_, err := svc.AddVariant(ctx, stranger, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = svc.GetCart(ctx, stranger, cart.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	updated, err := svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 1})
	require.NoError(t, err)
	itemID := updated.Items[0].ID

	_, err = f.svc.CreateFromCart(ctx, customer, pickup(cart.ID))
	require.NoError(t, err)

	_, err = svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	_, err = svc.RemoveItem(ctx, customer, cart.ID, itemID)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	fresh, err := svc.EnsureCart(ctx, customer)
	require.NoError(t, err)
	assert.NotEqual(t, cart.ID, fresh.ID)
	assert.False(t, fresh.IsConverted)
	assert.Empty(t, fresh.Items)

	same, err := svc.EnsureCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, same.ID)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	svc, f := newCartService(t)
	ctx := context.Background()

	customer, cart := storetest.User(t, f.store)
	variant := storetest.Variant(t, f.store, "10.00", "4.00", 5)

	updated, err := svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 1})
	require.NoError(t, err)
	itemID := updated.Items[0].ID

	_, err = svc.UpdateQuantity(ctx, customer, cart.ID, itemID, 0)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = svc.UpdateQuantity(ctx, customer, cart.ID, itemID, 6)
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientStock))

	_, err = svc.UpdateQuantity(ctx, customer, cart.ID, uuid.New(), 1)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	updated, err = svc.RemoveItem(ctx, customer, cart.ID, itemID)
	require.NoError(t, err)
	assert.Empty(t, updated.Items)

	_, err = svc.RemoveItem(ctx, customer, cart.ID, itemID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestWeightTierLineKeepsItsMeasure(t *testing.T) {
	svc, f := newCartService(t)
	ctx := context.Background()

	customer, cart := storetest.User(t, f.store)
	variant := storetest.TieredVariant(t, f.store, "25.00", "8.00", 50)
	catalog := NewCatalogService(f.store, NewInventoryLedger(f.store, nil))
	for _, tr := range []models.PriceTier{
		{VariantID: variant.ID, Basis: models.TierBasisWeight, Unit: "kg", MinValue: dec("0"), MaxValue: decimal.NewNullDecimal(dec("1")), SalePrice: dec("20.00")},
		{VariantID: variant.ID, Basis: models.TierBasisWeight, Unit: "kg", MinValue: dec("1"), SalePrice: dec("15.00")},
	} {
		tr := tr
		require.NoError(t, catalog.AddPriceTier(ctx, &tr))
	}

	half := dec("0.5")
	updated, err := svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 1, Weight: &half})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assertDec(t, "20", updated.Items[0].UnitPrice)
	require.True(t, updated.Items[0].Weight.Valid)
	assertDec(t, "0.5", updated.Items[0].Weight.Decimal)

	updated, err = svc.UpdateQuantity(ctx, customer, cart.ID, updated.Items[0].ID, 2)
	require.NoError(t, err)
	assertDec(t, "20", updated.Items[0].UnitPrice)
	assertDec(t, "0.5", updated.Items[0].Weight.Decimal)

	updated, err = svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, 3, updated.Items[0].Quantity)
	assertDec(t, "20", updated.Items[0].UnitPrice)

	more := dec("0.75")
	updated, err = svc.AddVariant(ctx, customer, cart.ID, &AddVariantRequest{VariantID: variant.ID, Quantity: 1, Weight: &more})
	require.NoError(t, err)
	assertDec(t, "1.25", updated.Items[0].Weight.Decimal)
	assertDec(t, "15", updated.Items[0].UnitPrice)
}

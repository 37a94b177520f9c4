package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeDiscounts struct {
	discounts []models.Discount
	err       error
}

func (f *fakeDiscounts) ListDiscounts(context.Context) ([]models.Discount, error) {
	return f.discounts, f.err
}

func newEngine(discounts ...models.Discount) *DiscountEngine {
	return NewDiscountEngine(&fakeDiscounts{discounts: discounts}, func() time.Time { return fixedNow })
}

func discount(discountType, valueType, value string, priority int) models.Discount {
	return models.Discount{
		ID:             uuid.New(),
		Name:           discountType + " " + value,
		DiscountType:   discountType,
		ValueType:      valueType,
		Value:          dec(value),
		IsActive:       true,
		Priority:       priority,
		Stackable:      true,
		MaxProfitShare: dec("0.75"),
	}
}

func variantLine(price, cost string, quantity int) models.CartItem {
	variant := &models.Variant{ID: uuid.New(), Name: "Item", SalePrice: dec(price), CostPrice: dec(cost)}
	return models.CartItem{
		ID:        uuid.New(),
		LineType:  models.LineTypeVariant,
		VariantID: uuid.NullUUID{UUID: variant.ID, Valid: true},
		Variant:   variant,
		Quantity:  quantity,
		UnitPrice: dec(price),
	}
}

func cartOf(items ...models.CartItem) *models.Cart {
	updated := fixedNow.Add(-time.Minute)
	return &models.Cart{ID: uuid.New(), UpdatedAt: &updated, Items: items}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestApplyCapsAtGlobalProfitShare(t *testing.T) {
	big := discount(models.DiscountTypeCartSubtotal, models.ValueTypePercent, "50", 1)
	big.MaxProfitShare = dec("1.00")

	result, err := newEngine(big).Apply(context.Background(), cartOf(variantLine("100", "50", 1)), "")
	require.NoError(t, err)

	assertDec(t, "100", result.OriginalTotal)
	assertDec(t, "50", result.ProfitBefore)
	assertDec(t, "12.5", result.TotalDiscount)
	assertDec(t, "87.5", result.DiscountedTotal)
	assertDec(t, "37.5", result.ProfitAfter)
	require.Len(t, result.Applied, 1)
	assertDec(t, "12.5", result.Applied[0].AppliedAmount)
}

func TestApplySkipsUnprofitableCart(t *testing.T) {
	repo := &fakeDiscounts{err: errors.New("must not be called")}
	engine := NewDiscountEngine(repo, func() time.Time { return fixedNow })

	result, err := engine.Apply(context.Background(), cartOf(variantLine("50", "60", 2)), "")
	require.NoError(t, err)
	assertDec(t, "0", result.ProfitBefore)
	assertDec(t, "0", result.TotalDiscount)
	assertDec(t, "100", result.DiscountedTotal)
	assert.Empty(t, result.Applied)
}

func TestApplyBundleOnlyCartGetsNothing(t *testing.T) {
	bundle := &models.Bundle{ID: uuid.New(), Name: "Bundle", BundlePrice: dec("20.00")}
	cart := cartOf(models.CartItem{
		ID:        uuid.New(),
		LineType:  models.LineTypeBundle,
		BundleID:  uuid.NullUUID{UUID: bundle.ID, Valid: true},
		Bundle:    bundle,
		Quantity:  1,
		UnitPrice: dec("20.00"),
	})

	result, err := newEngine(discount(models.DiscountTypeCartSubtotal, models.ValueTypePercent, "10", 1)).
		Apply(context.Background(), cart, "")
	require.NoError(t, err)
	assertDec(t, "20", result.OriginalTotal)
	assertDec(t, "0", result.ProfitBefore)
	assertDec(t, "0", result.TotalDiscount)
}

func TestCartTotalsMixedCartCostsBundleAtPrice(t *testing.T) {
	bundle := &models.Bundle{ID: uuid.New(), Name: "Bundle", BundlePrice: dec("20.00")}
	cart := cartOf(variantLine("100.00", "50.00", 1), models.CartItem{
		ID:        uuid.New(),
		LineType:  models.LineTypeBundle,
		BundleID:  uuid.NullUUID{UUID: bundle.ID, Valid: true},
		Bundle:    bundle,
		Quantity:  1,
		UnitPrice: dec("20.00"),
	})

	original, cost, profit := CartTotals(cart)
	assertDec(t, "120", original)
	assertDec(t, "70", cost)
	assertDec(t, "50", profit)
}

func TestApplyStacksUntilGlobalRoomIsGone(t *testing.T) {
	first := discount(models.DiscountTypeCartSubtotal, models.ValueTypePercent, "10", 1)
	second := discount(models.DiscountTypeCartSubtotal, models.ValueTypePercent, "10", 2)
	third := discount(models.DiscountTypeCartSubtotal, models.ValueTypePercent, "10", 3)

	result, err := newEngine(third, first, second).Apply(context.Background(), cartOf(variantLine("100", "50", 1)), "")
	require.NoError(t, err)

	require.Len(t, result.Applied, 2)
	assert.Equal(t, first.ID, result.Applied[0].ID)
	assertDec(t, "10", result.Applied[0].AppliedAmount)
	assert.Equal(t, second.ID, result.Applied[1].ID)
	assertDec(t, "2.5", result.Applied[1].AppliedAmount)
	assertDec(t, "12.5", result.TotalDiscount)
}

func TestApplyPerDiscountShare(t *testing.T) {
	small := discount(models.DiscountTypeCartSubtotal, models.ValueTypePercent, "50", 1)
	small.MaxProfitShare = dec("0.10")

	result, err := newEngine(small).Apply(context.Background(), cartOf(variantLine("100", "50", 1)), "")
	require.NoError(t, err)
	assertDec(t, "5", result.TotalDiscount)
}

func TestApplyStopsAfterExclusiveOrNonStackable(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*models.Discount)
	}{
		{name: "exclusive", modify: func(d *models.Discount) { d.Exclusive = true }},
		{name: "non-stackable", modify: func(d *models.Discount) { d.Stackable = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head := discount(models.DiscountTypeCartSubtotal, models.ValueTypeFixed, "3", 1)
			tt.modify(&head)
			tail := discount(models.DiscountTypeCartSubtotal, models.ValueTypeFixed, "3", 2)

			result, err := newEngine(head, tail).Apply(context.Background(), cartOf(variantLine("100", "50", 1)), "")
			require.NoError(t, err)
			require.Len(t, result.Applied, 1)
			assert.Equal(t, head.ID, result.Applied[0].ID)
			assertDec(t, "3", result.TotalDiscount)
		})
	}
}

func TestApplySkipsZeroAmountWithoutStopping(t *testing.T) {
	untargeted := discount(models.DiscountTypeProductOverride, models.ValueTypePercent, "10", 1)
	untargeted.TargetVariants = []uuid.UUID{uuid.New()}
	untargeted.Exclusive = true
	next := discount(models.DiscountTypeCartSubtotal, models.ValueTypeFixed, "4", 2)

	result, err := newEngine(untargeted, next).Apply(context.Background(), cartOf(variantLine("100", "50", 1)), "")
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, next.ID, result.Applied[0].ID)
}

func TestApplyCouponMatchesCaseInsensitively(t *testing.T) {
	code := "SAVE10"
	coupon := discount(models.DiscountTypeCoupon, models.ValueTypePercent, "10", 1)
	coupon.Code = &code
	cart := cartOf(variantLine("100", "50", 1))

	result, err := newEngine(coupon).Apply(context.Background(), cart, "save10")
	require.NoError(t, err)
	assertDec(t, "10", result.TotalDiscount)

	result, err = newEngine(coupon).Apply(context.Background(), cart, "")
	require.NoError(t, err)
	assert.Empty(t, result.Applied)

	result, err = newEngine(coupon).Apply(context.Background(), cart, "OTHER")
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
}

func TestApplyAbandonedCart(t *testing.T) {
	minutes := 60
	abandoned := discount(models.DiscountTypeAbandonedCart, models.ValueTypeFixed, "5", 1)
	abandoned.MinAbandonedMinutes = &minutes

	longAgo := fixedNow.Add(-2 * time.Hour)
	recently := fixedNow.Add(-10 * time.Minute)

	tests := []struct {
		name      string
		updatedAt *time.Time
		want      string
	}{
		{name: "idle long enough", updatedAt: &longAgo, want: "5"},
		{name: "recently touched", updatedAt: &recently, want: "0"},
		{name: "never updated", updatedAt: nil, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart := cartOf(variantLine("100", "50", 1))
			cart.UpdatedAt = tt.updatedAt

			result, err := newEngine(abandoned).Apply(context.Background(), cart, "")
			require.NoError(t, err)
			assertDec(t, tt.want, result.TotalDiscount)
		})
	}
}

func TestApplyActiveWindowAndMinimumSubtotal(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	expired := discount(models.DiscountTypeCartSubtotal, models.ValueTypeFixed, "1", 1)
	expired.EndsAt = &past
	pending := discount(models.DiscountTypeCartSubtotal, models.ValueTypeFixed, "1", 2)
	pending.StartsAt = &future
	inactive := discount(models.DiscountTypeCartSubtotal, models.ValueTypeFixed, "1", 3)
	inactive.IsActive = false
	tooBig := discount(models.DiscountTypeCartSubtotal, models.ValueTypeFixed, "1", 4)
	tooBig.MinCartSubtotal = decimal.NewNullDecimal(dec("200"))
	running := discount(models.DiscountTypeCartSubtotal, models.ValueTypeFixed, "2", 5)
	running.StartsAt = &past
	running.EndsAt = &future
	running.MinCartSubtotal = decimal.NewNullDecimal(dec("100"))

	result, err := newEngine(expired, pending, inactive, tooBig, running).
		Apply(context.Background(), cartOf(variantLine("100", "50", 1)), "")
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, running.ID, result.Applied[0].ID)
}

func TestApplyProductOverrideTargets(t *testing.T) {
	targeted := variantLine("100", "50", 1)
	other := variantLine("100", "50", 1)

	override := discount(models.DiscountTypeProductOverride, models.ValueTypePercent, "20", 1)
	override.TargetVariants = []uuid.UUID{targeted.Variant.ID}

	result, err := newEngine(override).Apply(context.Background(), cartOf(targeted, other), "")
	require.NoError(t, err)
	assertDec(t, "100", result.ProfitBefore)
	assertDec(t, "20", result.TotalDiscount)
}

func TestApplyFlashSaleFixedPerUnit(t *testing.T) {
	flash := discount(models.DiscountTypeFlashSale, models.ValueTypeFixed, "2", 1)

	result, err := newEngine(flash).Apply(context.Background(), cartOf(variantLine("20", "5", 3)), "")
	require.NoError(t, err)
	assertDec(t, "45", result.ProfitBefore)
	assertDec(t, "6", result.TotalDiscount)
	assertDec(t, "54", result.DiscountedTotal)
}

func TestApplyPropagatesRepositoryError(t *testing.T) {
	engine := NewDiscountEngine(&fakeDiscounts{err: errors.New("db down")}, nil)

	_, err := engine.Apply(context.Background(), cartOf(variantLine("100", "50", 1)), "")
	assert.Error(t, err)
}

func TestApplyDoesNotMutateCart(t *testing.T) {
	cart := cartOf(variantLine("100", "50", 2))
	big := discount(models.DiscountTypeCartSubtotal, models.ValueTypePercent, "50", 1)

	_, err := newEngine(big).Apply(context.Background(), cart, "")
	require.NoError(t, err)
	assertDec(t, "100", cart.Items[0].UnitPrice)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

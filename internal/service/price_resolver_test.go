package service

import (
	"testing"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func tier(basis, min, max, sale string) models.PriceTier {
	t := models.PriceTier{
		ID:        uuid.New(),
		Basis:     basis,
		Unit:      "pcs",
		MinValue:  dec(min),
		SalePrice: dec(sale),
		CostPrice: dec("3.00"),
	}
	if max != "" {
		t.MaxValue = decimal.NewNullDecimal(dec(max))
	}
	return t
}

func tieredVariant(tiers ...models.PriceTier) *models.Variant {
	return &models.Variant{
		ID:          uuid.New(),
		Name:        "Tiered",
		PricingMode: models.PricingModeTiered,
		SalePrice:   dec("10.00"),
		CostPrice:   dec("4.00"),
		Tiers:       tiers,
	}
}

func TestResolvePriceFlat(t *testing.T) {
	v := &models.Variant{
		PricingMode:    models.PricingModeFlat,
		SalePrice:      dec("12.00"),
		CostPrice:      dec("6.00"),
		WholesalePrice: dec("8.00"),
		Tiers:          []models.PriceTier{tier(models.TierBasisQuantity, "1", "", "1.00")},
	}

	res := ResolvePrice(v, decPtr("5"), nil)
	assert.True(t, res.Price.Equal(dec("12.00")))
	assert.True(t, res.WholesalePrice.Equal(dec("8.00")))
	assert.False(t, res.TierID.Valid)
	assert.Empty(t, res.Basis)
}

func TestResolvePriceTieredWithoutTiersUsesVariant(t *testing.T) {
	v := tieredVariant()
	res := ResolvePrice(v, decPtr("3"), nil)
	assert.True(t, res.Price.Equal(dec("10.00")))
}

func TestResolvePriceQuantityTiers(t *testing.T) {
	small := tier(models.TierBasisQuantity, "1", "10", "9.00")
	large := tier(models.TierBasisQuantity, "10", "", "7.00")
	v := tieredVariant(large, small)

	tests := []struct {
		name     string
		quantity string
		want     string
		tierID   uuid.UUID
	}{
		{name: "inside first tier", quantity: "3", want: "9.00", tierID: small.ID},
		{name: "upper bound is exclusive", quantity: "10", want: "7.00", tierID: large.ID},
		{name: "unbounded tier", quantity: "250", want: "7.00", tierID: large.ID},
		{name: "below every tier falls back to lowest min", quantity: "0.5", want: "9.00", tierID: small.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ResolvePrice(v, decPtr(tt.quantity), nil)
			assert.True(t, res.Price.Equal(dec(tt.want)), "got %s", res.Price)
			assert.Equal(t, tt.tierID, res.TierID.UUID)
			assert.Equal(t, models.TierBasisQuantity, res.Basis)
		})
	}
}

func TestResolvePriceWithoutMeasureReturnsCheapest(t *testing.T) {
	v := tieredVariant(
		tier(models.TierBasisQuantity, "1", "10", "9.00"),
		tier(models.TierBasisQuantity, "10", "", "7.00"),
	)

	res := ResolvePrice(v, nil, nil)
	assert.True(t, res.Price.Equal(dec("7.00")))
	assert.True(t, EffectiveLowestPrice(v).Equal(dec("7.00")))
}

func TestResolvePriceWeightBasis(t *testing.T) {
	v := tieredVariant(
		tier(models.TierBasisQuantity, "1", "", "9.00"),
		tier(models.TierBasisWeight, "0", "1", "15.00"),
		tier(models.TierBasisWeight, "1", "", "12.00"),
	)

	res := ResolvePrice(v, nil, decPtr("2.5"))
	assert.True(t, res.Price.Equal(dec("12.00")))
	assert.Equal(t, models.TierBasisWeight, res.Basis)
}

func TestResolvePriceTieBreaksOnSalePrice(t *testing.T) {
	cheap := tier(models.TierBasisQuantity, "1", "", "5.00")
	dear := tier(models.TierBasisQuantity, "1", "", "6.00")
	cheap.Unit, dear.Unit = "box", "pcs"
	v := tieredVariant(dear, cheap)

	res := ResolvePrice(v, decPtr("2"), nil)
	assert.Equal(t, cheap.ID, res.TierID.UUID)
}

func TestBundleRegularPrice(t *testing.T) {
	flat := &models.Variant{PricingMode: models.PricingModeFlat, SalePrice: dec("4.00")}
	tiered := tieredVariant(tier(models.TierBasisQuantity, "1", "", "3.00"))

	bundle := &models.Bundle{
		BundlePrice: dec("9.00"),
		Items: []models.BundleItem{
			{Quantity: 2, Variant: flat},
			{Quantity: 1, Variant: tiered},
			{Quantity: 5},
		},
	}
	assert.True(t, BundleRegularPrice(bundle).Equal(dec("11.00")))
}

func TestValidateTiers(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []models.PriceTier
		wantErr bool
	}{
		{
			name: "adjacent ranges",
			tiers: []models.PriceTier{
				tier(models.TierBasisQuantity, "1", "10", "9.00"),
				tier(models.TierBasisQuantity, "10", "", "7.00"),
			},
		},
		{
			name: "different bases may overlap",
			tiers: []models.PriceTier{
				tier(models.TierBasisQuantity, "1", "", "9.00"),
				tier(models.TierBasisWeight, "1", "", "7.00"),
			},
		},
		{
			name: "overlapping ranges",
			tiers: []models.PriceTier{
				tier(models.TierBasisQuantity, "1", "10", "9.00"),
				tier(models.TierBasisQuantity, "5", "", "7.00"),
			},
			wantErr: true,
		},
		{
			name: "unbounded tier followed by another",
			tiers: []models.PriceTier{
				tier(models.TierBasisQuantity, "1", "", "9.00"),
				tier(models.TierBasisQuantity, "20", "30", "7.00"),
			},
			wantErr: true,
		},
		{
			name:    "inverted range",
			tiers:   []models.PriceTier{tier(models.TierBasisQuantity, "10", "5", "9.00")},
			wantErr: true,
		},
		{
			name:    "negative minimum",
			tiers:   []models.PriceTier{tier(models.TierBasisQuantity, "-1", "", "9.00")},
			wantErr: true,
		},
		{
			name:    "negative price",
			tiers:   []models.PriceTier{tier(models.TierBasisQuantity, "1", "", "-9.00")},
			wantErr: true,
		},
		{
			name:    "unknown basis",
			tiers:   []models.PriceTier{tier("volume", "1", "", "9.00")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTiers(tt.tiers)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.CodeValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}

package service

import (
	"fmt"
	"sort"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Resolution is the price slice chosen for a variant and measure.
// Basis and TierID are empty when the flat variant prices were used.
type Resolution struct {
	Price          decimal.Decimal `json:"price"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	Basis          string          `json:"basis,omitempty"`
	TierID         uuid.NullUUID   `json:"tier_id"`
}

func flatResolution(v *models.Variant) Resolution {
	return Resolution{
		Price:          v.SalePrice,
		CostPrice:      v.CostPrice,
		WholesalePrice: v.WholesalePrice,
	}
}

func tierResolution(t models.PriceTier) Resolution {
	return Resolution{
		Price:          t.SalePrice,
		CostPrice:      t.CostPrice,
		WholesalePrice: t.WholesalePrice,
		Basis:          t.Basis,
		TierID:         uuid.NullUUID{UUID: t.ID, Valid: true},
	}
}

// ResolvePrice picks the unit price for a variant given an optional quantity and weight.
//
// Flat variants, and tiered variants without tiers, use the variant prices. Otherwise the
// candidate tiers are those whose basis matches a supplied measure, ordered by
// (min_value, sale_price); the first whose half-open range contains the measure wins and the
// first candidate is the fallback when none does. With no measure at all the cheapest tier is
// returned for "starts from" display.
func ResolvePrice(v *models.Variant, quantity, weight *decimal.Decimal) Resolution {
	if v.PricingMode != models.PricingModeTiered || len(v.Tiers) == 0 {
		return flatResolution(v)
	}

	var candidates []models.PriceTier
	for _, t := range v.Tiers {
		if quantity != nil && t.Basis == models.TierBasisQuantity {
			candidates = append(candidates, t)
		}
		if weight != nil && t.Basis == models.TierBasisWeight {
			candidates = append(candidates, t)
		}
	}

	if len(candidates) == 0 {
		return tierResolution(cheapestTier(v.Tiers))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.MinValue.Equal(b.MinValue) {
			return a.MinValue.LessThan(b.MinValue)
		}
		return a.SalePrice.LessThan(b.SalePrice)
	})

	for _, t := range candidates {
		measure := quantity
		if t.Basis == models.TierBasisWeight {
			measure = weight
		}
		if measure != nil && t.Contains(*measure) {
			return tierResolution(t)
		}
	}
	return tierResolution(candidates[0])
}

// cheapestTier orders by sale_price then min_value. tiers must be non-empty.
func cheapestTier(tiers []models.PriceTier) models.PriceTier {
	best := tiers[0]
	for _, t := range tiers[1:] {
		switch {
		case t.SalePrice.LessThan(best.SalePrice):
			best = t
		case t.SalePrice.Equal(best.SalePrice) && t.MinValue.LessThan(best.MinValue):
			best = t
		}
	}
	return best
}

// EffectiveLowestPrice is the minimum tier sale price for tiered variants, else the flat sale price.
func EffectiveLowestPrice(v *models.Variant) decimal.Decimal {
	if v.PricingMode == models.PricingModeTiered && len(v.Tiers) > 0 {
		return cheapestTier(v.Tiers).SalePrice
	}
	return v.SalePrice
}

// BundleRegularPrice sums the effective lowest price of every constituent times its quantity.
// Items without a loaded variant contribute nothing.
func BundleRegularPrice(b *models.Bundle) decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.Items {
		if item.Variant == nil {
			continue
		}
		total = total.Add(EffectiveLowestPrice(item.Variant).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ValidateTiers rejects inverted or negative ranges, negative prices and overlapping ranges
// within the same basis and unit.
func ValidateTiers(tiers []models.PriceTier) error {
	groups := make(map[string][]models.PriceTier)
	for _, t := range tiers {
		if t.Basis != models.TierBasisQuantity && t.Basis != models.TierBasisWeight {
			return apperr.New(apperr.CodeValidation, fmt.Sprintf("unknown tier basis %q", t.Basis))
		}
		if t.MinValue.IsNegative() {
			return apperr.New(apperr.CodeValidation, "tier min_value must not be negative")
		}
		if t.MaxValue.Valid && !t.MaxValue.Decimal.GreaterThan(t.MinValue) {
			return apperr.New(apperr.CodeValidation, "tier max_value must exceed min_value")
		}
		if t.SalePrice.IsNegative() || t.CostPrice.IsNegative() || t.WholesalePrice.IsNegative() {
			return apperr.New(apperr.CodeValidation, "tier prices must not be negative")
		}
		key := t.Basis + "/" + t.Unit
		groups[key] = append(groups[key], t)
	}

	for key, group := range groups {
		sort.SliceStable(group, func(i, j int) bool { return group[i].MinValue.LessThan(group[j].MinValue) })
		for i := 1; i < len(group); i++ {
			prev := group[i-1]
			// unbounded tier swallows everything after it
			if !prev.MaxValue.Valid || prev.MaxValue.Decimal.GreaterThan(group[i].MinValue) {
				return apperr.New(apperr.CodeValidation,
					fmt.Sprintf("tier ranges overlap for %s at %s", key, group[i].MinValue.String()))
			}
		}
	}
	return nil
}

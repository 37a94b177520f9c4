package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pricing modes
const (
	PricingModeFlat   = "flat"
	PricingModeTiered = "tiered"
)

// Tier bases
const (
	TierBasisQuantity = "quantity"
	TierBasisWeight   = "weight"
)

// Product groups sellable variants
type Product struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Variant is the sellable unit carrying stock
type Variant struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	ProductID      uuid.UUID       `db:"product_id" json:"product_id"`
	ProductName    string          `db:"product_name" json:"product_name"`
	Name           string          `db:"name" json:"name"`
	SKU            string          `db:"sku" json:"sku"`
	PricingMode    string          `db:"pricing_mode" json:"pricing_mode"`
	SalePrice      decimal.Decimal `db:"sale_price" json:"sale_price"`
	CostPrice      decimal.Decimal `db:"cost_price" json:"cost_price"`
	WholesalePrice decimal.Decimal `db:"wholesale_price" json:"wholesale_price"`
	Stock          int             `db:"stock" json:"stock"`
	Tiers          []PriceTier     `db:"-" json:"tiers,omitempty"`
}

// DisplayName is the name order lines snapshot
func (v Variant) DisplayName() string {
	if v.ProductName == "" {
		return v.Name
	}
	return v.ProductName + " - " + v.Name
}

// PriceTier prices a half-open [min_value, max_value) slice of quantity or weight
type PriceTier struct {
	ID             uuid.UUID           `db:"id" json:"id"`
	VariantID      uuid.UUID           `db:"variant_id" json:"variant_id"`
	Basis          string              `db:"basis" json:"basis"`
	Unit           string              `db:"unit" json:"unit"`
	MinValue       decimal.Decimal     `db:"min_value" json:"min_value"`
	MaxValue       decimal.NullDecimal `db:"max_value" json:"max_value"`
	SalePrice      decimal.Decimal     `db:"sale_price" json:"sale_price"`
	CostPrice      decimal.Decimal     `db:"cost_price" json:"cost_price"`
	WholesalePrice decimal.Decimal     `db:"wholesale_price" json:"wholesale_price"`
}

// Contains applies the half-open range rule; an unset max is unbounded.
func (t PriceTier) Contains(v decimal.Decimal) bool {
	if v.LessThan(t.MinValue) {
		return false
	}
	if !t.MaxValue.Valid {
		return true
	}
	return v.LessThan(t.MaxValue.Decimal)
}

// Bundle is a fixed-price composite of variants
type Bundle struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	BundlePrice decimal.Decimal `db:"bundle_price" json:"bundle_price"`
	Items       []BundleItem    `db:"-" json:"items,omitempty"`
}

// BundleItem is one constituent of a bundle
type BundleItem struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BundleID  uuid.UUID `db:"bundle_id" json:"bundle_id"`
	VariantID uuid.UUID `db:"variant_id" json:"variant_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Variant   *Variant  `db:"-" json:"variant,omitempty"`
}

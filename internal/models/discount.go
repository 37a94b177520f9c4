package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Discount types
const (
	DiscountTypeProductOverride = "product_override"
	DiscountTypeCartSubtotal    = "cart_subtotal"
	DiscountTypeCoupon          = "coupon"
	DiscountTypeFlashSale       = "flash_sale"
	DiscountTypeAbandonedCart   = "abandoned_cart"
)

// Value types
const (
	ValueTypePercent = "percent"
	ValueTypeFixed   = "fixed"
)

// Discount is read-only configuration consumed by the discount engine
type Discount struct {
	ID                  uuid.UUID           `db:"id" json:"id"`
	Name                string              `db:"name" json:"name"`
	Code                *string             `db:"code" json:"code,omitempty"`
	DiscountType        string              `db:"discount_type" json:"discount_type"`
	ValueType           string              `db:"value_type" json:"value_type"`
	Value               decimal.Decimal     `db:"value" json:"value"`
	IsActive            bool                `db:"is_active" json:"is_active"`
	StartsAt            *time.Time          `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt              *time.Time          `db:"ends_at" json:"ends_at,omitempty"`
	Priority            int                 `db:"priority" json:"priority"`
	Stackable           bool                `db:"stackable" json:"stackable"`
	Exclusive           bool                `db:"exclusive" json:"exclusive"`
	MinCartSubtotal     decimal.NullDecimal `db:"min_cart_subtotal" json:"min_cart_subtotal"`
	MinAbandonedMinutes *int                `db:"min_abandoned_minutes" json:"min_abandoned_minutes,omitempty"`
	MaxProfitShare      decimal.Decimal     `db:"max_profit_share" json:"max_profit_share"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	TargetVariants      []uuid.UUID         `db:"-" json:"target_variants,omitempty"`
}

// IsCurrentlyActive checks the active flag and the [starts_at, ends_at] window.
func (d Discount) IsCurrentlyActive(now time.Time) bool {
	if !d.IsActive {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

// Targets reports whether the discount applies to the variant; an empty target set applies broadly.
func (d Discount) Targets(variantID uuid.UUID) bool {
	if len(d.TargetVariants) == 0 {
		return true
	}
	for _, id := range d.TargetVariants {
		if id == variantID {
			return true
		}
	}
	return false
}

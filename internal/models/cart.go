package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line types shared by cart items and order lines
const (
	LineTypeVariant = "variant"
	LineTypeBundle  = "bundle"
)

// Cart holds a user's lines until it is converted into an order
type Cart struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	IsConverted bool       `db:"is_converted" json:"is_converted"`
	Items       []CartItem `db:"-" json:"items"`
}

// ItemsTotal sums the snapshotted line totals
func (c *Cart) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// CartItem is either a variant line or a bundle line, never both
type CartItem struct {
	ID        uuid.UUID           `db:"id" json:"id"`
	CartID    uuid.UUID           `db:"cart_id" json:"cart_id"`
	LineType  string              `db:"line_type" json:"line_type"`
	VariantID uuid.NullUUID       `db:"variant_id" json:"variant_id"`
	BundleID  uuid.NullUUID       `db:"bundle_id" json:"bundle_id"`
	Quantity  int                 `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal     `db:"unit_price" json:"unit_price"`
	Weight    decimal.NullDecimal `db:"weight" json:"weight"`
	Variant   *Variant            `db:"-" json:"variant,omitempty"`
	Bundle    *Bundle             `db:"-" json:"bundle,omitempty"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Measure returns the weight the line was priced by, nil when it was priced by quantity only
func (i CartItem) Measure() *decimal.Decimal {
	if !i.Weight.Valid {
		return nil
	}
	w := i.Weight.Decimal
	return &w
}

func (i CartItem) IsVariantLine() bool { return i.LineType == LineTypeVariant && i.Variant != nil }
func (i CartItem) IsBundleLine() bool  { return i.LineType == LineTypeBundle && i.Bundle != nil }

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order types
const (
	OrderTypeNormal       = "normal"
	OrderTypeWholesale    = "wholesale"
	OrderTypeReplacement  = "replacement"
	OrderTypeExchange     = "exchange"
	OrderTypeCancellation = "cancellation"
)

// Delivery methods
const (
	DeliveryMethodDelivery = "delivery"
	DeliveryMethodPickup   = "pickup"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// IsIssueOrderType reports replacement, exchange and cancellation orders.
func IsIssueOrderType(orderType string) bool {
	switch orderType {
	case OrderTypeReplacement, OrderTypeExchange, OrderTypeCancellation:
		return true
	}
	return false
}

// IsRevenueOrderType reports order types that decrement stock and take marketing discounts.
func IsRevenueOrderType(orderType string) bool {
	return orderType == OrderTypeNormal || orderType == OrderTypeWholesale
}

// RequiresStaff reports order types only staff may create.
func RequiresStaff(orderType string) bool {
	return orderType == OrderTypeWholesale || IsIssueOrderType(orderType)
}

func ValidOrderType(orderType string) bool {
	return IsRevenueOrderType(orderType) || IsIssueOrderType(orderType)
}

func ValidDeliveryMethod(method string) bool {
	return method == DeliveryMethodDelivery || method == DeliveryMethodPickup
}

// Order is the immutable snapshot created from a cart
type Order struct {
	ID                    uuid.UUID          `db:"id" json:"id"`
	Code                  string             `db:"code" json:"code"`
	CustomerID            uuid.UUID          `db:"customer_id" json:"customer_id"`
	CreatedByID           uuid.UUID          `db:"created_by_id" json:"created_by_id"`
	CartID                uuid.NullUUID      `db:"cart_id" json:"cart_id"`
	OrderType             string             `db:"order_type" json:"order_type"`
	DeliveryMethod        string             `db:"delivery_method" json:"delivery_method"`
	Status                string             `db:"status" json:"status"`
	RelatedOrderID        uuid.NullUUID      `db:"related_order_id" json:"related_order_id"`
	FullName              string             `db:"full_name" json:"full_name"`
	CityID                int                `db:"city_id" json:"city_id"`
	City                  string             `db:"city" json:"city"`
	RegionID              int                `db:"region_id" json:"region_id"`
	Region                string             `db:"region" json:"region"`
	Location              string             `db:"location" json:"location"`
	ClientMobile2         *string            `db:"client_mobile2" json:"client_mobile2,omitempty"`
	ItemsTotal            decimal.Decimal    `db:"items_total" json:"items_total"`
	ShippingCost          decimal.Decimal    `db:"shipping_cost" json:"shipping_cost"`
	DiscountTotal         decimal.Decimal    `db:"discount_total" json:"discount_total"`
	GrandTotal            decimal.Decimal    `db:"grand_total" json:"grand_total"`
	DiscountBreakdown     *DiscountBreakdown `db:"discount_breakdown" json:"discount_breakdown,omitempty"`
	ProfitBeforeDiscounts decimal.Decimal    `db:"profit_before_discounts" json:"profit_before_discounts"`
	ProfitAfterDiscounts  decimal.Decimal    `db:"profit_after_discounts" json:"profit_after_discounts"`
	IsFreeShipping        bool               `db:"is_free_shipping" json:"is_free_shipping"`
	RestockProcessed      bool               `db:"restock_processed" json:"restock_processed"`
	IdempotencyKey        *string            `db:"idempotency_key" json:"-"`
	Notes                 string             `db:"notes" json:"notes"`
	CreatedAt             time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at" json:"updated_at"`
	Lines                 []OrderLine        `db:"-" json:"lines"`
}

func (o *Order) IsIssueOrder() bool { return IsIssueOrderType(o.OrderType) }

// ItemsTotalAfterDiscounts is what the customer pays for goods before shipping.
func (o *Order) ItemsTotalAfterDiscounts() decimal.Decimal {
	return o.ItemsTotal.Sub(o.DiscountTotal)
}

// OrderLine snapshots one cart line at order time
type OrderLine struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	OrderID     uuid.UUID       `db:"order_id" json:"order_id"`
	Position    int             `db:"position" json:"position"`
	LineType    string          `db:"line_type" json:"line_type"`
	VariantID   uuid.NullUUID   `db:"variant_id" json:"variant_id"`
	BundleID    uuid.NullUUID   `db:"bundle_id" json:"bundle_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	BundleName  string          `db:"bundle_name" json:"bundle_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal    decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// AppliedDiscount records one discount the engine applied
type AppliedDiscount struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	ValueType     string          `json:"value_type"`
	Value         decimal.Decimal `json:"value"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	Priority      int             `json:"priority"`
}

// DiscountBreakdown is stored as JSON on the order
type DiscountBreakdown struct {
	AppliedDiscounts    []AppliedDiscount `json:"applied_discounts"`
	EngineDiscountTotal decimal.Decimal   `json:"engine_discount_total"`
	ManualDiscount      decimal.Decimal   `json:"manual_discount"`
	CouponCode          string            `json:"coupon_code,omitempty"`
}

// Value implements driver.Valuer
func (b DiscountBreakdown) Value() (driver.Value, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner
func (b *DiscountBreakdown) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*b = DiscountBreakdown{}
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("unsupported discount breakdown type %T", src)
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// CreateOrder inserts the order header
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := nowUTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := s.exec(ctx, `
		INSERT INTO orders (
			id, code, customer_id, created_by_id, cart_id, order_type, delivery_method, status, related_order_id,
			full_name, city_id, city, region_id, region, location, client_mobile2,
			items_total, shipping_cost, discount_total, grand_total, discount_breakdown,
			profit_before_discounts, profit_after_discounts, is_free_shipping, restock_processed,
			idempotency_key, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Code, order.CustomerID, order.CreatedByID, order.CartID, order.OrderType,
		order.DeliveryMethod, order.Status, order.RelatedOrderID,
		order.FullName, order.CityID, order.City, order.RegionID, order.Region, order.Location, order.ClientMobile2,
		order.ItemsTotal, order.ShippingCost, order.DiscountTotal, order.GrandTotal, order.DiscountBreakdown,
		order.ProfitBeforeDiscounts, order.ProfitAfterDiscounts, order.IsFreeShipping, order.RestockProcessed,
		order.IdempotencyKey, order.Notes, order.CreatedAt, order.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Wrap(apperr.CodeConflict, err, "order code or idempotency key already used")
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// CreateOrderLine inserts a line snapshot
func (s *Store) CreateOrderLine(ctx context.Context, line *models.OrderLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	_, err := s.exec(ctx, `
		INSERT INTO order_lines (id, order_id, position, line_type, variant_id, bundle_id, product_name, bundle_name,
			quantity, unit_price, subtotal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID, line.OrderID, line.Position, line.LineType, line.VariantID, line.BundleID, line.ProductName, line.BundleName,
		line.Quantity, line.UnitPrice, line.Subtotal)
	if err != nil {
		return fmt.Errorf("failed to insert order line: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order with its lines
func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT * FROM orders WHERE id = ?", id)
}

// GetOrderForUpdate retrieves and row-locks an order. Must run inside WithTx.
func (s *Store) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT * FROM orders WHERE id = ?"+s.lockClause(), id)
}

func (s *Store) getOrder(ctx context.Context, query string, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.get(ctx, &order, query, id); err != nil {
		return nil, notFound(err, fmt.Sprintf("order %s", id))
	}

	lines, err := s.GetOrderLines(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

// GetOrderByIdempotencyKey returns nil when createdBy never used the key.
// Keys are scoped to the creating user.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, createdBy uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	err := s.get(ctx, &order,
		"SELECT * FROM orders WHERE created_by_id = ? AND idempotency_key = ?", createdBy, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lines, err := s.GetOrderLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

// OrderCodeExists checks for a code collision
func (s *Store) OrderCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.get(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM orders WHERE code = ?)", code)
	return exists, err
}

// GetOrdersByCustomer lists a customer's orders, newest first
func (s *Store) GetOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := s.selectAll(ctx, &orders,
		"SELECT * FROM orders WHERE customer_id = ? ORDER BY created_at DESC", customerID)
	return orders, err
}

// GetOrderLines retrieves all lines for an order
func (s *Store) GetOrderLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := s.selectAll(ctx, &lines, "SELECT * FROM order_lines WHERE order_id = ? ORDER BY position", orderID)
	return lines, err
}

// MarkRestockProcessed flips restock_processed once; false means another call already did.
func (s *Store) MarkRestockProcessed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	affected, err := s.exec(ctx,
		"UPDATE orders SET restock_processed = ?, updated_at = ? WHERE id = ? AND restock_processed = ?",
		true, nowUTC(), orderID, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark restock processed: %w", err)
	}
	return affected == 1, nil
}

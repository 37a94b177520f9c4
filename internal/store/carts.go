package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// CreateCart opens a fresh cart for a user
func (s *Store) CreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	now := nowUTC()
	cart := &models.Cart{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: &now,
	}
	_, err := s.exec(ctx,
		"INSERT INTO carts (id, user_id, created_at, updated_at, is_converted) VALUES (?, ?, ?, ?, ?)",
		cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// GetActiveCartByUser returns the newest unconverted cart, or nil
func (s *Store) GetActiveCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.get(ctx, &cart, `
		SELECT * FROM carts WHERE user_id = ? AND is_converted = ?
		ORDER BY created_at DESC LIMIT 1`, userID, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetCartByID retrieves a cart with its lines, variants and bundles loaded
func (s *Store) GetCartByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := s.get(ctx, &cart, "SELECT * FROM carts WHERE id = ?", id); err != nil {
		return nil, notFound(err, fmt.Sprintf("cart %s", id))
	}

	items, err := s.getCartItems(ctx, id)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (s *Store) getCartItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := s.selectAll(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = ? ORDER BY id", cartID); err != nil {
		return nil, err
	}

	var variantIDs, bundleIDs []uuid.UUID
	for _, item := range items {
		if item.VariantID.Valid {
			variantIDs = append(variantIDs, item.VariantID.UUID)
		}
		if item.BundleID.Valid {
			bundleIDs = append(bundleIDs, item.BundleID.UUID)
		}
	}

	variants, err := s.GetVariantsByIDs(ctx, variantIDs)
	if err != nil {
		return nil, err
	}
	bundles, err := s.GetBundlesByIDs(ctx, bundleIDs)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].VariantID.Valid {
			items[i].Variant = variants[items[i].VariantID.UUID]
		}
		if items[i].BundleID.Valid {
			items[i].Bundle = bundles[items[i].BundleID.UUID]
		}
	}
	return items, nil
}

// InsertCartItem adds a new line
func (s *Store) InsertCartItem(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := s.exec(ctx, `
		INSERT INTO cart_items (id, cart_id, line_type, variant_id, bundle_id, quantity, unit_price, weight)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CartID, item.LineType, item.VariantID, item.BundleID, item.Quantity, item.UnitPrice, item.Weight)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

// UpdateCartItem rewrites quantity, weight and the price snapshot of a line
func (s *Store) UpdateCartItem(ctx context.Context, item *models.CartItem) error {
	affected, err := s.exec(ctx,
		"UPDATE cart_items SET quantity = ?, unit_price = ?, weight = ? WHERE id = ? AND cart_id = ?",
		item.Quantity, item.UnitPrice, item.Weight, item.ID, item.CartID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	if affected == 0 {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("cart item %s not found", item.ID))
	}
	return nil
}

// DeleteCartItem removes a line
func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	affected, err := s.exec(ctx, "DELETE FROM cart_items WHERE id = ? AND cart_id = ?", itemID, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	if affected == 0 {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("cart item %s not found", itemID))
	}
	return nil
}

// TouchCart bumps updated_at, which drives abandoned-cart eligibility
func (s *Store) TouchCart(ctx context.Context, cartID uuid.UUID, at time.Time) error {
	_, err := s.exec(ctx, "UPDATE carts SET updated_at = ? WHERE id = ?", at.UTC(), cartID)
	return err
}

// MarkCartConverted flips is_converted exactly once.
// Returns a CONFLICT error when the cart was already converted.
func (s *Store) MarkCartConverted(ctx context.Context, cartID uuid.UUID) error {
	affected, err := s.exec(ctx,
		"UPDATE carts SET is_converted = ? WHERE id = ? AND is_converted = ?", true, cartID, false)
	if err != nil {
		return fmt.Errorf("failed to mark cart converted: %w", err)
	}
	if affected == 0 {
		return apperr.New(apperr.CodeConflict, "cart already converted to an order")
	}
	return nil
}

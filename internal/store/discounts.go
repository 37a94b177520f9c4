package store

import (
	"context"
	"fmt"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

type discountTarget struct {
	DiscountID uuid.UUID `db:"discount_id"`
	VariantID  uuid.UUID `db:"variant_id"`
}

// CreateDiscount inserts a discount rule and its target variants
func (s *Store) CreateDiscount(ctx context.Context, discount *models.Discount) error {
	if discount.ID == uuid.Nil {
		discount.ID = uuid.New()
	}
	discount.CreatedAt = nowUTC()

	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, `
			INSERT INTO discounts (id, name, code, discount_type, value_type, value, is_active, starts_at, ends_at,
				priority, stackable, exclusive, min_cart_subtotal, min_abandoned_minutes, max_profit_share, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			discount.ID, discount.Name, discount.Code, discount.DiscountType, discount.ValueType, discount.Value,
			discount.IsActive, discount.StartsAt, discount.EndsAt, discount.Priority, discount.Stackable,
			discount.Exclusive, discount.MinCartSubtotal, discount.MinAbandonedMinutes, discount.MaxProfitShare,
			discount.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert discount: %w", err)
		}

		for _, variantID := range discount.TargetVariants {
			if _, err := tx.exec(ctx,
				"INSERT INTO discount_target_variants (discount_id, variant_id) VALUES (?, ?)",
				discount.ID, variantID); err != nil {
				return fmt.Errorf("failed to insert discount target: %w", err)
			}
		}
		return nil
	})
}

// ListDiscounts reads every discount with its targets, as committed at call time
func (s *Store) ListDiscounts(ctx context.Context) ([]models.Discount, error) {
	var discounts []models.Discount
	if err := s.selectAll(ctx, &discounts, "SELECT * FROM discounts ORDER BY priority, created_at"); err != nil {
		return nil, err
	}

	var targets []discountTarget
	if err := s.selectAll(ctx, &targets, "SELECT discount_id, variant_id FROM discount_target_variants"); err != nil {
		return nil, err
	}

	byDiscount := make(map[uuid.UUID][]uuid.UUID, len(targets))
	for _, t := range targets {
		byDiscount[t.DiscountID] = append(byDiscount[t.DiscountID], t.VariantID)
	}
	for i := range discounts {
		discounts[i].TargetVariants = byDiscount[discounts[i].ID]
	}
	return discounts, nil
}

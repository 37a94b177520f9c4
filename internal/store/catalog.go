package store

import (
	"context"
	"fmt"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

const variantColumns = `
	v.id, v.product_id, p.name AS product_name, v.name, v.sku, v.pricing_mode,
	v.sale_price, v.cost_price, v.wholesale_price, v.stock`

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	product.CreatedAt = nowUTC()
	_, err := s.exec(ctx,
		"INSERT INTO products (id, name, is_active, created_at) VALUES (?, ?, ?, ?)",
		product.ID, product.Name, product.IsActive, product.CreatedAt)
	return err
}

// CreateVariant inserts a variant; tiers are stored separately with CreatePriceTier
func (s *Store) CreateVariant(ctx context.Context, variant *models.Variant) error {
	if variant.ID == uuid.Nil {
		variant.ID = uuid.New()
	}
	if variant.PricingMode == "" {
		variant.PricingMode = models.PricingModeFlat
	}
	_, err := s.exec(ctx, `
		INSERT INTO variants (id, product_id, name, sku, pricing_mode, sale_price, cost_price, wholesale_price, stock)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		variant.ID, variant.ProductID, variant.Name, variant.SKU, variant.PricingMode,
		variant.SalePrice, variant.CostPrice, variant.WholesalePrice, variant.Stock)
	return err
}

// CreatePriceTier inserts a tier row
func (s *Store) CreatePriceTier(ctx context.Context, tier *models.PriceTier) error {
	if tier.ID == uuid.Nil {
		tier.ID = uuid.New()
	}
	_, err := s.exec(ctx, `
		INSERT INTO price_tiers (id, variant_id, basis, unit, min_value, max_value, sale_price, cost_price, wholesale_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tier.ID, tier.VariantID, tier.Basis, tier.Unit, tier.MinValue, tier.MaxValue,
		tier.SalePrice, tier.CostPrice, tier.WholesalePrice)
	return err
}

// GetVariantByID retrieves a variant with its tiers
func (s *Store) GetVariantByID(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	err := s.get(ctx, &variant,
		"SELECT"+variantColumns+" FROM variants v JOIN products p ON p.id = v.product_id WHERE v.id = ?", id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("variant %s", id))
	}

	tiers, err := s.GetPriceTiers(ctx, id)
	if err != nil {
		return nil, err
	}
	variant.Tiers = tiers
	return &variant, nil
}

// GetVariantsByIDs retrieves multiple variants (with tiers) keyed by id
func (s *Store) GetVariantsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Variant, error) {
	result := make(map[uuid.UUID]*models.Variant, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var variants []models.Variant
	err := s.selectIn(ctx, &variants,
		"SELECT"+variantColumns+" FROM variants v JOIN products p ON p.id = v.product_id WHERE v.id IN (?)", ids)
	if err != nil {
		return nil, err
	}

	var tiers []models.PriceTier
	if err := s.selectIn(ctx, &tiers,
		"SELECT * FROM price_tiers WHERE variant_id IN (?) ORDER BY min_value", ids); err != nil {
		return nil, err
	}

	for i := range variants {
		result[variants[i].ID] = &variants[i]
	}
	for _, tier := range tiers {
		if v, ok := result[tier.VariantID]; ok {
			v.Tiers = append(v.Tiers, tier)
		}
	}
	return result, nil
}

// GetPriceTiers returns a variant's tiers ordered by range start
func (s *Store) GetPriceTiers(ctx context.Context, variantID uuid.UUID) ([]models.PriceTier, error) {
	var tiers []models.PriceTier
	err := s.selectAll(ctx, &tiers,
		"SELECT * FROM price_tiers WHERE variant_id = ? ORDER BY min_value", variantID)
	return tiers, err
}

// CreateBundle inserts a bundle and its items
func (s *Store) CreateBundle(ctx context.Context, bundle *models.Bundle) error {
	if bundle.ID == uuid.Nil {
		bundle.ID = uuid.New()
	}
	if _, err := s.exec(ctx,
		"INSERT INTO bundles (id, name, bundle_price) VALUES (?, ?, ?)",
		bundle.ID, bundle.Name, bundle.BundlePrice); err != nil {
		return err
	}

	for i := range bundle.Items {
		item := &bundle.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.BundleID = bundle.ID
		if _, err := s.exec(ctx,
			"INSERT INTO bundle_items (id, bundle_id, variant_id, quantity) VALUES (?, ?, ?, ?)",
			item.ID, item.BundleID, item.VariantID, item.Quantity); err != nil {
			return fmt.Errorf("failed to insert bundle item: %w", err)
		}
	}
	return nil
}

// GetBundleByID retrieves a bundle with items and their variants
func (s *Store) GetBundleByID(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	bundles, err := s.GetBundlesByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	bundle, ok := bundles[id]
	if !ok {
		return nil, notFound(errNoRows, fmt.Sprintf("bundle %s", id))
	}
	return bundle, nil
}

// GetBundlesByIDs retrieves bundles with composition keyed by id
func (s *Store) GetBundlesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Bundle, error) {
	result := make(map[uuid.UUID]*models.Bundle, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var bundles []models.Bundle
	if err := s.selectIn(ctx, &bundles, "SELECT * FROM bundles WHERE id IN (?)", ids); err != nil {
		return nil, err
	}
	var items []models.BundleItem
	if err := s.selectIn(ctx, &items,
		"SELECT * FROM bundle_items WHERE bundle_id IN (?) ORDER BY variant_id", ids); err != nil {
		return nil, err
	}

	variantIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		variantIDs = append(variantIDs, item.VariantID)
	}
	variants, err := s.GetVariantsByIDs(ctx, variantIDs)
	if err != nil {
		return nil, err
	}

	for i := range bundles {
		result[bundles[i].ID] = &bundles[i]
	}
	for _, item := range items {
		bundle, ok := result[item.BundleID]
		if !ok {
			continue
		}
		item.Variant = variants[item.VariantID]
		bundle.Items = append(bundle.Items, item)
	}
	return result, nil
}

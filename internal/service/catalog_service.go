package service

import (
	"context"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogService answers price and stock questions about variants and bundles
type CatalogService struct {
	store  *store.Store
	ledger *InventoryLedger
}

func NewCatalogService(store *store.Store, ledger *InventoryLedger) *CatalogService {
	return &CatalogService{store: store, ledger: ledger}
}

// VariantQuote is a resolved price plus the "starts from" figure
type VariantQuote struct {
	VariantID   uuid.UUID       `json:"variant_id"`
	DisplayName string          `json:"display_name"`
	PricingMode string          `json:"pricing_mode"`
	StartsFrom  decimal.Decimal `json:"starts_from"`
	Resolution
}

// BundleQuote compares the bundle price to buying the constituents separately
type BundleQuote struct {
	BundleID     uuid.UUID       `json:"bundle_id"`
	Name         string          `json:"name"`
	BundlePrice  decimal.Decimal `json:"bundle_price"`
	RegularPrice decimal.Decimal `json:"regular_price"`
	Savings      decimal.Decimal `json:"savings"`
}

// StockQuote is the mirrored availability of a variant
type StockQuote struct {
	VariantID uuid.UUID `json:"variant_id"`
	Available int       `json:"available"`
}

// QuoteVariant resolves a variant price for an optional quantity and weight
func (s *CatalogService) QuoteVariant(ctx context.Context, variantID uuid.UUID, quantity, weight *decimal.Decimal) (*VariantQuote, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.QuoteVariant")
	defer span.End()

	variant, err := s.store.GetVariantByID(ctx, variantID)
	if err != nil {
		return nil, err
	}
	return &VariantQuote{
		VariantID:   variant.ID,
		DisplayName: variant.DisplayName(),
		PricingMode: variant.PricingMode,
		StartsFrom:  EffectiveLowestPrice(variant),
		Resolution:  ResolvePrice(variant, quantity, weight),
	}, nil
}

// QuoteBundle prices a bundle against its regular price
func (s *CatalogService) QuoteBundle(ctx context.Context, bundleID uuid.UUID) (*BundleQuote, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.QuoteBundle")
	defer span.End()

	bundle, err := s.store.GetBundleByID(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	regular := BundleRegularPrice(bundle)
	return &BundleQuote{
		BundleID:     bundle.ID,
		Name:         bundle.Name,
		BundlePrice:  bundle.BundlePrice,
		RegularPrice: regular,
		Savings:      decimal.Max(regular.Sub(bundle.BundlePrice), decimal.Zero),
	}, nil
}

// Stock reports availability from the mirror, falling back to the database
func (s *CatalogService) Stock(ctx context.Context, variantID uuid.UUID) (*StockQuote, error) {
	available, err := s.ledger.Available(ctx, variantID)
	if err != nil {
		return nil, err
	}
	return &StockQuote{VariantID: variantID, Available: available}, nil
}

// AddPriceTier stores a tier after checking it against the variant's existing tiers
func (s *CatalogService) AddPriceTier(ctx context.Context, tier *models.PriceTier) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.AddPriceTier")
	defer span.End()

	return s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.GetVariantByID(ctx, tier.VariantID); err != nil {
			return err
		}
		existing, err := tx.GetPriceTiers(ctx, tier.VariantID)
		if err != nil {
			return err
		}
		if err := ValidateTiers(append(existing, *tier)); err != nil {
			return err
		}
		return tx.CreatePriceTier(ctx, tier)
	})
}

package service

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService maintains cart lines and their price snapshots
type CartService struct {
	store  *store.Store
	now    func() time.Time
	logger *zap.Logger
}

// NewCartService creates a cart service; now defaults to the wall clock when nil
func NewCartService(store *store.Store, now func() time.Time) *CartService {
	if now == nil {
		now = time.Now
	}
	return &CartService{store: store, now: now, logger: util.GetLogger()}
}

// AddVariantRequest adds or merges a variant line
type AddVariantRequest struct {
	VariantID uuid.UUID        `json:"variant_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	Weight    *decimal.Decimal `json:"weight,omitempty"`
}

// AddBundleRequest adds or merges a bundle line
type AddBundleRequest struct {
	BundleID uuid.UUID `json:"bundle_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
}

// EnsureCart returns the user's open cart, creating one after a previous conversion
func (s *CartService) EnsureCart(ctx context.Context, user *models.User) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.EnsureCart")
	defer span.End()

	cart, err := s.store.GetActiveCartByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return s.store.GetCartByID(ctx, cart.ID)
	}
	return s.store.CreateCart(ctx, user.ID)
}

// GetCart returns a cart its owner or staff may see
func (s *CartService) GetCart(ctx context.Context, actor *models.User, cartID uuid.UUID) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	cart, err := s.store.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !actor.HasStaffPrivilege() && cart.UserID != actor.ID {
		return nil, apperr.New(apperr.CodeForbidden, "cart does not belong to the acting user")
	}
	return cart, nil
}

// AddVariant snapshots the resolved price for the merged quantity
func (s *CartService) AddVariant(ctx context.Context, actor *models.User, cartID uuid.UUID, req *AddVariantRequest) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddVariant")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	if req.Weight != nil && !req.Weight.IsPositive() {
		return nil, apperr.New(apperr.CodeValidation, "weight must be positive")
	}

	return s.mutate(ctx, actor, cartID, func(tx *store.Store, cart *models.Cart) error {
		variant, err := tx.GetVariantByID(ctx, req.VariantID)
		if err != nil {
			return err
		}

		existing := findLine(cart, func(item models.CartItem) bool {
			return item.VariantID.Valid && item.VariantID.UUID == variant.ID
		})
		quantity := req.Quantity
		weight := decimal.NullDecimal{}
		if req.Weight != nil {
			weight = decimal.NewNullDecimal(*req.Weight)
		}
		if existing != nil {
			quantity += existing.Quantity
			weight = mergeWeight(existing.Weight, weight)
		}
		if err := checkVariantStock(variant, quantity); err != nil {
			return err
		}

		line := models.CartItem{Quantity: quantity, Weight: weight}
		q := decimal.NewFromInt(int64(quantity))
		price := ResolvePrice(variant, &q, line.Measure()).Price

		if existing != nil {
			existing.Quantity = quantity
			existing.Weight = weight
			existing.UnitPrice = price
			return tx.UpdateCartItem(ctx, existing)
		}
		return tx.InsertCartItem(ctx, &models.CartItem{
			CartID:    cart.ID,
			LineType:  models.LineTypeVariant,
			VariantID: uuid.NullUUID{UUID: variant.ID, Valid: true},
			Quantity:  quantity,
			UnitPrice: price,
			Weight:    weight,
		})
	})
}

// AddBundle snapshots the bundle price and checks every constituent
func (s *CartService) AddBundle(ctx context.Context, actor *models.User, cartID uuid.UUID, req *AddBundleRequest) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddBundle")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, cartID, func(tx *store.Store, cart *models.Cart) error {
		bundle, err := tx.GetBundleByID(ctx, req.BundleID)
		if err != nil {
			return err
		}

		existing := findLine(cart, func(item models.CartItem) bool {
			return item.BundleID.Valid && item.BundleID.UUID == bundle.ID
		})
		quantity := req.Quantity
		if existing != nil {
			quantity += existing.Quantity
		}
		if err := checkBundleStock(bundle, quantity); err != nil {
			return err
		}

		if existing != nil {
			existing.Quantity = quantity
			existing.UnitPrice = bundle.BundlePrice
			return tx.UpdateCartItem(ctx, existing)
		}
		return tx.InsertCartItem(ctx, &models.CartItem{
			CartID:    cart.ID,
			LineType:  models.LineTypeBundle,
			BundleID:  uuid.NullUUID{UUID: bundle.ID, Valid: true},
			Quantity:  quantity,
			UnitPrice: bundle.BundlePrice,
		})
	})
}

// UpdateQuantity sets a line's quantity, re-resolving tiered variant prices
func (s *CartService) UpdateQuantity(ctx context.Context, actor *models.User, cartID, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	if quantity <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be greater than 0").
			WithDetails(map[string]string{"quantity": "must be greater than 0"})
	}

	return s.mutate(ctx, actor, cartID, func(tx *store.Store, cart *models.Cart) error {
		item := findLine(cart, func(item models.CartItem) bool { return item.ID == itemID })
		if item == nil {
			return apperr.New(apperr.CodeNotFound, fmt.Sprintf("cart item %s not found", itemID))
		}

		switch {
		case item.IsVariantLine():
			if err := checkVariantStock(item.Variant, quantity); err != nil {
				return err
			}
			q := decimal.NewFromInt(int64(quantity))
			item.UnitPrice = ResolvePrice(item.Variant, &q, item.Measure()).Price
		case item.IsBundleLine():
			if err := checkBundleStock(item.Bundle, quantity); err != nil {
				return err
			}
		}
		item.Quantity = quantity
		return tx.UpdateCartItem(ctx, item)
	})
}

// RemoveItem deletes a line
func (s *CartService) RemoveItem(ctx context.Context, actor *models.User, cartID, itemID uuid.UUID) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	return s.mutate(ctx, actor, cartID, func(tx *store.Store, cart *models.Cart) error {
		return tx.DeleteCartItem(ctx, cart.ID, itemID)
	})
}

// mutate runs fn against an open, owned cart, bumps updated_at and returns the reloaded cart
func (s *CartService) mutate(ctx context.Context, actor *models.User, cartID uuid.UUID, fn func(tx *store.Store, cart *models.Cart) error) (*models.Cart, error) {
	var updated *models.Cart
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		cart, err := tx.GetCartByID(ctx, cartID)
		if err != nil {
			return err
		}
		if !actor.HasStaffPrivilege() && cart.UserID != actor.ID {
			return apperr.New(apperr.CodeForbidden, "cart does not belong to the acting user")
		}
		if cart.IsConverted {
			return apperr.New(apperr.CodeConflict, "cart already converted to an order")
		}

		if err := fn(tx, cart); err != nil {
			return err
		}
		if err := tx.TouchCart(ctx, cart.ID, s.now()); err != nil {
			return err
		}

		updated, err = tx.GetCartByID(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// mergeWeight adds the weight of a repeated add to the line's weight
func mergeWeight(current, added decimal.NullDecimal) decimal.NullDecimal {
	switch {
	case current.Valid && added.Valid:
		return decimal.NewNullDecimal(current.Decimal.Add(added.Decimal))
	case added.Valid:
		return added
	default:
		return current
	}
}

func findLine(cart *models.Cart, match func(models.CartItem) bool) *models.CartItem {
	for i := range cart.Items {
		if match(cart.Items[i]) {
			return &cart.Items[i]
		}
	}
	return nil
}

func checkVariantStock(variant *models.Variant, quantity int) error {
	if variant.Stock < quantity {
		return apperr.InsufficientStock(apperr.StockShortage{
			VariantID: variant.ID.String(),
			Requested: quantity,
			Available: variant.Stock,
		})
	}
	return nil
}

func checkBundleStock(bundle *models.Bundle, quantity int) error {
	for _, bi := range bundle.Items {
		if bi.Variant == nil {
			return apperr.New(apperr.CodeNotFound, fmt.Sprintf("variant %s not found", bi.VariantID))
		}
		if err := checkVariantStock(bi.Variant, bi.Quantity*quantity); err != nil {
			return err
		}
	}
	return nil
}

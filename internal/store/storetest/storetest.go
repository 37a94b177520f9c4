// Package storetest opens migrated in-memory SQLite stores and seeds fixtures for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// New returns a freshly migrated store private to the test
func New(t testing.TB) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := store.NewStore(store.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// Dec parses a decimal literal
func Dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// UserOption tweaks a seeded user
type UserOption func(*models.User)

func AsAdmin() UserOption {
	return func(u *models.User) { u.Role = models.RoleAdmin }
}

func AsStaff() UserOption {
	return func(u *models.User) { u.IsStaff = true }
}

func Inactive() UserOption {
	return func(u *models.User) { u.IsActive = false }
}

// User seeds an active customer with their first cart
func User(t testing.TB, s *store.Store, opts ...UserOption) (*models.User, *models.Cart) {
	t.Helper()

	user := &models.User{
		Phone:    "07" + uuid.NewString()[:9],
		Role:     models.RoleCustomer,
		IsActive: true,
	}
	for _, opt := range opts {
		opt(user)
	}
	cart, err := s.CreateUser(context.Background(), user)
	require.NoError(t, err)
	return user, cart
}

// Variant seeds a flat-priced variant under a new product
func Variant(t testing.TB, s *store.Store, sale, cost string, stock int) *models.Variant {
	t.Helper()
	return newVariant(t, s, models.PricingModeFlat, sale, cost, stock)
}

// TieredVariant seeds a variant priced by its tiers; add them with CreatePriceTier
func TieredVariant(t testing.TB, s *store.Store, sale, cost string, stock int) *models.Variant {
	t.Helper()
	return newVariant(t, s, models.PricingModeTiered, sale, cost, stock)
}

func newVariant(t testing.TB, s *store.Store, mode, sale, cost string, stock int) *models.Variant {
	t.Helper()
	ctx := context.Background()

	product := &models.Product{Name: "Product " + uuid.NewString()[:8], IsActive: true}
	require.NoError(t, s.CreateProduct(ctx, product))

	variant := &models.Variant{
		ProductID:      product.ID,
		Name:           "Default",
		SKU:            "SKU-" + uuid.NewString()[:8],
		PricingMode:    mode,
		SalePrice:      Dec(sale),
		CostPrice:      Dec(cost),
		WholesalePrice: Dec(cost),
		Stock:          stock,
	}
	require.NoError(t, s.CreateVariant(ctx, variant))

	loaded, err := s.GetVariantByID(ctx, variant.ID)
	require.NoError(t, err)
	return loaded
}

// Bundle seeds a bundle of the given variants and quantities
func Bundle(t testing.TB, s *store.Store, price string, items map[*models.Variant]int) *models.Bundle {
	t.Helper()
	ctx := context.Background()

	bundle := &models.Bundle{Name: "Bundle " + uuid.NewString()[:8], BundlePrice: Dec(price)}
	for variant, quantity := range items {
		bundle.Items = append(bundle.Items, models.BundleItem{VariantID: variant.ID, Quantity: quantity})
	}
	require.NoError(t, s.CreateBundle(ctx, bundle))

	loaded, err := s.GetBundleByID(ctx, bundle.ID)
	require.NoError(t, err)
	return loaded
}

// VariantLine puts a variant line into a cart at the given unit price
func VariantLine(t testing.TB, s *store.Store, cart *models.Cart, variant *models.Variant, quantity int, unitPrice string) {
	t.Helper()
	require.NoError(t, s.InsertCartItem(context.Background(), &models.CartItem{
		CartID:    cart.ID,
		LineType:  models.LineTypeVariant,
		VariantID: uuid.NullUUID{UUID: variant.ID, Valid: true},
		Quantity:  quantity,
		UnitPrice: Dec(unitPrice),
	}))
}

// BundleLine puts a bundle line into a cart at the bundle price
func BundleLine(t testing.TB, s *store.Store, cart *models.Cart, bundle *models.Bundle, quantity int) {
	t.Helper()
	require.NoError(t, s.InsertCartItem(context.Background(), &models.CartItem{
		CartID:    cart.ID,
		LineType:  models.LineTypeBundle,
		BundleID:  uuid.NullUUID{UUID: bundle.ID, Valid: true},
		Quantity:  quantity,
		UnitPrice: bundle.BundlePrice,
	}))
}

// ShippingProfile seeds a complete delivery profile
func ShippingProfile(t testing.TB, s *store.Store, userID uuid.UUID) *models.ShippingProfile {
	t.Helper()
	profile := &models.ShippingProfile{
		UserID:   userID,
		FullName: "Test Customer",
		CityID:   1,
		City:     "Baghdad",
		RegionID: 10,
		Region:   "Karrada",
		Location: "Street 62, house 14",
	}
	require.NoError(t, s.UpsertShippingProfile(context.Background(), profile))
	return profile
}

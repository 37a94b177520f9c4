package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// CreateUser inserts a user together with their first cart
func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.Cart, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	user.CreatedAt = nowUTC()

	var cart *models.Cart
	err := s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, `
			INSERT INTO users (id, phone, role, is_active, is_staff, is_superuser, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			user.ID, user.Phone, user.Role, user.IsActive, user.IsStaff, user.IsSuperuser, user.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		var err error
		cart, err = tx.CreateCart(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// GetUserByID retrieves a user
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.get(ctx, &user, "SELECT * FROM users WHERE id = ?", id); err != nil {
		return nil, notFound(err, fmt.Sprintf("user %s", id))
	}
	return &user, nil
}

// GetShippingProfile returns nil without error when the user has no profile yet
func (s *Store) GetShippingProfile(ctx context.Context, userID uuid.UUID) (*models.ShippingProfile, error) {
	var profile models.ShippingProfile
	err := s.get(ctx, &profile, "SELECT * FROM shipping_profiles WHERE user_id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertShippingProfile creates or replaces the user's profile
func (s *Store) UpsertShippingProfile(ctx context.Context, profile *models.ShippingProfile) error {
	_, err := s.exec(ctx, `
		INSERT INTO shipping_profiles (user_id, full_name, city_id, city, region_id, region, location, client_mobile2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = excluded.full_name,
			city_id = excluded.city_id,
			city = excluded.city,
			region_id = excluded.region_id,
			region = excluded.region,
			location = excluded.location,
			client_mobile2 = excluded.client_mobile2`,
		profile.UserID, profile.FullName, profile.CityID, profile.City,
		profile.RegionID, profile.Region, profile.Location, profile.ClientMobile2)
	if err != nil {
		return fmt.Errorf("failed to upsert shipping profile: %w", err)
	}
	return nil
}

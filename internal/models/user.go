package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleCustomer = "customer"
)

// User is the acting identity supplied by the authentication layer
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Phone       string    `db:"phone" json:"phone"`
	Role        string    `db:"role" json:"role"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	IsStaff     bool      `db:"is_staff" json:"is_staff"`
	IsSuperuser bool      `db:"is_superuser" json:"is_superuser"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (u User) IsAdmin() bool    { return u.Role == RoleAdmin }
func (u User) IsEmployee() bool { return u.Role == RoleEmployee }

// HasStaffPrivilege gates admin-only order types and acting on behalf of customers.
func (u User) HasStaffPrivilege() bool {
	return u.IsAdmin() || u.IsEmployee() || u.IsStaff || u.IsSuperuser
}

// ShippingProfile is the per-customer delivery record orders snapshot from
type ShippingProfile struct {
	UserID        uuid.UUID `db:"user_id" json:"-"`
	FullName      string    `db:"full_name" json:"full_name"`
	CityID        int       `db:"city_id" json:"city_id" validate:"required,gt=0"`
	City          string    `db:"city" json:"city" validate:"required,max=50"`
	RegionID      int       `db:"region_id" json:"region_id" validate:"required,gt=0"`
	Region        string    `db:"region" json:"region" validate:"required,max=50"`
	Location      string    `db:"location" json:"location" validate:"required"`
	ClientMobile2 *string   `db:"client_mobile2" json:"client_mobile2,omitempty" validate:"omitempty,mobile"`
}

// HasShippingInfo reports whether every required delivery field is present.
func (p *ShippingProfile) HasShippingInfo() bool {
	if p == nil {
		return false
	}
	return p.CityID > 0 && p.City != "" && p.RegionID > 0 && p.Region != "" && p.Location != ""
}

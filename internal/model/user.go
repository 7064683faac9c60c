package model

import (
	"time"
)

// User account of any role
type User struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement;comment:user id" json:"id"`
	Username       string     `gorm:"type:varchar(50);uniqueIndex;not null;comment:login name" json:"username"`
	Email          string     `gorm:"type:varchar(100);uniqueIndex;not null;comment:email" json:"email"`
	PasswordHash   string     `gorm:"type:varchar(255);not null;comment:bcrypt hash" json:"-"`
	Salt           string     `gorm:"type:varchar(32);not null;comment:password salt" json:"-"`
	Role           string     `gorm:"type:varchar(20);not null;index;comment:customer, trader, admin" json:"role"`
	Status         string     `gorm:"type:varchar(20);not null;index;comment:pending, active, disabled" json:"status"`
	ViolationCount int        `gorm:"not null;default:0;comment:violations since last reset" json:"violation_count"`
	LoyaltyPoints  int64      `gorm:"not null;default:0;comment:loyalty point balance" json:"loyalty_points"`
	LastLoginAt    *time.Time `gorm:"comment:last login time" json:"last_login_at,omitempty"`
	LastLoginIP    *string    `gorm:"type:varchar(45);comment:last login ip" json:"last_login_ip,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName set name
func (User) TableName() string {
	return "users"
}

// User roles
const (
	RoleCustomer = "customer"
	RoleTrader   = "trader"
	RoleAdmin    = "admin"
)

// User status
const (
	UserStatusPending  = "pending"
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// IsActive check if user is active
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsDisabled check if user is disabled
func (u *User) IsDisabled() bool {
	return u.Status == UserStatusDisabled
}

func (u *User) IsTrader() bool {
	return u.Role == RoleTrader
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsValidRole reports whether role is one of the three account roles
func IsValidRole(role string) bool {
	return role == RoleCustomer || role == RoleTrader || role == RoleAdmin
}

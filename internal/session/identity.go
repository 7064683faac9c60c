package session

import (
	"time"

	"marketplace/internal/model"
)

// Capability is the closed set of things an authenticated caller can be
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityCustomer
	CapabilityTrader
	CapabilityAdmin
)

var roleCapabilities = map[string]Capability{
	model.RoleCustomer: CapabilityCustomer,
	model.RoleTrader:   CapabilityTrader,
	model.RoleAdmin:    CapabilityAdmin,
}

// CapabilityFromRole maps a stored account role to its capability
func CapabilityFromRole(role string) (Capability, bool) {
	c, ok := roleCapabilities[role]
	return c, ok
}

func (c Capability) String() string {
	switch c {
	case CapabilityCustomer:
		return model.RoleCustomer
	case CapabilityTrader:
		return model.RoleTrader
	case CapabilityAdmin:
		return model.RoleAdmin
	default:
		return "none"
	}
}

// Identity authenticated caller of one request
type Identity struct {
	UserID     uint64
	Username   string
	Capability Capability
	// TokenID and ExpiresAt identify the access token for logout
	TokenID   string
	ExpiresAt time.Time
}

// Is reports whether the caller holds capability c
func (i *Identity) Is(c Capability) bool {
	return i != nil && i.Capability == c
}

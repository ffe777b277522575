package enums

import (
	"fmt"
	"strings"
)

// ActorRole is the role carried in an access token.
type ActorRole string

const (
	ActorRoleAdmin    ActorRole = "admin"
	ActorRoleStaff    ActorRole = "staff"
	ActorRoleVendor   ActorRole = "vendor"
	ActorRoleDriver   ActorRole = "driver"
	ActorRoleCustomer ActorRole = "customer"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleStaff,
	ActorRoleVendor,
	ActorRoleDriver,
	ActorRoleCustomer,
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsOperator reports whether the role may act on any order or company.
func (r ActorRole) IsOperator() bool {
	return r == ActorRoleAdmin || r == ActorRoleStaff
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validActorRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}

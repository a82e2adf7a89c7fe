package enums

import (
	"fmt"
	"strings"
)

// UserRole is the coarse account role stored on each user.
type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleDoctor   UserRole = "doctor"
	UserRoleCustomer UserRole = "customer"
)

var validUserRoles = []UserRole{
	UserRoleAdmin,
	UserRoleDoctor,
	UserRoleCustomer,
}

// AllUserRoles returns every role in declaration order.
func AllUserRoles() []UserRole {
	return append([]UserRole(nil), validUserRoles...)
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into a UserRole, ignoring case.
func ParseUserRole(value string) (UserRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validUserRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}

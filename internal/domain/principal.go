package domain

import "strings"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// ParseRole normalizes the role claim coming from the auth boundary. Anything
// outside the two canonical values is rejected there, once.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(s)) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleCustomer:
		return RoleCustomer, true
	}
	return "", false
}

// Principal is the verified identity produced by the external auth service.
type Principal struct {
	UserID uint64
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

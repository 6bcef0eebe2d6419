package auth

import (
	"fmt"
	"slices"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// DefaultRole is assigned at registration unless the username is a
// configured administrator.
const DefaultRole = RoleUser

// Capability names one permission checked by the transports.
type Capability string

const (
	CapabilityReadSelf    Capability = "profile:read"
	CapabilityReadAnyUser Capability = "users:read-any"
)

var roleCapabilities = map[Role][]Capability{
	RoleUser:  {CapabilityReadSelf},
	RoleAdmin: {CapabilityReadSelf, CapabilityReadAnyUser},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether r grants c. Unknown roles grant nothing.
func (r Role) Can(c Capability) bool {
	return slices.Contains(roleCapabilities[r], c)
}

func (r Role) String() string { return string(r) }

// ParseRole converts a stored or transmitted role name back into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", common.ErrValidation, s)
	}
	return r, nil
}

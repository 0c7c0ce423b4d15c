// Package authz holds the static role-to-permission policy table.
// Permissions are resolved once at token issuance and embedded in the
// access token, so authorization checks never hit the database.
package authz

import "github.com/iliyamo/account-service/internal/model"

// Wildcard grants every permission. It appears only in the admin set;
// Allows treats its presence as an unconditional grant.
const Wildcard = "*"

// Permission names used by the HTTP surface.
const (
	UserRead   = "user.read"
	UserCreate = "user.create"
	UserUpdate = "user.update"
	UserDelete = "user.delete"
	AdminScope = "admin"
	ReadOwn    = "read:own"
	WriteOwn   = "write:own"
)

// policy is the enumerated role→permission table. Unknown roles
// resolve to no permissions.
var policy = map[string][]string{
	model.RoleAdmin: {Wildcard},
	model.RoleUser:  {ReadOwn, WriteOwn},
}

// PermissionsFor returns a copy of the permission set for role.
func PermissionsFor(role string) []string {
	perms, ok := policy[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// Allows reports whether the held permission set satisfies all of the
// required permissions. A held Wildcard satisfies anything.
func Allows(held []string, required ...string) bool {
	set := make(map[string]bool, len(held))
	for _, p := range held {
		if p == Wildcard {
			return true
		}
		set[p] = true
	}
	for _, r := range required {
		if !set[r] {
			return false
		}
	}
	return true
}

// Package roles evaluates time-bounded role grants. All functions are
// pure; callers load the grant log and pick the evaluation instant.
package roles

import (
	"sort"
	"time"

	"sprocket/api/internal/store"
)

// Admin may manage other users' roles and see other users' grant data.
const Admin = "admin"

// IsActive reports whether a grant is in force at the given instant.
// A nil expiry never expires; otherwise the grant is active strictly
// before its expiry.
func IsActive(grant store.RoleGrant, now time.Time) bool {
	return grant.ExpiresAt == nil || grant.ExpiresAt.After(now)
}

// ActiveRoles returns the sorted, distinct role names active at now.
func ActiveRoles(grants []store.RoleGrant, now time.Time) []string {
	seen := make(map[string]struct{})
	active := make([]string, 0)
	for _, grant := range grants {
		if !IsActive(grant, now) {
			continue
		}
		if _, ok := seen[grant.Role]; ok {
			continue
		}
		seen[grant.Role] = struct{}{}
		active = append(active, grant.Role)
	}
	sort.Strings(active)
	return active
}

// HasRole reports whether any active grant carries the given role.
func HasRole(grants []store.RoleGrant, role string, now time.Time) bool {
	for _, grant := range grants {
		if grant.Role == role && IsActive(grant, now) {
			return true
		}
	}
	return false
}

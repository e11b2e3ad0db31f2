package filter

import (
	"strings"

	"github.com/asheshgoplani/evalgrep/internal/evallog"
)

// RoleSet is a set of message roles. The empty set accepts every role.
type RoleSet uint8

// NewRoleSet builds a set from roles.
func NewRoleSet(roles ...evallog.Role) RoleSet {
	var rs RoleSet
	for _, r := range roles {
		rs |= 1 << r
	}
	return rs
}

// ParseRoles accepts role names given as repeated values and/or comma lists,
// e.g. []string{"user,assistant", "tool"}.
func ParseRoles(values []string) (RoleSet, error) {
	var roles []evallog.Role
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			r, err := evallog.ParseRole(name)
			if err != nil {
				return 0, &InvalidFilterError{Field: "roles", Value: v, Err: err}
			}
			roles = append(roles, r)
		}
	}
	return NewRoleSet(roles...), nil
}

// IsAll reports whether the set accepts every role.
func (rs RoleSet) IsAll() bool { return rs == 0 }

// Contains reports whether r passes the set.
func (rs RoleSet) Contains(r evallog.Role) bool {
	return rs == 0 || rs&(1<<r) != 0
}

// Roles returns the members in canonical order, or nil for the empty set.
func (rs RoleSet) Roles() []evallog.Role {
	var out []evallog.Role
	for _, r := range evallog.Roles {
		if rs&(1<<r) != 0 {
			out = append(out, r)
		}
	}
	return out
}

func (rs RoleSet) String() string {
	if rs.IsAll() {
		return "all"
	}
	names := make([]string, 0, 4)
	for _, r := range rs.Roles() {
		names = append(names, r.String())
	}
	return strings.Join(names, ",")
}

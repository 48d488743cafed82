package permission

import (
	"sort"
	"strings"
)

// RoleSet is an immutable set of recognized role names.
type RoleSet struct {
	names map[string]struct{}
}

// NewRoleSet builds a [RoleSet]; blank names are ignored.
func NewRoleSet(names ...string) RoleSet {
	set := RoleSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set.names[n] = struct{}{}
	}
	return set
}

// Intersects reports whether any of roles is recognized. An empty set
// recognizes nothing.
func (r RoleSet) Intersects(roles []string) bool {
	for _, role := range roles {
		if _, ok := r.names[role]; ok {
			return true
		}
	}
	return false
}

func (r RoleSet) Len() int { return len(r.names) }

// Names returns the recognized roles in sorted order.
func (r RoleSet) Names() []string {
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

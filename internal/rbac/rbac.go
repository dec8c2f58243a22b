package rbac

import (
	"sort"
	"strings"
)

type Role string
type Action string

const (
	RoleUser  Role = "user"
	RoleMod   Role = "mod"
	RoleAdmin Role = "admin"
)

// DefaultRole is held by every account.
const DefaultRole = RoleUser

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleMod:
		return action == ActionRead || action == ActionWrite || action == ActionModerate
	case RoleUser:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// Parse reports whether name is one of the known roles, ignoring case and
// surrounding whitespace.
func Parse(name string) (Role, bool) {
	switch role := Role(strings.ToLower(strings.TrimSpace(name))); role {
	case RoleUser, RoleMod, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// RolesForNewAccount lists the roles granted at registration. Only the very
// first account in the system receives the elevated roles.
func RolesForNewAccount(first bool) []Role {
	if first {
		return []Role{RoleUser, RoleMod, RoleAdmin}
	}
	return []Role{DefaultRole}
}

// Set is the deduplicated role membership of a caller. The zero value is the
// anonymous caller.
type Set struct {
	roles map[Role]struct{}
}

// NewSet builds a Set from stored or token role names. Unknown names are
// dropped.
func NewSet(names ...string) Set {
	set := Set{roles: make(map[Role]struct{}, len(names))}
	for _, name := range names {
		if role, ok := Parse(name); ok {
			set.roles[role] = struct{}{}
		}
	}
	return set
}

func (s Set) Has(role Role) bool {
	_, ok := s.roles[role]
	return ok
}

// IsAdmin is the capability predicate for seeing unpublished catalog content.
func (s Set) IsAdmin() bool {
	return s.Has(RoleAdmin)
}

func (s Set) Can(action Action) bool {
	for role := range s.roles {
		if Can(role, action) {
			return true
		}
	}
	return action == ActionRead
}

func (s Set) Empty() bool {
	return len(s.roles) == 0
}

// Names returns the role names sorted for stable output.
func (s Set) Names() []string {
	names := make([]string, 0, len(s.roles))
	for role := range s.roles {
		names = append(names, string(role))
	}
	sort.Strings(names)
	return names
}

func Names(roles []Role) []string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return names
}

// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// # User Roles

// Role is a library role as reported by the identity endpoint.
//
// The identity payload is not stable across API versions: a role may arrive as
// an object, a bare name or a bare numeric id. [Role.UnmarshalJSON] accepts all three.
type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Role ids follow the library API's roles table. SuperAdmin has no row there
// and is recognised by name only.
var (
	// Unrestricted system access, satisfies every role requirement
	RoleSuperAdmin = Role{Name: "SuperAdmin"}

	// Manages users, settings and the catalog
	RoleAdmin = Role{ID: 1, Name: "Admin"}

	// Runs circulation and catalog maintenance
	RoleLibrarian = Role{ID: 2, Name: "Librarian"}

	// Faculty/staff: course reserves and teaching resources
	RoleTeacher = Role{ID: 3, Name: "Teacher"}

	// Default role for registered members
	RoleStudent = Role{ID: 4, Name: "Student"}
)

// knownRoles is ordered from the most to the least trusted role.
var knownRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleLibrarian, RoleTeacher, RoleStudent}

// # Matching

// Matches reports whether two roles denote the same role.
//
// Names decide whenever both sides carry one, so an id that disagrees with
// its name never grants the other role. The numeric id is compared only when
// a name is missing.
func (r Role) Matches(other Role) bool {
	name, otherName := normalizeRoleName(r.Name), normalizeRoleName(other.Name)
	if name != "" && otherName != "" {
		return name == otherName
	}
	return r.ID != 0 && r.ID == other.ID
}

// Level maps a role to its position in the linear trust hierarchy.
// Unknown roles are level 0.
func (r Role) Level() int {

	// Linear scale (10-50) leaves room for intermediate roles
	for index, known := range knownRoles {
		if known.Matches(r) {
			return (len(knownRoles) - index) * 10
		}
	}
	return 0
}

// String returns the role name, falling back to the numeric id.
func (r Role) String() string {
	if r.Name != "" {
		return r.Name
	}
	return strconv.Itoa(r.ID)
}

// UnmarshalJSON decodes `{"id":1,"name":"Admin"}`, `"admin"` or `1`.
func (r *Role) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = Role{}
		return nil

	case data[0] == '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("sec: invalid role name: %w", err)
		}
		*r = Role{Name: name}
		return nil

	case data[0] == '{':
		type plainRole Role
		var decoded plainRole
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("sec: invalid role object: %w", err)
		}
		*r = Role(decoded)
		return nil

	default:
		var id int
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("sec: invalid role id: %w", err)
		}
		*r = Role{ID: id}
		return nil
	}
}

// HasSuperAdmin reports whether roles contain the top-level administrative role.
func HasSuperAdmin(roles []Role) bool {
	for _, role := range roles {
		if RoleSuperAdmin.Matches(role) {
			return true
		}
	}
	return false
}

// HighestLevel returns the highest trust level among roles.
func HighestLevel(roles []Role) int {
	highest := 0
	for _, role := range roles {
		if level := role.Level(); level > highest {
			highest = level
		}
	}
	return highest
}

// ParseRole resolves a known role by name (any case, separators ignored) or numeric id.
func ParseRole(value string) (Role, error) {
	value = strings.TrimSpace(value)

	wanted := Role{Name: value}
	if id, err := strconv.Atoi(value); err == nil {
		wanted = Role{ID: id}
	}

	for _, known := range knownRoles {
		if known.Matches(wanted) {
			return known, nil
		}
	}
	return Role{}, fmt.Errorf("sec: unknown role %q", value)
}

// # Role Requirements

// RoleRequirement is a route's access constraint: the user must hold at least
// one of the listed roles. A single-role requirement has one entry.
type RoleRequirement struct {
	AnyOf []Role
}

// Require builds a [RoleRequirement] satisfied by any of the given roles.
func Require(roles ...Role) RoleRequirement {
	return RoleRequirement{AnyOf: roles}
}

// ParseRequirement parses "admin" or "admin|librarian" into a [RoleRequirement].
func ParseRequirement(value string) (RoleRequirement, error) {
	var requirement RoleRequirement
	for _, part := range strings.Split(value, "|") {
		role, err := ParseRole(part)
		if err != nil {
			return RoleRequirement{}, err
		}
		requirement.AnyOf = append(requirement.AnyOf, role)
	}
	return requirement, nil
}

// Satisfies reports whether userRoles contain at least one of the required roles.
// An empty requirement is always satisfied.
func (requirement RoleRequirement) Satisfies(userRoles []Role) bool {
	if len(requirement.AnyOf) == 0 {
		return true
	}

	for _, required := range requirement.AnyOf {
		for _, held := range userRoles {
			if required.Matches(held) {
				return true
			}
		}
	}
	return false
}

// String renders the requirement in its parseable "a|b" form.
func (requirement RoleRequirement) String() string {
	names := make([]string, len(requirement.AnyOf))
	for index, role := range requirement.AnyOf {
		names[index] = role.String()
	}
	return strings.Join(names, "|")
}

// normalizeRoleName case-folds a name and drops separators, so that
// "Super Admin", "super_admin" and "SUPERADMIN" compare equal.
func normalizeRoleName(name string) string {
	folded := cases.Fold().String(name)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, folded)
}

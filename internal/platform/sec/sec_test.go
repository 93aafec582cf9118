// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dlms/internal/platform/sec"
)

/*
TestRole_UnmarshalJSON accepts every identity payload shape seen in the wild.
*/
func TestRole_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected sec.Role
	}{
		{"object", `{"id":2,"name":"Librarian"}`, sec.Role{ID: 2, Name: "Librarian"}},
		{"bare_name", `"teacher"`, sec.Role{Name: "teacher"}},
		{"bare_id", `4`, sec.Role{ID: 4}},
		{"null", `null`, sec.Role{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var role sec.Role
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &role))
			assert.Equal(t, tt.expected, role)
		})
	}
}

/*
TestRole_Matches prefers names and falls back to ids only for nameless roles.
*/
func TestRole_Matches(t *testing.T) {
	tests := []struct {
		name  string
		held  sec.Role
		match bool
	}{
		{"same_id", sec.Role{ID: 1}, true},
		{"lowercase_name", sec.Role{Name: "admin"}, true},
		{"uppercase_name", sec.Role{Name: "ADMIN"}, true},
		{"name_wins_over_foreign_id", sec.Role{ID: 9, Name: "admin"}, true},
		{"different_role", sec.Role{ID: 4, Name: "Student"}, false},
		{"id_collides_name_differs", sec.Role{ID: 1, Name: "student"}, false},
		{"empty", sec.Role{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, sec.RoleAdmin.Matches(tt.held))
		})
	}

	// Separators are ignored for multi-word names
	assert.True(t, sec.RoleSuperAdmin.Matches(sec.Role{Name: "super_admin"}))
	assert.True(t, sec.RoleSuperAdmin.Matches(sec.Role{Name: "Super Admin"}))
}

/*
TestRoleRequirement_Satisfies exercises single and any-of requirements.
*/
func TestRoleRequirement_Satisfies(t *testing.T) {
	adminOrLibrarian := sec.Require(sec.RoleAdmin, sec.RoleLibrarian)

	assert.True(t, adminOrLibrarian.Satisfies([]sec.Role{{Name: "librarian"}}))
	assert.True(t, adminOrLibrarian.Satisfies([]sec.Role{sec.RoleStudent, {ID: 2}}))
	assert.False(t, adminOrLibrarian.Satisfies([]sec.Role{{ID: 2, Name: "student"}}))
	assert.False(t, adminOrLibrarian.Satisfies([]sec.Role{sec.RoleStudent}))
	assert.False(t, adminOrLibrarian.Satisfies(nil))

	// An empty requirement never blocks
	assert.True(t, sec.RoleRequirement{}.Satisfies(nil))
}

/*
TestParseRequirement resolves names and ids into known roles.
*/
func TestParseRequirement(t *testing.T) {
	requirement, err := sec.ParseRequirement("teacher|Admin")
	require.NoError(t, err)
	assert.Equal(t, []sec.Role{sec.RoleTeacher, sec.RoleAdmin}, requirement.AnyOf)
	assert.Equal(t, "Teacher|Admin", requirement.String())

	requirement, err = sec.ParseRequirement("2")
	require.NoError(t, err)
	assert.Equal(t, []sec.Role{sec.RoleLibrarian}, requirement.AnyOf)

	_, err = sec.ParseRequirement("janitor")
	require.Error(t, err)
}

/*
TestRole_Hierarchy checks the linear trust levels.
*/
func TestRole_Hierarchy(t *testing.T) {
	assert.Greater(t, sec.RoleSuperAdmin.Level(), sec.RoleAdmin.Level())
	assert.Greater(t, sec.RoleAdmin.Level(), sec.RoleLibrarian.Level())
	assert.Greater(t, sec.RoleLibrarian.Level(), sec.RoleTeacher.Level())
	assert.Greater(t, sec.RoleTeacher.Level(), sec.RoleStudent.Level())
	assert.Equal(t, 0, sec.Role{Name: "guest"}.Level())

	assert.True(t, sec.HasSuperAdmin([]sec.Role{sec.RoleStudent, {Name: "superadmin"}}))
	assert.False(t, sec.HasSuperAdmin([]sec.Role{sec.RoleAdmin}))
	assert.False(t, sec.HasSuperAdmin([]sec.Role{{ID: 1, Name: "admin"}}))
	assert.False(t, sec.HasSuperAdmin([]sec.Role{{ID: 1}}))

	_, err := sec.ParseRole("0")
	assert.Error(t, err)
	assert.Equal(t, sec.RoleTeacher.Level(), sec.HighestLevel([]sec.Role{sec.RoleStudent, sec.RoleTeacher}))
}

/*
TestTokenInspector_Expired distinguishes expired JWTs from opaque tokens.
*/
func TestTokenInspector_Expired(t *testing.T) {
	inspector := sec.NewTokenInspector(0)

	sign := func(expiresAt time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		return signed
	}

	// 1. Expired JWT
	assert.True(t, inspector.Expired(sign(time.Now().Add(-time.Hour))))

	// 2. Valid JWT
	assert.False(t, inspector.Expired(sign(time.Now().Add(time.Hour))))

	// 3. Opaque token (Sanctum style)
	assert.False(t, inspector.Expired("12|7bXkq0aT2p"))

	// 4. Garbage with two dots
	assert.False(t, inspector.Expired("a.b.c"))
}

/*
TestStorageKey never leaks the secret into the key.
*/
func TestStorageKey(t *testing.T) {
	key := sec.StorageKey("dlms:token:", "workspace-secret")

	assert.True(t, strings.HasPrefix(key, "dlms:token:"))
	assert.NotContains(t, key, "workspace-secret")
	assert.Equal(t, key, sec.StorageKey("dlms:token:", "workspace-secret"))
	assert.NotEqual(t, key, sec.StorageKey("dlms:token:", "other"))
}

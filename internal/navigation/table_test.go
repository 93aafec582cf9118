// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package navigation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dlms/internal/navigation"
	"github.com/taibuivan/dlms/internal/platform/sec"
)

/*
TestTable_Match prefers literals over params over wildcards.
*/
func TestTable_Match(t *testing.T) {
	table := navigation.DefaultTable()

	tests := []struct {
		path   string
		name   string
		params navigation.Params
	}{
		{"/", "home", nil},
		{"/auth/login", "login", nil},
		{"/auth/login/", "login", nil},
		{"/auth/magic-link", "auth", nil},
		{"/catalog/books/edit/15", "edit-book", navigation.Params{"id": "15"}},
		{"/catalog/books", "manage-books", nil},
		{"/teacher/resources/3", "teacher-resource-details", navigation.Params{"id": "3"}},
		{"/admin/reports/circulation", "reports", nil},
		{"/pdf-preview/9/page/2", "pdf-preview", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, params := table.Match(tt.path)
			require.NotNil(t, route)
			assert.Equal(t, tt.name, route.Name)
			assert.Equal(t, tt.params, params)
		})
	}

	route, _ := table.Match("/catalog/books/edit")
	assert.Nil(t, route)
}

/*
TestTable_RequirementsImplyAuth marks role-restricted routes as protected.
*/
func TestTable_RequirementsImplyAuth(t *testing.T) {
	route, ok := navigation.DefaultTable().Lookup("manage-users")
	require.True(t, ok)

	assert.True(t, route.RequiresAuth)
	assert.True(t, route.Protected())
	require.Len(t, route.Requirements, 1)
	assert.Equal(t, "Admin", route.Requirements[0].String())
}

/*
TestParseTable_ReportsEveryProblem joins all validation failures.
*/
func TestParseTable_ReportsEveryProblem(t *testing.T) {
	_, err := navigation.ParseTable([]byte(`
routes:
  - { name: a, path: relative }
  - { name: a, path: /dup }
  - { name: b, path: "/x/*/y" }
  - { name: c, path: /c, roles: [wizard] }
`))
	require.Error(t, err)

	message := err.Error()
	assert.Contains(t, message, "must start with '/'")
	assert.Contains(t, message, "duplicate name")
	assert.Contains(t, message, "last segment")
	assert.Contains(t, message, "wizard")
}

/*
TestLoadTable reads a custom table from disk.
*/
func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
landing:
  default: /home
  roles:
    librarian: /desk
routes:
  - { name: desk, path: /desk, roles: ["librarian|admin"] }
`), 0o600))

	table, err := navigation.LoadTable(path)
	require.NoError(t, err)

	route, _ := table.Match("/desk")
	require.NotNil(t, route)
	assert.Equal(t, "Librarian|Admin", route.Requirements[0].String())

	assert.Equal(t, "/desk", table.LandingPage([]sec.Role{sec.RoleLibrarian}))
	assert.Equal(t, "/home", table.LandingPage([]sec.Role{sec.RoleStudent}))
	assert.Equal(t, "/home", table.LandingPage(nil))

	_, err = navigation.LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

/*
TestParseTarget_And_SafeRedirect reject non-local destinations.
*/
func TestParseTarget_And_SafeRedirect(t *testing.T) {
	assert.Equal(t, navigation.Target{Path: "/a/b", RawQuery: "x=1"}, navigation.ParseTarget("/a/b?x=1"))
	assert.Equal(t, "/", navigation.ParseTarget("https://evil.example/a").Path)
	assert.Equal(t, "/", navigation.ParseTarget("relative").Path)

	assert.Equal(t, "/dashboard", navigation.SafeRedirect("/dashboard", "/"))
	assert.Equal(t, "/", navigation.SafeRedirect("//evil.example", "/"))
	assert.Equal(t, "/", navigation.SafeRedirect("https://evil.example", "/"))
	assert.Equal(t, "/", navigation.SafeRedirect("", "/"))
}

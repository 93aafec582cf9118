// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package navigation

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/sec"
)

//go:embed routes.yaml
var builtinRoutes []byte

// Table is a validated set of routes plus landing pages.
//
// Readers always see one complete generation: [Table.Swap] replaces the whole
// set at once, so a hot reload never exposes a half-built table.
type Table struct {
	current atomic.Pointer[routeSet]
}

type routeSet struct {
	routes         []Route
	landing        []LandingRule
	defaultLanding string
}

// LandingRule maps a role to the page its members land on after sign-in.
type LandingRule struct {
	Role sec.Role
	Path string
}

// # File Format

type tableFile struct {
	Landing struct {
		Default string            `yaml:"default"`
		Roles   map[string]string `yaml:"roles"`
	} `yaml:"landing"`
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Name                      string   `yaml:"name"`
	Path                      string   `yaml:"path"`
	Public                    bool     `yaml:"public"`
	RequiresAuth              bool     `yaml:"requires_auth"`
	Roles                     []string `yaml:"roles"`
	RedirectWhenAuthenticated bool     `yaml:"redirect_when_authenticated"`
}

// # Construction

// DefaultTable returns the built-in route table.
func DefaultTable() *Table {
	table, err := ParseTable(builtinRoutes)
	if err != nil {
		panic(fmt.Sprintf("navigation: built-in route table is invalid: %v", err))
	}
	return table
}

/*
LoadTable reads a YAML route table from disk. An empty path yields the
built-in table.

Returns:
  - *Table: The validated table
  - error: I/O, YAML or validation errors (all problems are reported together)
*/
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("navigation_table_read_failed: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a YAML route table.
func ParseTable(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("navigation_table_decode_failed: %w", err)
	}

	var errs []error
	routes := make([]Route, 0, len(file.Routes))
	for _, entry := range file.Routes {
		route := Route{
			Name:                      entry.Name,
			Path:                      entry.Path,
			Public:                    entry.Public,
			RequiresAuth:              entry.RequiresAuth,
			RedirectWhenAuthenticated: entry.RedirectWhenAuthenticated,
		}

		for _, raw := range entry.Roles {
			requirement, err := sec.ParseRequirement(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("route %q: %w", entry.Name, err))
				continue
			}
			route.Requirements = append(route.Requirements, requirement)
		}
		routes = append(routes, route)
	}

	landing := make([]LandingRule, 0, len(file.Landing.Roles))
	for name, path := range file.Landing.Roles {
		role, err := sec.ParseRole(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("landing: %w", err))
			continue
		}
		landing = append(landing, LandingRule{Role: role, Path: path})
	}

	table, err := NewTable(routes, landing, file.Landing.Default)
	if joined := errors.Join(append(errs, err)...); joined != nil {
		return nil, joined
	}
	return table, nil
}

// NewTable validates routes and builds a [Table].
func NewTable(routes []Route, landing []LandingRule, defaultLanding string) (*Table, error) {
	if defaultLanding == "" {
		defaultLanding = constants.PathHome
	}

	var errs []error
	seen := make(map[string]bool, len(routes))
	compiled := make([]Route, 0, len(routes))

	for _, route := range routes {
		if route.Name == "" {
			errs = append(errs, fmt.Errorf("route %q: name is required", route.Path))
			continue
		}
		if seen[route.Name] {
			errs = append(errs, fmt.Errorf("route %q: duplicate name", route.Name))
			continue
		}
		seen[route.Name] = true

		if err := route.compile(); err != nil {
			errs = append(errs, err)
			continue
		}
		compiled = append(compiled, route)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	table := &Table{}
	table.current.Store(&routeSet{
		routes:         compiled,
		landing:        landing,
		defaultLanding: defaultLanding,
	})
	return table, nil
}

// Swap installs the routes of next. Guards sharing this table see the new
// routes on their next resolution.
func (table *Table) Swap(next *Table) {
	table.current.Store(next.current.Load())
}

// # Lookup

/*
Match returns the most specific route for path.

Description: Literal segments outrank `:param` segments, which outrank a
trailing `*`. Ties go to the route declared first.

Returns:
  - *Route: The matched route, or nil for unknown paths
  - Params: Captured parameters
*/
func (table *Table) Match(path string) (*Route, Params) {
	segments := splitPath(path)
	set := table.current.Load()

	best, bestScore := -1, -1
	var bestParams Params
	for index := range set.routes {
		params, score, ok := set.routes[index].match(segments)
		if ok && score > bestScore {
			best, bestScore, bestParams = index, score, params
		}
	}

	if best < 0 {
		return nil, nil
	}
	route := set.routes[best]
	return &route, bestParams
}

// Lookup returns the route with the given name.
func (table *Table) Lookup(name string) (*Route, bool) {
	routes := table.current.Load().routes
	index := slices.IndexFunc(routes, func(route Route) bool { return route.Name == name })
	if index < 0 {
		return nil, false
	}
	route := routes[index]
	return &route, true
}

// Routes returns a copy of every route in declaration order.
func (table *Table) Routes() []Route {
	return slices.Clone(table.current.Load().routes)
}

/*
LandingPage returns where a signed-in user goes by default.

Description: The user's most trusted role decides. A role without its own
landing page falls back to the default (the staff dashboard).
*/
func (table *Table) LandingPage(roles []sec.Role) string {
	set := table.current.Load()

	var top sec.Role
	for _, role := range roles {
		if role.Level() > top.Level() {
			top = role
		}
	}

	if top.Level() == 0 {
		return set.defaultLanding
	}

	for _, rule := range set.landing {
		if rule.Role.Matches(top) {
			return rule.Path
		}
	}
	return set.defaultLanding
}

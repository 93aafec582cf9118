// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package navigation decides whether a client may enter a path.

# Architecture

	Target ──▶ Table.Match ──▶ Route ──▶ Guard.Resolve ──▶ Decision
	                                        │
	                              session.State / Validate

The route table is static data (built in, or loaded from YAML). The guard is
the single place where authentication and role requirements are enforced;
it reads the session and may ask it to validate, but never mutates it.
*/
package navigation

import (
	"fmt"
	"strings"

	"github.com/taibuivan/dlms/internal/platform/sec"
)

// Params holds the values captured by `:name` segments.
type Params map[string]string

// Route is the static access metadata of one navigable path.
type Route struct {
	Name string `json:"name"`

	// Path supports literal segments, `:param` segments and a trailing `*`.
	Path string `json:"path"`

	// Public routes skip every check (home, auth pages, anonymous previews).
	Public bool `json:"public"`

	RequiresAuth bool `json:"requires_auth"`

	// Requirements must ALL be satisfied; each one is an any-of role set.
	Requirements []sec.RoleRequirement `json:"-"`

	// RedirectWhenAuthenticated sends signed-in users to their landing page.
	RedirectWhenAuthenticated bool `json:"-"`

	segments []string
}

// Protected reports whether the route needs an authenticated session.
func (route *Route) Protected() bool {
	return !route.Public && (route.RequiresAuth || len(route.Requirements) > 0)
}

// # Pattern Matching

// Segment weights: a literal beats a parameter, which beats the wildcard.
const (
	weightLiteral  = 3
	weightParam    = 2
	weightWildcard = 1
)

func (route *Route) compile() error {
	if !strings.HasPrefix(route.Path, "/") {
		return fmt.Errorf("route %q: path must start with '/'", route.Name)
	}

	route.segments = splitPath(route.Path)
	for index, segment := range route.segments {
		switch {
		case segment == "*" && index != len(route.segments)-1:
			return fmt.Errorf("route %q: '*' is only allowed as the last segment", route.Name)
		case segment == ":":
			return fmt.Errorf("route %q: parameter without a name", route.Name)
		}
	}

	if len(route.Requirements) > 0 {
		route.RequiresAuth = true
	}
	return nil
}

// match returns the captured params and a specificity score.
func (route *Route) match(segments []string) (Params, int, bool) {
	var params Params
	score := 0

	for index, pattern := range route.segments {
		if pattern == "*" {
			return params, score + weightWildcard, true
		}
		if index >= len(segments) {
			return nil, 0, false
		}

		value := segments[index]
		switch {
		case strings.HasPrefix(pattern, ":"):
			if params == nil {
				params = Params{}
			}
			params[pattern[1:]] = value
			score += weightParam
		case pattern == value:
			score += weightLiteral
		default:
			return nil, 0, false
		}
	}

	if len(segments) != len(route.segments) {
		return nil, 0, false
	}
	return params, score, true
}

// splitPath turns "/a/b/" into ["a", "b"] and "/" into [].
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

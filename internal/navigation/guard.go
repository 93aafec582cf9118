// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package navigation

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/ctxutil"
	"github.com/taibuivan/dlms/internal/platform/sec"
	"github.com/taibuivan/dlms/internal/session"
)

// # Outcomes

// Outcome is a state of the per-navigation state machine.
type Outcome string

const (
	OutcomePublicPass       Outcome = "PUBLIC_PASS"
	OutcomeValidating       Outcome = "VALIDATING"
	OutcomeAuthFail         Outcome = "AUTH_FAIL"
	OutcomeRoleFail         Outcome = "ROLE_FAIL"
	OutcomeAllow            Outcome = "ALLOW"
	OutcomeRedirectFromAuth Outcome = "REDIRECT_AUTHENTICATED_AWAY_FROM_AUTH_PAGES"
)

// Decision is the terminal result of resolving one navigation.
type Decision struct {
	Outcome  Outcome `json:"outcome"`
	Redirect string  `json:"redirect,omitempty"`
	Route    *Route  `json:"route,omitempty"`
	Params   Params  `json:"params,omitempty"`

	// Trace lists every state visited, ending with Outcome.
	Trace []Outcome `json:"trace"`
}

// Allowed reports whether the client may enter the target.
func (decision Decision) Allowed() bool {
	return decision.Redirect == "" &&
		(decision.Outcome == OutcomeAllow || decision.Outcome == OutcomePublicPass)
}

// # Targets

// Target is a requested client path with its query string.
type Target struct {
	Path     string
	RawQuery string
}

// ParseTarget splits "/a/b?x=1" into a [Target]. Anything that is not a local
// absolute path becomes the home page.
func ParseTarget(raw string) Target {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.IsAbs() || parsed.Host != "" || !strings.HasPrefix(parsed.Path, "/") {
		return Target{Path: constants.PathHome}
	}
	return Target{Path: parsed.Path, RawQuery: parsed.RawQuery}
}

// FullPath returns the path with its query string.
func (target Target) FullPath() string {
	if target.RawQuery == "" {
		return target.Path
	}
	return target.Path + "?" + target.RawQuery
}

// LoginRedirect builds `/auth/login?redirect=<fullPath>`, keeping '/' literal.
func LoginRedirect(fullPath string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(fullPath), "%2F", "/")
	return constants.PathLogin + "?" + constants.QueryRedirect + "=" + escaped
}

// SafeRedirect returns raw when it is a local path, otherwise fallback.
// Protocol-relative ("//evil") and absolute URLs are rejected.
func SafeRedirect(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	return raw
}

// # Guard

// SessionReader is the guard's view of the session: read a snapshot, ask for
// validation. It has no way to mutate credentials.
type SessionReader interface {
	State(context context.Context) session.State
	Validate(context context.Context) error
}

// Guard enforces the route table for one workspace.
type Guard struct {
	table   *Table
	session SessionReader
	logger  *slog.Logger
}

// NewGuard creates a guard bound to a session.
func NewGuard(table *Table, session SessionReader, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{table: table, session: session, logger: logger}
}

// Table returns the guard's route table.
func (guard *Guard) Table() *Table {
	return guard.table
}

/*
Resolve runs the navigation state machine for target.

Flow:
 1. Public route: PUBLIC_PASS, or redirect signed-in users away from login/register.
 2. Protected route without a token: AUTH_FAIL.
 3. Token without a confirmed identity: VALIDATING (one shared identity check), AUTH_FAIL on failure.
 4. SuperAdmin: ALLOW. Any unmet requirement: ROLE_FAIL.
 5. Otherwise ALLOW.

Resolve never returns an error: every failure degrades to a redirect.
*/
func (guard *Guard) Resolve(context context.Context, target Target) Decision {
	route, params := guard.table.Match(target.Path)
	decision := Decision{Route: route, Params: params}

	finish := func(outcome Outcome, redirect string) Decision {
		decision.Outcome = outcome
		decision.Redirect = redirect
		decision.Trace = append(decision.Trace, outcome)

		ctxutil.GetLogger(context).DebugContext(context, "navigation_resolved",
			slog.String("path", target.Path),
			slog.String("outcome", string(outcome)),
			slog.String("redirect", redirect),
		)
		return decision
	}

	// Unknown paths are not the guard's concern; the caller answers 404.
	if route == nil {
		return finish(OutcomeAllow, "")
	}

	state := guard.session.State(context)

	// 1. Public pages
	if route.Public {
		if route.RedirectWhenAuthenticated && state.IsAuthenticated {
			return finish(OutcomeRedirectFromAuth, guard.table.LandingPage(state.Roles()))
		}
		return finish(OutcomePublicPass, "")
	}

	if !route.Protected() {
		return finish(OutcomeAllow, "")
	}

	loginRedirect := LoginRedirect(target.FullPath())

	// 2. No credential at all
	if !state.HasToken {
		return finish(OutcomeAuthFail, loginRedirect)
	}

	// 3. Credential without a confirmed identity
	if !state.IsAuthenticated {
		decision.Trace = append(decision.Trace, OutcomeValidating)

		if err := guard.session.Validate(context); err != nil {
			guard.logger.InfoContext(context, "navigation_validation_failed",
				slog.String("path", target.Path),
				slog.Any("error", err),
			)
			return finish(OutcomeAuthFail, loginRedirect)
		}

		state = guard.session.State(context)
		if !state.IsAuthenticated {
			return finish(OutcomeAuthFail, loginRedirect)
		}
	}

	// 4. Roles
	roles := state.Roles()
	if sec.HasSuperAdmin(roles) {
		return finish(OutcomeAllow, "")
	}

	for _, requirement := range route.Requirements {
		if !requirement.Satisfies(roles) {
			guard.logger.InfoContext(context, "navigation_role_denied",
				slog.String("route", route.Name),
				slog.String("requires", requirement.String()),
			)
			return finish(OutcomeRoleFail, constants.PathAccessDenied)
		}
	}

	// 5. Nothing left to check
	return finish(OutcomeAllow, "")
}

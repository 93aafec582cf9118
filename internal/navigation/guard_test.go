// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package navigation_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dlms/internal/navigation"
	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/sec"
	"github.com/taibuivan/dlms/internal/session"
)

// # Fakes

// fakeSession flips to authenticated when validation succeeds.
type fakeSession struct {
	state       session.State
	validUser   *session.User
	validateErr error
	validations atomic.Int32
}

func (fake *fakeSession) State(context.Context) session.State { return fake.state }

func (fake *fakeSession) Validate(context.Context) error {
	fake.validations.Add(1)
	if fake.validateErr != nil {
		fake.state = session.State{Status: session.StatusInvalid}
		return fake.validateErr
	}
	fake.state = session.State{HasToken: true, IsAuthenticated: true, Status: session.StatusValid, User: fake.validUser}
	return nil
}

func signedIn(roles ...sec.Role) *fakeSession {
	user := &session.User{ID: 1, Name: "u", Roles: roles}
	return &fakeSession{
		state: session.State{HasToken: true, IsAuthenticated: true, Status: session.StatusValid, User: user},
	}
}

func anonymous() *fakeSession {
	return &fakeSession{state: session.State{Status: session.StatusUnvalidated}}
}

func resolve(t *testing.T, reader navigation.SessionReader, raw string) navigation.Decision {
	t.Helper()
	guard := navigation.NewGuard(navigation.DefaultTable(), reader, nil)
	return guard.Resolve(context.Background(), navigation.ParseTarget(raw))
}

// # Scenarios

/*
TestGuard_AnonymousDashboardRedirectsToLogin keeps the intended destination.
*/
func TestGuard_AnonymousDashboardRedirectsToLogin(t *testing.T) {
	decision := resolve(t, anonymous(), "/dashboard")

	assert.Equal(t, navigation.OutcomeAuthFail, decision.Outcome)
	assert.Equal(t, "/auth/login?redirect=/dashboard", decision.Redirect)
	assert.False(t, decision.Allowed())
}

/*
TestGuard_LoginRedirectKeepsQuery preserves the full original path.
*/
func TestGuard_LoginRedirectKeepsQuery(t *testing.T) {
	decision := resolve(t, anonymous(), "/catalog/book/12?tab=notes")

	assert.Equal(t, navigation.OutcomeAuthFail, decision.Outcome)
	assert.Equal(t, "/auth/login?redirect=/catalog/book/12%3Ftab%3Dnotes", decision.Redirect)
}

/*
TestGuard_StudentDeniedAdminRoute redirects to access-denied.
*/
func TestGuard_StudentDeniedAdminRoute(t *testing.T) {
	decision := resolve(t, signedIn(sec.RoleStudent), "/admin/users")

	assert.Equal(t, navigation.OutcomeRoleFail, decision.Outcome)
	assert.Equal(t, constants.PathAccessDenied, decision.Redirect)
}

/*
TestGuard_PublicRoutes never consult credentials.
*/
func TestGuard_PublicRoutes(t *testing.T) {
	for _, path := range []string{"/", "/auth/forgot-password", "/auth/anything/else", "/pdf-preview/42"} {
		t.Run(path, func(t *testing.T) {
			reader := anonymous()
			decision := resolve(t, reader, path)

			assert.Equal(t, navigation.OutcomePublicPass, decision.Outcome)
			assert.True(t, decision.Allowed())
			assert.Zero(t, reader.validations.Load())
		})
	}
}

/*
TestGuard_AuthenticatedAwayFromAuthPages sends users to their landing page.
*/
func TestGuard_AuthenticatedAwayFromAuthPages(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		roles   []sec.Role
		landing string
	}{
		{"librarian_login", "/auth/login", []sec.Role{sec.RoleLibrarian}, "/dashboard"},
		{"teacher_register", "/auth/register", []sec.Role{sec.RoleTeacher}, "/teacher/dashboard"},
		{"student_login", "/auth/login", []sec.Role{sec.RoleStudent}, "/student/borrowed"},
		{"admin_and_teacher", "/auth/login", []sec.Role{sec.RoleTeacher, sec.RoleAdmin}, "/dashboard"},
		{"name_only_role", "/auth/login", []sec.Role{{Name: "TEACHER"}}, "/teacher/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := resolve(t, signedIn(tt.roles...), tt.path)

			assert.Equal(t, navigation.OutcomeRedirectFromAuth, decision.Outcome)
			assert.Equal(t, tt.landing, decision.Redirect)
		})
	}

	// Other auth pages stay reachable.
	decision := resolve(t, signedIn(sec.RoleStudent), "/auth/reset-password")
	assert.Equal(t, navigation.OutcomePublicPass, decision.Outcome)
}

/*
TestGuard_ValidatesOnceThenAllows covers a reload with a cookie but no identity.
*/
func TestGuard_ValidatesOnceThenAllows(t *testing.T) {
	reader := &fakeSession{
		state:     session.State{HasToken: true, Status: session.StatusUnvalidated},
		validUser: &session.User{ID: 3, Roles: []sec.Role{sec.RoleLibrarian}},
	}
	guard := navigation.NewGuard(navigation.DefaultTable(), reader, nil)

	decision := guard.Resolve(context.Background(), navigation.ParseTarget("/circulation/fines"))
	assert.Equal(t, navigation.OutcomeAllow, decision.Outcome)
	assert.Equal(t, []navigation.Outcome{navigation.OutcomeValidating, navigation.OutcomeAllow}, decision.Trace)

	// A second navigation reuses the validated session.
	decision = guard.Resolve(context.Background(), navigation.ParseTarget("/dashboard"))
	assert.Equal(t, navigation.OutcomeAllow, decision.Outcome)
	assert.Equal(t, int32(1), reader.validations.Load())
}

/*
TestGuard_ValidationFailureDegradesToAuthFail never propagates the error.
*/
func TestGuard_ValidationFailureDegradesToAuthFail(t *testing.T) {
	reader := &fakeSession{
		state:       session.State{HasToken: true, Status: session.StatusUnvalidated},
		validateErr: errors.New("network down"),
	}

	decision := resolve(t, reader, "/dashboard")
	assert.Equal(t, navigation.OutcomeAuthFail, decision.Outcome)
	assert.Equal(t, "/auth/login?redirect=/dashboard", decision.Redirect)
	assert.Equal(t, []navigation.Outcome{navigation.OutcomeValidating, navigation.OutcomeAuthFail}, decision.Trace)
}

/*
TestGuard_UnknownPathAllowsWithoutRoute lets the gateway answer 404.
*/
func TestGuard_UnknownPathAllowsWithoutRoute(t *testing.T) {
	decision := resolve(t, anonymous(), "/no/such/page")

	assert.Equal(t, navigation.OutcomeAllow, decision.Outcome)
	assert.Nil(t, decision.Route)
}

/*
TestGuard_UnrestrictedRouteAllowsAnonymous covers routes with no access metadata.
*/
func TestGuard_UnrestrictedRouteAllowsAnonymous(t *testing.T) {
	decision := resolve(t, anonymous(), "/help/faq")
	assert.Equal(t, navigation.OutcomeAllow, decision.Outcome)
}

/*
TestGuard_WithRealSession wires the guard to a session whose token is rejected.
*/
func TestGuard_WithRealSession(t *testing.T) {
	ctx := context.Background()
	tokens := session.NewMemoryTokenStore()
	require.NoError(t, tokens.SetToken(ctx, "stale", 0))

	sess := session.New(session.Options{Tokens: tokens, Identity: session.NewMemoryIdentityCache()})
	sess.SetProvider(rejectingProvider{})

	guard := navigation.NewGuard(navigation.DefaultTable(), sess, nil)
	decision := guard.Resolve(ctx, navigation.ParseTarget("/reader/5"))

	assert.Equal(t, navigation.OutcomeAuthFail, decision.Outcome)
	assert.Equal(t, "/auth/login?redirect=/reader/5", decision.Redirect)

	// The cleared token is not checked again: plain AUTH_FAIL without validation.
	decision = guard.Resolve(ctx, navigation.ParseTarget("/reader/5"))
	assert.Equal(t, []navigation.Outcome{navigation.OutcomeAuthFail}, decision.Trace)
}

type rejectingProvider struct{}

func (rejectingProvider) CurrentUser(context.Context) (*session.User, error) {
	return nil, errors.New("401")
}

func (rejectingProvider) Login(context.Context, session.Credentials) (*session.Grant, error) {
	return nil, errors.New("unused")
}

func (rejectingProvider) Logout(context.Context) error { return nil }

// # Role Matrix

/*
TestGuard_RoleMatrix checks every role subset against every guarded route:
access is granted iff the roles satisfy all requirements or include SuperAdmin.
*/
func TestGuard_RoleMatrix(t *testing.T) {
	all := []sec.Role{sec.RoleSuperAdmin, sec.RoleAdmin, sec.RoleLibrarian, sec.RoleTeacher, sec.RoleStudent}
	table := navigation.DefaultTable()

	for mask := range 1 << len(all) {
		var roles []sec.Role
		for bit, role := range all {
			if mask&(1<<bit) != 0 {
				roles = append(roles, role)
			}
		}

		for _, route := range table.Routes() {
			if len(route.Requirements) == 0 {
				continue
			}

			path := concretePath(route.Path)
			decision := resolve(t, signedIn(roles...), path)

			want := expectedAccess(roles, route.Requirements)
			assert.Equal(t, want, decision.Allowed(), "roles=%v route=%s path=%s", roles, route.Name, path)
			if !want {
				assert.Equal(t, navigation.OutcomeRoleFail, decision.Outcome)
			}
		}
	}
}

func expectedAccess(roles []sec.Role, requirements []sec.RoleRequirement) bool {
	if slices.ContainsFunc(roles, func(role sec.Role) bool { return role.Name == sec.RoleSuperAdmin.Name }) {
		return true
	}
	for _, requirement := range requirements {
		held := slices.ContainsFunc(requirement.AnyOf, func(required sec.Role) bool {
			return slices.ContainsFunc(roles, func(role sec.Role) bool { return role.Name == required.Name })
		})
		if !held {
			return false
		}
	}
	return true
}

/*
TestGuard_RolePayloadsWithConflictingIDs decides by name when a role's id and
name disagree, and by id only for nameless roles.
*/
func TestGuard_RolePayloadsWithConflictingIDs(t *testing.T) {
	tests := []struct {
		name    string
		role    sec.Role
		path    string
		outcome navigation.Outcome
	}{
		{"student_with_teacher_id", sec.Role{ID: 3, Name: "student"}, "/staff/resources", navigation.OutcomeRoleFail},
		{"student_with_admin_id", sec.Role{ID: 1, Name: "student"}, "/admin/users", navigation.OutcomeRoleFail},
		{"librarian_with_admin_id", sec.Role{ID: 1, Name: "librarian"}, "/admin/users", navigation.OutcomeRoleFail},
		{"librarian_with_admin_id_circulation", sec.Role{ID: 1, Name: "librarian"}, "/circulation/fines", navigation.OutcomeAllow},
		{"admin_is_not_superadmin", sec.Role{ID: 1, Name: "admin"}, "/circulation/fines", navigation.OutcomeRoleFail},
		{"nameless_teacher_id", sec.Role{ID: 3}, "/staff/resources", navigation.OutcomeAllow},
		{"nameless_student_id", sec.Role{ID: 4}, "/staff/resources", navigation.OutcomeRoleFail},
		{"superadmin_by_name", sec.Role{ID: 4, Name: "super_admin"}, "/circulation/fines", navigation.OutcomeAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := resolve(t, signedIn(tt.role), tt.path)
			assert.Equal(t, tt.outcome, decision.Outcome)
		})
	}
}

// concretePath fills `:param` and `*` segments with sample values.
func concretePath(pattern string) string {
	segments := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	for index, segment := range segments {
		if segment == "*" || strings.HasPrefix(segment, ":") {
			segments[index] = "7"
		}
	}
	return "/" + strings.Join(segments, "/")
}

// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taibuivan/dlms/internal/platform/apperr"
	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/ctxutil"
	"github.com/taibuivan/dlms/internal/platform/sec"
	"github.com/taibuivan/dlms/internal/platform/validate"
)

// validateFlight is the singleflight key shared by every concurrent Validate call.
const validateFlight = "validate"

// ErrNoProvider is returned when the session was never bound to an identity provider.
var ErrNoProvider = errors.New("session: identity provider not configured")

// Options carries the session's collaborators.
type Options struct {
	Tokens    TokenStore
	Identity  IdentityCache
	Inspector *sec.TokenInspector
	Logger    *slog.Logger
}

// Session is the authentication state of one workspace.
//
// # Concurrency
//
// All fields are guarded by mu. Network and storage calls are made WITHOUT
// holding the lock; results are applied afterwards only if no Login, Logout
// or 401 happened meanwhile (tracked by epoch).
type Session struct {
	tokens    TokenStore
	identity  IdentityCache
	inspector *sec.TokenInspector
	logger    *slog.Logger
	provider  Provider

	flight singleflight.Group

	mu          sync.RWMutex
	status      Status
	user        *User
	epoch       uint64
	identityTTL time.Duration
}

// New creates an unvalidated, anonymous session.
func New(options Options) *Session {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inspector := options.Inspector
	if inspector == nil {
		inspector = sec.NewTokenInspector(0)
	}

	return &Session{
		tokens:      options.Tokens,
		identity:    options.Identity,
		inspector:   inspector,
		logger:      logger,
		status:      StatusUnvalidated,
		identityTTL: constants.TokenTTL,
	}
}

// SetProvider binds the identity provider. It is separate from [New] because
// the provider's HTTP client reports 401s back to this session.
func (s *Session) SetProvider(provider Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = provider
}

// # Read Access

/*
Token returns the bearer token for outgoing requests.

A JWT whose expiry has passed is cleared and reported as absent, so the guard
never validates a token that is certain to fail.

Returns:
  - string: The token, or "" when anonymous
  - error: Token storage failures
*/
func (s *Session) Token(context context.Context) (string, error) {
	token, err := s.tokens.Token(context)
	if err != nil {
		return "", fmt.Errorf("session_token_read_failed: %w", err)
	}

	if token != "" && s.inspector.Expired(token) {
		s.logger.InfoContext(context, "session_token_expired")
		s.invalidate(context, "token_expired")
		return "", nil
	}
	return token, nil
}

/*
State returns a consistent snapshot for the navigation guard.

A storage failure is treated as "no token": the guard then fails closed on
protected routes.
*/
func (s *Session) State(context context.Context) State {
	token, err := s.Token(context)
	if err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "session_state_token_unavailable", slog.Any("error", err))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		HasToken:     token != "",
		IsValidating: s.status == StatusValidating,
		Status:       s.status,
	}

	if state.HasToken && s.user != nil {
		state.IsAuthenticated = true
		user := *s.user
		state.User = &user
	}
	return state
}

// # Lifecycle

/*
Restore rehydrates the session from the identity cache.

When a token AND a cached identity exist, the session is authenticated
immediately without a network call. A cached identity without a token is
stale and is dropped.
*/
func (s *Session) Restore(context context.Context) error {
	token, err := s.Token(context)
	if err != nil {
		return err
	}

	if s.identity == nil {
		return nil
	}

	if token == "" {
		return s.identity.ClearIdentity(context)
	}

	user, err := s.identity.LoadIdentity(context)
	if err != nil {
		s.logger.WarnContext(context, "session_identity_cache_unreadable", slog.Any("error", err))
		return nil
	}
	if user == nil {
		return nil
	}

	s.mu.Lock()
	if s.status == StatusUnvalidated {
		s.user = user
		s.status = StatusValid
	}
	s.mu.Unlock()

	s.logger.DebugContext(context, "session_restored", slog.Int64("user_id", user.ID))
	return nil
}

/*
Validate checks the identity endpoint with the current token.

Concurrent callers share one in-flight request. A session that is already
valid returns immediately. On failure the token and identity are cleared and
the status becomes Invalid, so the same token is never checked again.

Returns:
  - error: [apperr.KindAuthentication] when there is no usable token or the
    check failed
*/
func (s *Session) Validate(context context.Context) error {
	_, err, _ := s.flight.Do(validateFlight, func() (any, error) {
		// Detached: a guard call that gives up must not cancel the shared check.
		return nil, s.validate(contextWithoutCancel(context))
	})
	return err
}

// EnsureValidated validates only if the session has never been validated.
func (s *Session) EnsureValidated(context context.Context) error {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if status == StatusValid {
		return nil
	}
	return s.Validate(context)
}

func (s *Session) validate(context context.Context) error {
	token, err := s.Token(context)
	if err != nil {
		return err
	}
	if token == "" {
		return apperr.Unauthenticated("Not signed in").WithRedirect(constants.PathLogin)
	}

	s.mu.Lock()
	if s.status == StatusValid && s.user != nil {
		s.mu.Unlock()
		return nil
	}
	provider := s.provider
	epoch := s.epoch
	s.status = StatusValidating
	s.mu.Unlock()

	if provider == nil {
		s.restoreStatus(epoch, StatusUnvalidated)
		return ErrNoProvider
	}

	user, err := provider.CurrentUser(context)
	if err != nil || user == nil {
		if err == nil {
			err = errors.New("empty identity response")
		}
		s.logger.WarnContext(context, "session_validation_failed", slog.Any("error", err))

		if s.currentEpoch() == epoch {
			s.invalidate(context, "validation_failed")
		}
		return apperr.Unauthenticated("Your session is no longer valid").
			WithRedirect(constants.PathLogin).
			WithCause(err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// Login, Logout or a 401 happened while we were probing.
		s.mu.Unlock()
		s.logger.DebugContext(context, "session_validation_discarded")
		return nil
	}
	s.user = user
	s.status = StatusValid
	ttl := s.identityTTL
	s.mu.Unlock()

	s.saveIdentity(context, user, ttl)
	s.logger.InfoContext(context, "session_validated", slog.Int64("user_id", user.ID))
	return nil
}

/*
Login exchanges credentials for a token and authenticates the session.

Parameters:
  - context: context.Context
  - credentials: Credentials (RememberMe extends the token lifetime to 30 days)

Returns:
  - *User: The signed-in identity
  - error: Validation errors before any network call, or the API's failure
*/
func (s *Session) Login(context context.Context, credentials Credentials) (*User, error) {
	validator := &validate.Validator{}
	validator.
		Required(FieldLogin, credentials.Login).
		Required(FieldPassword, credentials.Password)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	provider := s.provider
	s.mu.RUnlock()
	if provider == nil {
		return nil, ErrNoProvider
	}

	grant, err := provider.Login(context, credentials)
	if err != nil {
		return nil, err
	}
	if grant == nil || grant.Token == "" {
		return nil, apperr.Upstream(http.StatusBadGateway, "Login response did not include a token")
	}

	ttl := constants.TokenTTL
	if credentials.RememberMe {
		ttl = constants.RememberedTokenTTL
	}

	if err := s.tokens.SetToken(context, grant.Token, ttl); err != nil {
		return nil, apperr.Internal(fmt.Errorf("session_token_write_failed: %w", err))
	}

	s.mu.Lock()
	s.epoch++
	s.identityTTL = ttl
	s.user = nil
	s.status = StatusUnvalidated
	s.mu.Unlock()

	user := grant.User
	if user == nil {
		// Some deployments return only the token; the identity comes from /user.
		if err := s.Validate(context); err != nil {
			return nil, err
		}
		return s.currentUser(), nil
	}

	s.mu.Lock()
	s.user = user
	s.status = StatusValid
	s.mu.Unlock()

	s.saveIdentity(context, user, ttl)
	s.logger.InfoContext(context, "session_login_succeeded",
		slog.Int64("user_id", user.ID),
		slog.Bool("remember_me", credentials.RememberMe),
	)
	return user, nil
}

/*
Logout revokes the token remotely and clears local state.

Local state is cleared even when the remote call fails; the failure is only
logged because the user is signed out either way.
*/
func (s *Session) Logout(context context.Context) error {
	s.mu.RLock()
	provider := s.provider
	s.mu.RUnlock()

	token, _ := s.Token(context)
	if provider != nil && token != "" {
		if err := provider.Logout(context); err != nil {
			s.logger.WarnContext(context, "session_remote_logout_failed", slog.Any("error", err))
		}
	}

	s.invalidate(context, "logout")
	s.logger.InfoContext(context, "session_logged_out")
	return nil
}

// HandleUnauthorized is the 401 hook for the API client: the credential is
// stale, so drop it and leave the session Invalid.
func (s *Session) HandleUnauthorized(context context.Context) {
	s.invalidate(context, "unauthorized")
}

// # Internal State Transitions

func (s *Session) invalidate(context context.Context, reason string) {
	s.mu.Lock()
	s.epoch++
	s.user = nil
	s.status = StatusInvalid
	s.mu.Unlock()

	if err := s.tokens.ClearToken(context); err != nil {
		s.logger.ErrorContext(context, "session_token_clear_failed", slog.Any("error", err))
	}
	if s.identity != nil {
		if err := s.identity.ClearIdentity(context); err != nil {
			s.logger.ErrorContext(context, "session_identity_clear_failed", slog.Any("error", err))
		}
	}

	s.logger.DebugContext(context, "session_invalidated", slog.String("reason", reason))
}

func (s *Session) saveIdentity(context context.Context, user *User, ttl time.Duration) {
	if s.identity == nil {
		return
	}
	if err := s.identity.SaveIdentity(context, user, ttl); err != nil {
		s.logger.WarnContext(context, "session_identity_cache_write_failed", slog.Any("error", err))
	}
}

func (s *Session) restoreStatus(epoch uint64, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch && s.status == StatusValidating {
		s.status = status
	}
}

func (s *Session) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *Session) currentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// contextWithoutCancel keeps values (request id, logger) but drops the deadline.
func contextWithoutCancel(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

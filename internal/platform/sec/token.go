// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides role primitives and token helpers for the gateway.
//
// # Architecture
//
// The gateway never verifies bearer tokens: the library API does. This package
// only inspects what is cheap and safe to inspect locally (JWT expiry claims),
// derives storage keys that do not expose secrets, and defines the role model.
package sec

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInspector reads claims from bearer tokens WITHOUT verifying them.
//
// # Why unverified?
//
// The signature is checked by the API on every request. Locally we only want to
// know whether a JWT has obviously expired, so the guard can treat it as absent
// instead of spending a round-trip on a guaranteed 401. Opaque tokens (for
// example Sanctum's "12|abc...") are never considered expired.
type TokenInspector struct {
	parser *jwt.Parser
	leeway time.Duration
	now    func() time.Time
}

// NewTokenInspector creates an inspector tolerating the given clock skew.
func NewTokenInspector(leeway time.Duration) *TokenInspector {
	return &TokenInspector{
		parser: jwt.NewParser(),
		leeway: leeway,
		now:    time.Now,
	}
}

// ExpiresAt returns the `exp` claim of a JWT. ok is false for opaque tokens
// and JWTs without an expiry.
func (inspector *TokenInspector) ExpiresAt(token string) (expiresAt time.Time, ok bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := inspector.parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether token is a JWT whose expiry is in the past.
func (inspector *TokenInspector) Expired(token string) bool {
	expiresAt, ok := inspector.ExpiresAt(token)
	if !ok {
		return false
	}
	return inspector.now().After(expiresAt.Add(inspector.leeway))
}

// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire gateway.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Session: Cookie names and token lifetimes.
  - Navigation: Well-known client paths used by redirects.
  - Storage: Redis key prefixes.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "dlms-gateway"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	// Longer than the API timeout so upstream failures can still be reported.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 25 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 50.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 100

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Session

const (
	// WorkspaceCookieName identifies the browser workspace (one SPA instance).
	WorkspaceCookieName = "dlms_sid"

	// TokenTTL is how long a bearer token is kept without "remember me".
	TokenTTL = 24 * time.Hour

	// RememberedTokenTTL is how long a bearer token is kept with "remember me".
	RememberedTokenTTL = 30 * 24 * time.Hour

	// WorkspaceSweepInterval is how often idle workspaces are evicted from memory.
	WorkspaceSweepInterval = 1 * time.Minute

	// TokenClockSkew is the leeway applied when reading a JWT expiry.
	TokenClockSkew = 30 * time.Second

	// ReaderStatePurgeInterval is how often expired postgres snapshots are deleted.
	ReaderStatePurgeInterval = 15 * time.Minute
)

// # Navigation

const (
	PathHome         = "/"
	PathLogin        = "/auth/login"
	PathAccessDenied = "/auth/access-denied"

	// QueryRedirect carries the originally requested path through the login flow.
	QueryRedirect = "redirect"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderAuthorization = "Authorization"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldChecks  = "checks"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixToken    = "dlms:token:"
	RedisPrefixIdentity = "dlms:identity:"
	RedisPrefixReader   = "dlms:reader:"
)

// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"time"
)

// # Persistent Client State

// TokenStore persists the bearer credential (the browser client's cookie).
type TokenStore interface {

	/*
		Token returns the persisted bearer token.

		Returns:
		  - string: The token, or "" when none is stored or it has expired
		  - error: Storage failures
	*/
	Token(context context.Context) (string, error)

	/*
		SetToken stores the bearer token for the given lifetime.

		Parameters:
		  - context: context.Context
		  - token: string
		  - ttl: time.Duration (1 day, or 30 days with "remember me")

		Returns:
		  - error: Storage failures
	*/
	SetToken(context context.Context, token string, ttl time.Duration) error

	// ClearToken removes the bearer token. Clearing an absent token is not an error.
	ClearToken(context context.Context) error
}

// IdentityCache persists the last known identity so a reload is instant.
type IdentityCache interface {

	/*
		LoadIdentity returns the cached identity.

		Returns:
		  - *User: The cached identity, or nil when nothing is cached
		  - error: Storage or decoding failures
	*/
	LoadIdentity(context context.Context) (*User, error)

	// SaveIdentity caches the identity for ttl.
	SaveIdentity(context context.Context, user *User, ttl time.Duration) error

	// ClearIdentity drops the cached identity.
	ClearIdentity(context context.Context) error
}

// # Remote Identity

// Provider is the library API's identity surface.
type Provider interface {

	// CurrentUser calls GET /user with the current token.
	CurrentUser(context context.Context) (*User, error)

	// Login exchanges credentials for a token via POST /login.
	Login(context context.Context, credentials Credentials) (*Grant, error)

	// Logout revokes the current token via POST /logout.
	Logout(context context.Context) error
}

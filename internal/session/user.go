// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session owns the client-held authentication state of one workspace.

# Architecture

The session is the only writer of authentication state. The navigation guard
receives it as an explicit dependency, reads immutable [State] snapshots and
may ask it to [Session.Validate]; it never mutates the session directly.

Lifecycle:

	Unvalidated ──Validate──▶ Validating ──ok──▶ Valid
	                               └──fail──▶ Invalid (token cleared)

Login moves straight to Valid; Logout and any 401 move to Invalid.
*/
package session

import (
	"github.com/taibuivan/dlms/internal/platform/sec"
)

// # Lifecycle

// Status is the validation lifecycle of the session.
type Status int

const (
	// StatusUnvalidated means the token (if any) has not been checked in this lifetime.
	StatusUnvalidated Status = iota
	// StatusValidating means an identity check is in flight.
	StatusValidating
	// StatusValid means the identity endpoint accepted the token.
	StatusValid
	// StatusInvalid means the token was rejected or revoked and has been cleared.
	StatusInvalid
)

// String returns the lowercase status name used in logs and JSON.
func (status Status) String() string {
	switch status {
	case StatusValidating:
		return "validating"
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	default:
		return "unvalidated"
	}
}

// MarshalText renders the status name.
func (status Status) MarshalText() ([]byte, error) {
	return []byte(status.String()), nil
}

// # Domain Entities

// User is the identity record returned by the library API.
type User struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Roles []sec.Role `json:"roles"`
}

// State is a point-in-time, read-only view of the session.
//
// Invariant: IsAuthenticated implies User != nil and HasToken.
type State struct {
	HasToken        bool   `json:"has_token"`
	IsAuthenticated bool   `json:"is_authenticated"`
	IsValidating    bool   `json:"is_validating"`
	Status          Status `json:"status"`
	User            *User  `json:"user"`
}

// Roles returns the user's roles, or nil for anonymous sessions.
func (state State) Roles() []sec.Role {
	if state.User == nil {
		return nil
	}
	return state.User.Roles
}

// Credentials is a login attempt.
type Credentials struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// Grant is what a successful login returns.
type Grant struct {
	Token string
	User  *User
}

// # Field Identifiers

const (
	FieldLogin    = "login"
	FieldPassword = "password"
)

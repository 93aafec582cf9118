// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"net/http"

	"github.com/taibuivan/dlms/internal/apiclient"
	"github.com/taibuivan/dlms/internal/platform/apperr"
)

// # Library API Endpoints

const (
	pathUser   = "user"
	pathLogin  = "login"
	pathLogout = "logout"
)

// RemoteProvider implements [Provider] against the library API.
type RemoteProvider struct {
	client *apiclient.Client
}

// NewRemoteProvider wraps a session-bound API client.
func NewRemoteProvider(client *apiclient.Client) *RemoteProvider {
	return &RemoteProvider{client: client}
}

// identityPayload accepts both a bare user object and `{"data": user}`.
type identityPayload struct {
	User
	Data *User `json:"data"`
}

// grantPayload accepts `access_token` or `token`, optionally nested under `data`.
type grantPayload struct {
	AccessToken string        `json:"access_token"`
	Token       string        `json:"token"`
	User        *User         `json:"user"`
	Data        *grantPayload `json:"data"`
}

func (payload *grantPayload) grant() *Grant {
	if payload.Data != nil {
		if nested := payload.Data.grant(); nested.Token != "" {
			return nested
		}
	}

	token := payload.AccessToken
	if token == "" {
		token = payload.Token
	}
	return &Grant{Token: token, User: payload.User}
}

// CurrentUser fetches the identity bound to the current token.
func (provider *RemoteProvider) CurrentUser(context context.Context) (*User, error) {
	var payload identityPayload
	if err := provider.client.Get(context, pathUser, nil, &payload); err != nil {
		return nil, err
	}

	if payload.Data != nil {
		return payload.Data, nil
	}
	if payload.User.ID == 0 {
		return nil, apperr.Upstream(http.StatusBadGateway, "Identity response did not include a user")
	}

	user := payload.User
	return &user, nil
}

// Login posts credentials and returns the issued token.
func (provider *RemoteProvider) Login(context context.Context, credentials Credentials) (*Grant, error) {
	body := map[string]any{
		"login":    credentials.Login,
		"password": credentials.Password,
		"remember": credentials.RememberMe,
	}

	var payload grantPayload
	if err := provider.client.Post(context, pathLogin, body, &payload); err != nil {
		return nil, err
	}
	return payload.grant(), nil
}

// Logout revokes the current token.
func (provider *RemoteProvider) Logout(context context.Context) error {
	return provider.client.Post(context, pathLogout, nil, nil)
}

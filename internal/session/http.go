// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dlms/internal/platform/constants"
	requestutil "github.com/taibuivan/dlms/internal/platform/request"
	"github.com/taibuivan/dlms/internal/platform/respond"
	"github.com/taibuivan/dlms/internal/platform/sec"
)

// # Definitions & Constructors

// Resolver returns the session of the workspace serving request.
type Resolver func(request *http.Request) *Session

// RedirectPolicy turns a requested post-login target into a safe local path,
// falling back to the landing page of the signed-in roles.
type RedirectPolicy func(requested string, roles []sec.Role) string

// Handler implements the session endpoints of the gateway.
type Handler struct {
	resolve  Resolver
	redirect RedirectPolicy
}

// NewHandler constructs a [Handler].
func NewHandler(resolve Resolver, redirect RedirectPolicy) *Handler {
	return &Handler{resolve: resolve, redirect: redirect}
}

// Routes returns a [chi.Router] with the session endpoints.
//
// # Endpoints
//   - GET  /          : Current session state.
//   - POST /login     : Signs in and returns the post-login redirect.
//   - POST /logout    : Signs out (always succeeds locally).
//   - POST /validate  : Validates the stored token against the API.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.state)
	router.Post("/login", handler.login)
	router.Post("/logout", handler.logout)
	router.Post("/validate", handler.validate)

	return router
}

// # Request Payloads

type loginRequest struct {
	Credentials
	Redirect string `json:"redirect"`
}

type loginResponse struct {
	User     *User  `json:"user"`
	Redirect string `json:"redirect"`
}

type logoutResponse struct {
	Redirect string `json:"redirect"`
}

/*
state returns the session snapshot.

GET /api/v1/session

Response:
  - 200: State
*/
func (handler *Handler) state(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.resolve(request).State(request.Context()))
}

/*
login authenticates against the library API.

POST /api/v1/session/login

Request:
  - Body: loginRequest (Login, Password, RememberMe, Redirect)

Response:
  - 200: loginResponse: The user and where the client should navigate next
  - 400: Validation failure
  - 401/422: Rejected credentials (the API's message)
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.resolve(request).Login(request.Context(), input.Credentials)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, loginResponse{
		User:     user,
		Redirect: handler.redirect(input.Redirect, user.Roles),
	})
}

/*
logout signs the workspace out.

POST /api/v1/session/logout

Response:
  - 200: logoutResponse: Always redirects to the home page
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if err := handler.resolve(request).Logout(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, logoutResponse{Redirect: constants.PathHome})
}

/*
validate checks the stored token against the identity endpoint.

POST /api/v1/session/validate

Response:
  - 200: State
  - 401: Token missing or rejected (carries the login redirect)
*/
func (handler *Handler) validate(writer http.ResponseWriter, request *http.Request) {
	session := handler.resolve(request)
	if err := session.Validate(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, session.State(request.Context()))
}

// # Middleware

/*
RequireAuthenticated blocks requests whose workspace is not signed in.

# Flow
 1. Validate the session once if it has a token but no confirmed identity.
 2. On failure, abort with 401 carrying the login redirect.
*/
func RequireAuthenticated(resolve Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if err := resolve(request).EnsureValidated(request.Context()); err != nil {
				respond.Error(writer, request, err)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

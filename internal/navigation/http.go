// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package navigation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dlms/internal/platform/apperr"
	"github.com/taibuivan/dlms/internal/platform/respond"
	"github.com/taibuivan/dlms/internal/platform/sec"
	"github.com/taibuivan/dlms/internal/platform/validate"
	"github.com/taibuivan/dlms/pkg/slice"
)

// Resolver returns the guard of the workspace serving request.
type Resolver func(request *http.Request) *Guard

// Handler exposes the guard over HTTP.
type Handler struct {
	resolve Resolver
}

// NewHandler constructs a [Handler].
func NewHandler(resolve Resolver) *Handler {
	return &Handler{resolve: resolve}
}

// Routes returns a [chi.Router] with the navigation endpoints.
//
// # Endpoints
//   - GET /resolve?path=/a/b?x=1 : The guard's decision for a client path.
//   - GET /routes                : The route table.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/resolve", handler.resolveTarget)
	router.Get("/routes", handler.listRoutes)

	return router
}

type routeView struct {
	Name                      string   `json:"name"`
	Path                      string   `json:"path"`
	Public                    bool     `json:"public"`
	RequiresAuth              bool     `json:"requires_auth"`
	Roles                     []string `json:"roles,omitempty"`
	RedirectWhenAuthenticated bool     `json:"redirect_when_authenticated,omitempty"`
}

/*
resolveTarget runs the guard for a client path without navigating.

GET /api/v1/navigation/resolve?path=...

Response:
  - 200: Decision
  - 400: Missing path
*/
func (handler *Handler) resolveTarget(writer http.ResponseWriter, request *http.Request) {
	raw := request.URL.Query().Get("path")
	if raw == "" {
		respond.Error(writer, request, validate.RequiredError("path", "This field is required"))
		return
	}

	respond.OK(writer, handler.resolve(request).Resolve(request.Context(), ParseTarget(raw)))
}

/*
listRoutes returns the route table with requirements rendered as "a|b".

GET /api/v1/navigation/routes
*/
func (handler *Handler) listRoutes(writer http.ResponseWriter, request *http.Request) {
	routes := handler.resolve(request).Table().Routes()

	views := make([]routeView, 0, len(routes))
	for _, route := range routes {
		views = append(views, routeView{
			Name:                      route.Name,
			Path:                      route.Path,
			Public:                    route.Public,
			RequiresAuth:              route.RequiresAuth,
			Roles:                     slice.Map(route.Requirements, sec.RoleRequirement.String),
			RedirectWhenAuthenticated: route.RedirectWhenAuthenticated,
		})
	}
	respond.OK(writer, views)
}

/*
Page answers a client navigation to the request's own path.

Response:
  - 200: Decision, the client may render the page
  - 303: Decision with Location set to the redirect target
  - 404: No route matches the path
*/
func (handler *Handler) Page(writer http.ResponseWriter, request *http.Request) {
	decision := handler.resolve(request).Resolve(request.Context(), Target{
		Path:     request.URL.Path,
		RawQuery: request.URL.RawQuery,
	})

	if decision.Route == nil {
		respond.Error(writer, request, apperr.NotFound("Page"))
		return
	}

	if decision.Redirect != "" {
		writer.Header().Set("Location", decision.Redirect)
		respond.JSON(writer, http.StatusSeeOther, respond.SuccessEnvelope{Data: decision})
		return
	}

	respond.OK(writer, decision)
}

// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/dlms-gateway are allowed to import net/http server primitives.

Route map:

	/health, /ready         liveness and readiness (no workspace)
	/api/v1/session         session.Handler
	/api/v1/navigation      navigation.Handler
	/api/v1/reader          reader.Handler (signed-in workspaces only)
	/*                      navigation.Handler.Page (client page navigations)
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/dlms/internal/navigation"
	"github.com/taibuivan/dlms/internal/platform/config"
	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/middleware"
	"github.com/taibuivan/dlms/internal/platform/sec"
	"github.com/taibuivan/dlms/internal/reader"
	"github.com/taibuivan/dlms/internal/session"
	"github.com/taibuivan/dlms/internal/workspace"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler: always 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler: 200 when all configured stores respond.
	Readiness http.HandlerFunc

	// Session handles login, logout and validation.
	Session *session.Handler

	// Navigation exposes the guard and answers page navigations.
	Navigation *navigation.Handler

	// Reader manages the optimistic annotation store.
	Reader *reader.Handler
}

// NewHandlers builds the domain handlers on top of the workspace resolvers.
func NewHandlers(table *navigation.Table, liveness, readiness http.HandlerFunc) Handlers {
	return Handlers{
		Liveness:   liveness,
		Readiness:  readiness,
		Session:    session.NewHandler(workspace.SessionOf, postLoginRedirect(table)),
		Navigation: navigation.NewHandler(workspace.GuardOf),
		Reader:     reader.NewHandler(workspace.ReaderOf),
	}
}

// postLoginRedirect honours a safe requested path, else the role landing page.
func postLoginRedirect(table *navigation.Table) session.RedirectPolicy {
	return func(requested string, roles []sec.Role) string {
		return navigation.SafeRedirect(requested, table.LandingPage(roles))
	}
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, workspaces *workspace.Registry, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.Workspace(cfg.IsProduction()))
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.RateLimit(context, constants.DefaultRateLimitRPS, constants.DefaultRateLimitBurst))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Workspace-Scoped Endpoints
	r.Group(func(app chi.Router) {
		app.Use(workspaces.Middleware())

		app.Route("/api/v1", func(api chi.Router) {
			api.Mount("/session", h.Session.Routes())
			api.Mount("/navigation", h.Navigation.Routes())

			api.Group(func(protected chi.Router) {
				protected.Use(session.RequireAuthenticated(workspace.SessionOf))
				protected.Mount("/reader", h.Reader.Routes())
			})
		})

		// Every other GET is a client page navigation.
		app.Get("/*", h.Navigation.Page)
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workspace

import (
	"context"
	"errors"
	"net/http"

	"github.com/taibuivan/dlms/internal/navigation"
	"github.com/taibuivan/dlms/internal/platform/apperr"
	"github.com/taibuivan/dlms/internal/platform/ctxutil"
	"github.com/taibuivan/dlms/internal/platform/respond"
	"github.com/taibuivan/dlms/internal/reader"
	"github.com/taibuivan/dlms/internal/session"
)

type contextKey struct{}

// WithWorkspace returns a context carrying ws.
func WithWorkspace(ctx context.Context, ws *Workspace) context.Context {
	return context.WithValue(ctx, contextKey{}, ws)
}

// FromContext returns the workspace attached by [Registry.Middleware], or nil.
func FromContext(ctx context.Context) *Workspace {
	ws, _ := ctx.Value(contextKey{}).(*Workspace)
	return ws
}

/*
Middleware attaches the request's workspace to its context.

Must be registered AFTER [middleware.Workspace], which puts the workspace id
in the context.
*/
func (registry *Registry) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			id := ctxutil.GetWorkspaceID(request.Context())
			if id == "" {
				respond.Error(writer, request, apperr.Internal(errors.New("workspace_id_missing")))
				return
			}

			ws := registry.Get(request.Context(), id)
			next.ServeHTTP(writer, request.WithContext(WithWorkspace(request.Context(), ws)))
		})
	}
}

// # Resolvers

// SessionOf resolves the session of the request's workspace.
func SessionOf(request *http.Request) *session.Session {
	return FromContext(request.Context()).Session
}

// GuardOf resolves the guard of the request's workspace.
func GuardOf(request *http.Request) *navigation.Guard {
	return FromContext(request.Context()).Guard
}

// ReaderOf resolves the reader store of the request's workspace.
func ReaderOf(request *http.Request) *reader.Store {
	return FromContext(request.Context()).Reader
}

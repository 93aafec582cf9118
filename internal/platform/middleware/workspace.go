// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/ctxutil"
)

/*
Workspace resolves the browser workspace from its cookie.

# Flow
 1. Read the workspace cookie.
 2. If it is missing or not a UUID, mint a new id and set the cookie.
 3. Inject the id into the request context.

The cookie has no Max-Age: like the browser's session storage, it lives as
long as the browser session. Stored credentials carry their own TTL.

# Parameters
  - secure: Whether the cookie requires HTTPS (production).
*/
func Workspace(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			workspaceID := ""
			if cookie, err := request.Cookie(constants.WorkspaceCookieName); err == nil && validWorkspaceID(cookie.Value) {
				workspaceID = cookie.Value
			}

			if workspaceID == "" {
				workspaceID = uuid.NewString()
				http.SetCookie(writer, &http.Cookie{
					Name:     constants.WorkspaceCookieName,
					Value:    workspaceID,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := ctxutil.WithWorkspaceID(request.Context(), workspaceID)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// validWorkspaceID accepts only the canonical 36-character UUID form.
func validWorkspaceID(value string) bool {
	if len(value) != 36 {
		return false
	}
	_, err := uuid.Parse(value)
	return err == nil
}

// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

// Session authentication middleware for the Lumera API server.
//
// # Architecture
//
// Middleware intercepts incoming HTTP requests to apply global policies
// before they reach the domain handlers. Session resolution happens here
// exactly once per request; handlers only ever read the resulting identity
// from the context.

package middleware

import (
	"context"
	"net/http"

	"github.com/lumera-id/lumera/internal/platform/apperr"
	"github.com/lumera-id/lumera/internal/platform/constants"
	"github.com/lumera-id/lumera/internal/platform/ctxutil"
	"github.com/lumera-id/lumera/internal/platform/respond"
	"github.com/lumera-id/lumera/internal/platform/sec"
)

// SessionResolver defines the interface needed to resolve session tokens
// in middleware.
//
// # Why an interface?
//
// Defining SessionResolver here decouples the middleware from the `auth`
// service implementation, allowing us to easily inject mocks during unit
// testing and avoiding an import cycle with the domain package.
type SessionResolver interface {
	// ResolveSession validates an opaque session token and returns the
	// identity it belongs to, or an error for unknown/expired/revoked tokens.
	ResolveSession(ctx context.Context, token string) (*sec.Identity, error)
}

// Authenticate extracts and validates the session cookie.
//
// # Flow
//  1. Check for the session cookie.
//  2. If absent, the request proceeds as anonymous.
//  3. If present, resolve the opaque token via [SessionResolver].
//  4. Inject [*sec.Identity] into the request context for downstream use.
//
// An invalid or expired session also proceeds as anonymous — the protected
// routes decide whether anonymity is acceptable via [RequireAuth]. This
// matches the read-path contract: an invalid session reads as "anonymous",
// never as an error page.
func Authenticate(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			cookie, err := request.Cookie(constants.SessionCookieName)

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Session Resolution ─────────────────────────────────────────
			identity, err := resolver.ResolveSession(request.Context(), cookie.Value)
			if err != nil {
				// Unknown, expired, or revoked: continue anonymously.
				next.ServeHTTP(writer, request)
				return
			}

			// ── 3. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithIdentity(request.Context(), identity)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
//
// # Flow
//  1. Check if [*sec.Identity] exists in context.
//  2. If missing, abort with HTTP 401 Unauthorized.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		identity := ctxutil.GetIdentity(request.Context())
		if identity == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

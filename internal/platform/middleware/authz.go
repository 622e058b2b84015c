// Copyright (c) 2026 Divvy. All rights reserved.

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/divvyapp/divvy/internal/platform/apperr"
	"github.com/divvyapp/divvy/internal/platform/constants"
	"github.com/divvyapp/divvy/internal/platform/ctxutil"
	requestutil "github.com/divvyapp/divvy/internal/platform/request"
	"github.com/divvyapp/divvy/internal/platform/respond"
	"github.com/divvyapp/divvy/internal/platform/sec"
)

// authRealm is advertised in WWW-Authenticate challenges.
const authRealm = "divvy"

// TokenVerifier defines the interface needed to verify tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the `auth` service
// implementation, allowing us to easily inject mocks during unit testing.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*sec.AuthClaims, error)
}

// RequireAuth guards a route with bearer-token authentication.
//
// # Flow
//  1. Extract 'Authorization: Bearer <token>'. Absent → 401 missing_token.
//     Another scheme or an empty credential → 401 invalid_signature.
//  2. Verify the token via [TokenVerifier] (signature, expiry, revocation).
//  3. On failure, reject with the verifier's reason (401) or 503 when the
//     revocation store is unavailable. The wrapped handler is never invoked.
//  4. On success, inject [*sec.AuthClaims] into the request context.
//
// # Parameters
//   - verifier: The TokenVerifier instance.
//
// # Returns
//   - An [http.Handler] middleware.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Extraction ─────────────────────────────────────────────────
			var cause error
			token, ok := requestutil.BearerToken(request)
			switch {
			case request.Header.Get(constants.HeaderAuthorization) == "":
				cause = sec.ErrUnauthenticated
			case !ok:
				cause = fmt.Errorf("%w: unsupported authorization scheme", sec.ErrMalformedToken)
			}

			// ── 2. Validation ─────────────────────────────────────────────────
			var claims *sec.AuthClaims
			if cause == nil {
				claims, cause = verifier.VerifyToken(request.Context(), token)
			}

			// ── 3. Rejection ──────────────────────────────────────────────────
			if cause != nil {
				reject(writer, request, cause)
				return
			}

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithAuthUser(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// reject writes the guard's failure response and challenge header.
func reject(writer http.ResponseWriter, request *http.Request, cause error) {
	appErr := apperr.Auth(cause)

	switch appErr.Reason {
	case apperr.ReasonMissingToken:
		writer.Header().Set(constants.HeaderWWWAuthenticate, fmt.Sprintf(`Bearer realm=%q`, authRealm))
	case apperr.ReasonStoreUnavailable:
	default:
		writer.Header().Set(constants.HeaderWWWAuthenticate,
			fmt.Sprintf(`Bearer realm=%q, error="invalid_token", error_description=%q`, authRealm, appErr.Reason))
	}

	if appErr.HTTPStatus < http.StatusInternalServerError {
		ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "auth_rejected",
			slog.String(constants.FieldReason, appErr.Reason),
			slog.String("error", cause.Error()),
		)
	}

	respond.Error(writer, request, appErr)
}

// RequireRole blocks requests if the authenticated user doesn't have the required role.
//
// # Usage
//
// Must be registered in the router AFTER [RequireAuth].
//
// # Flow
//  1. Check if [*sec.AuthClaims] exists in context (implies AuthN).
//  2. Check if the user's role meets or exceeds the required target role using [sec.UserRole.AtLeast].
//  3. If insufficient, abort with HTTP 403 Forbidden.
func RequireRole(role sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Authentication Check ───────────────────────────────────────
			claims, err := requestutil.RequiredClaims(request)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			if !sec.UserRole(claims.Role).AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package auth provides the HTTP delivery layer for user identity management.

It implements the gateway for the authentication lifecycle, from account
creation to session management.

# Architecture

The handler acts as a thin mediation layer between the web and domain services:
  - Protocol: Standard RESTful JSON interface.
  - Security: Handles JWT orchestration and refresh token cookie injection.
  - Errors: Every failure is mapped through [apperr.Auth] before it is written.

This layer is strictly responsible for transport concerns (status codes, headers, JSON).
*/
package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/divvyapp/divvy/internal/platform/apperr"
	"github.com/divvyapp/divvy/internal/platform/constants"
	"github.com/divvyapp/divvy/internal/platform/middleware"
	requestutil "github.com/divvyapp/divvy/internal/platform/request"
	"github.com/divvyapp/divvy/internal/platform/respond"
	"github.com/divvyapp/divvy/internal/platform/validate"
)

// # Definitions & Constructors

// HandlerOptions tunes transport behaviour that differs between environments.
type HandlerOptions struct {
	// LoginLimiter, if set, wraps POST /login only.
	LoginLimiter func(http.Handler) http.Handler

	// SecureCookies marks the refresh cookie Secure. Disabled only for local HTTP development.
	SecureCookies bool
}

// Handler implements authentication-related HTTP endpoints.
type Handler struct {
	authService *Service
	verifier    middleware.TokenVerifier
	options     HandlerOptions
}

// NewHandler constructs a new [Handler]. The verifier backs the route guard
// on every protected endpoint.
func NewHandler(service *Service, verifier middleware.TokenVerifier, options HandlerOptions) *Handler {
	return &Handler{authService: service, verifier: verifier, options: options}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST   /register        : Creates a new account.
//   - POST   /login           : Authenticates and returns a token pair.
//   - POST   /refresh         : Rotates the refresh token.
//   - POST   /logout          : Revokes the access token and refresh session.
//   - POST   /change-password : Replaces the password, revoking other sessions.
//   - GET    /me              : Returns the caller's account.
//   - GET    /sessions        : Lists the caller's active sessions.
//   - DELETE /sessions/{id}   : Revokes one of the caller's sessions.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/refresh", handler.refresh)

	router.Group(func(r chi.Router) {
		if handler.options.LoginLimiter != nil {
			r.Use(handler.options.LoginLimiter)
		}
		r.Post("/login", handler.login)
	})

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(handler.verifier))
		r.Post("/logout", handler.logout)
		r.Post("/change-password", handler.changePassword)
		r.Get("/me", handler.me)
		r.Get("/sessions", handler.listSessions)
		r.Delete("/sessions/{id}", handler.revokeSession)
	})

	return router
}

// # Request & Response Payloads

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	RefreshToken    string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

type changePasswordResponse struct {
	Message         string `json:"message"`
	SessionsRevoked int64  `json:"sessions_revoked"`
}

// fail writes err after mapping authentication sentinels to their responses.
func fail(writer http.ResponseWriter, request *http.Request, err error) {
	respond.Error(writer, request, apperr.Auth(err))
}

/*
Register handles the creation of a new user account.

POST /api/v1/auth/register

Request:
  - Body: registerRequest

Response:
  - 201: User: Created user profile
  - 400: VALIDATION_ERROR: Bad input or validation failure
  - 409: CONFLICT: Username or Email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		fail(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Username:    input.Username,
		Email:       input.Email,
		Password:    input.Password,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Phone:       input.Phone,
		DateOfBirth: input.DateOfBirth,
	})
	if err != nil {
		fail(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials, issues a JWT access token, and injects
a secure refresh token cookie into the response.

Request:
  - Body: loginRequest (Login, Password)

Response:
  - 200: tokenResponse
  - 401: UNAUTHORIZED (invalid_credentials)
  - 503: SERVICE_UNAVAILABLE (store_unavailable)
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		fail(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldLogin, input.Login).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		fail(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Login:     input.Login,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
		IPAddress: middleware.RealIP(request),
	})
	if err != nil {
		fail(writer, request, err)
		return
	}

	handler.writeSession(writer, session)
}

/*
Refresh issues a new token pair using a valid refresh token.

POST /api/v1/auth/refresh

Description: Reads the refresh token from the cookie, falling back to the
JSON body for clients that cannot hold cookies.

Response:
  - 200: tokenResponse
  - 401: UNAUTHORIZED (invalid_refresh_token)
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	refreshToken, err := handler.refreshToken(writer, request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	session, err := handler.authService.RefreshSession(request.Context(), RefreshInput{
		RefreshToken: refreshToken,
		UserAgent:    request.UserAgent(),
		IPAddress:    middleware.RealIP(request),
	})
	if err != nil {
		appErr := apperr.Auth(err)
		if appErr.Reason == apperr.ReasonInvalidRefresh {
			handler.clearCookie(writer)
		}
		respond.Error(writer, request, appErr)
		return
	}

	handler.writeSession(writer, session)
}

/*
Logout terminates the current user session.

POST /api/v1/auth/logout

Description: Revokes the presented access token and the refresh session
(if present), then clears the refresh cookie.

Response:
  - 204: No Content: Session terminated
  - 503: SERVICE_UNAVAILABLE: Revocation could not be recorded
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	// The refresh token is optional here; only a broken body is an error.
	refreshToken, err := handler.refreshToken(writer, request)
	if err != nil {
		if appErr := apperr.As(err); appErr == nil || appErr.Reason != apperr.ReasonInvalidRefresh {
			fail(writer, request, err)
			return
		}
	}

	if err := handler.authService.Logout(request.Context(), claims, refreshToken); err != nil {
		fail(writer, request, err)
		return
	}

	handler.clearCookie(writer)
	respond.NoContent(writer)
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword, optional RefreshToken)

Response:
  - 200: changePasswordResponse
  - 400: VALIDATION_ERROR: Weak password or validation failure
  - 401: UNAUTHORIZED: Current password is incorrect
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		fail(writer, request, err)
		return
	}

	refreshToken := input.RefreshToken
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		refreshToken = cookie.Value
	}

	revoked, err := handler.authService.ChangePassword(request.Context(), ChangePasswordInput{
		UserID:          claims.UserID,
		CurrentPassword: input.CurrentPassword,
		NewPassword:     input.NewPassword,
		RefreshToken:    refreshToken,
	})
	if err != nil {
		fail(writer, request, err)
		return
	}

	respond.OK(writer, changePasswordResponse{
		Message:         "Password changed successfully",
		SessionsRevoked: revoked,
	})
}

/*
Me returns the authenticated user's account.

GET /api/v1/auth/me

Response:
  - 200: User
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	user, err := handler.authService.CurrentUser(request.Context(), userID)
	if err != nil {
		fail(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
ListSessions returns the caller's active sessions.

GET /api/v1/auth/sessions

Response:
  - 200: []Session (the one matching the refresh cookie has current=true)
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	var refreshToken string
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil {
		refreshToken = cookie.Value
	}

	sessions, err := handler.authService.ListSessions(request.Context(), userID, refreshToken)
	if err != nil {
		fail(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
RevokeSession revokes one of the caller's sessions.

DELETE /api/v1/auth/sessions/{id}

Response:
  - 204: No Content
  - 404: NOT_FOUND: Unknown, foreign or already revoked session
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	if err := handler.authService.RevokeSession(request.Context(), userID, requestutil.Param(request, FieldSessionID)); err != nil {
		fail(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Helpers

// refreshToken reads the refresh token from the cookie or, failing that, the body.
func (handler *Handler) refreshToken(writer http.ResponseWriter, request *http.Request) (string, error) {
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	var input refreshRequest
	if err := requestutil.DecodeOptionalJSON(writer, request, &input); err != nil {
		return "", err
	}
	if input.RefreshToken == "" {
		return "", errInvalidRefresh(nil)
	}
	return input.RefreshToken, nil
}

// writeSession sets the refresh cookie and writes the token pair.
func (handler *Handler) writeSession(writer http.ResponseWriter, session *LoginSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		Secure:   handler.options.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.OK(writer, tokenResponse{
		AccessToken:  session.AccessToken,
		TokenType:    constants.AuthScheme,
		ExpiresIn:    int64(handler.authService.config.AccessTokenTTL / time.Second),
		RefreshToken: session.RefreshToken,
		User:         session.User,
	})
}

// clearCookie expires the refresh cookie on the client.
func (handler *Handler) clearCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   handler.options.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

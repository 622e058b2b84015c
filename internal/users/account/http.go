// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package account provides the HTTP delivery layer for profile management.

# Security

All endpoints in this package require an active access token checked by the
RequireAuth middleware. The member directory additionally requires the admin role.
*/
package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/divvyapp/divvy/internal/platform/apperr"
	"github.com/divvyapp/divvy/internal/platform/middleware"
	requestutil "github.com/divvyapp/divvy/internal/platform/request"
	"github.com/divvyapp/divvy/internal/platform/respond"
	"github.com/divvyapp/divvy/internal/platform/sec"
	"github.com/divvyapp/divvy/pkg/pagination"
	"github.com/divvyapp/divvy/pkg/query"
	"github.com/divvyapp/divvy/pkg/slice"
)

// Handler implements the HTTP layer for account management.
type Handler struct {
	accountService *Service
	verifier       middleware.TokenVerifier
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service, verifier middleware.TokenVerifier) *Handler {
	return &Handler{accountService: service, verifier: verifier}
}

// Routes returns a [chi.Router] configured with the account endpoints.
//
// # Endpoints
//   - GET    /account : Returns the caller's profile.
//   - PATCH  /account : Updates the caller's profile.
//   - DELETE /account : Deletes the caller's account.
//   - GET    /users   : Lists members (admin only).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth(handler.verifier))

	router.Get("/account", handler.getProfile)
	router.Patch("/account", handler.updateProfile)
	router.Delete("/account", handler.deleteAccount)

	router.With(middleware.RequireRole(sec.RoleAdmin)).Get("/users", handler.listMembers)

	return router
}

// fail maps authentication sentinels before writing the error envelope.
func fail(writer http.ResponseWriter, request *http.Request, err error) {
	respond.Error(writer, request, apperr.Auth(err))
}

// # Profile Endpoints

/*
GET /api/v1/account.

Response:
  - 200: User: Fully hydrated user profile
  - 401: Authentication required
*/
func (handler *Handler) getProfile(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	user, err := handler.accountService.GetProfile(request.Context(), userID)
	if err != nil {
		fail(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// updateProfileRequest defines the expected JSON payload for profile updates.
type updateProfileRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Phone       *string `json:"phone"`
	DateOfBirth *string `json:"date_of_birth"`
}

/*
PATCH /api/v1/account.

Request:
  - body: updateProfileRequest (Partial JSON)

Response:
  - 200: User: The updated profile
  - 400: Invalid JSON or validation failures
  - 401: Authentication required
*/
func (handler *Handler) updateProfile(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	var input updateProfileRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		fail(writer, request, err)
		return
	}

	user, err := handler.accountService.UpdateProfile(request.Context(), userID, UpdateProfileInput{
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Phone:       input.Phone,
		DateOfBirth: input.DateOfBirth,
	})
	if err != nil {
		fail(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
DELETE /api/v1/account.

Response:
  - 204: Account deleted
  - 401: Authentication required
  - 503: Revocation store unavailable
*/
func (handler *Handler) deleteAccount(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		fail(writer, request, err)
		return
	}

	if err := handler.accountService.DeleteAccount(request.Context(), claims); err != nil {
		fail(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Member Directory

/*
GET /api/v1/users.

Request:
  - q: string (Username or e-mail substring)
  - role: string (Comma-separated roles)
  - page, limit: int

Response:
  - 200: []Summary with pagination meta
  - 403: Caller is not an admin
*/
func (handler *Handler) listMembers(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)
	queryParams := request.URL.Query()

	filter := ListFilter{
		Query: queryParams.Get("q"),
		Roles: slice.Map(query.StringSlice(queryParams.Get("role")), func(role string) sec.UserRole {
			return sec.UserRole(role)
		}),
	}

	members, total, err := handler.accountService.ListMembers(request.Context(), filter, paginationParams)
	if err != nil {
		fail(writer, request, err)
		return
	}

	respond.Paginated(writer, members, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}

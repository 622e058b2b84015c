// Copyright (c) 2026 Divvy. All rights reserved.

package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/divvyapp/divvy/internal/platform/ctxutil"
	"github.com/divvyapp/divvy/internal/platform/revocation"
	"github.com/divvyapp/divvy/internal/platform/sec"
	"github.com/divvyapp/divvy/internal/platform/validate"
	"github.com/divvyapp/divvy/internal/users/auth"
	"github.com/divvyapp/divvy/pkg/pagination"
	"github.com/divvyapp/divvy/pkg/pointer"
	"github.com/divvyapp/divvy/pkg/slice"
)

// FieldRole is the validation field for the directory role filter.
const FieldRole = "role"

// # Service Layer

// Service orchestrates profile updates, account deletion and the member directory.
type Service struct {
	repository   Repository
	revocations  revocation.Store
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService constructs a new [Service] with its dependencies. storeTimeout
// bounds each repository or revocation call; zero leaves them unbounded.
func NewService(repository Repository, revocations revocation.Store, storeTimeout time.Duration) *Service {
	return &Service{
		repository:   repository,
		revocations:  revocations,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// storeContext derives the bounded context used for a single store call.
func (service *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if service.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, service.storeTimeout)
}

// # Profile Management

/*
GetProfile retrieves the full private profile of a user.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *auth.User: The hydrated user profile
  - error: Not found or execution failures
*/
func (service *Service) GetProfile(context context.Context, userID string) (*auth.User, error) {
	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	user, err := service.repository.FindByID(storeCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("account_service_get_profile_failed: %w", err)
	}
	return user, nil
}

// UpdateProfileInput defines the mutable subset of profile fields.
// A nil field is left unchanged; an empty Phone or DateOfBirth clears it.
type UpdateProfileInput struct {
	FirstName   *string
	LastName    *string
	Phone       *string
	DateOfBirth *string
}

/*
UpdateProfile applies a partial set of changes to a user's profile.

Description: Validates only the provided fields, overrides them on the stored
user and synchronizes the change to persistent storage.

Parameters:
  - context: context.Context
  - userID: string
  - input: UpdateProfileInput

Returns:
  - *auth.User: The updated user profile
  - error: Validation, NotFound or storage failures
*/
func (service *Service) UpdateProfile(context context.Context, userID string, input UpdateProfileInput) (*auth.User, error) {
	validator := &validate.Validator{}

	if input.FirstName != nil {
		input.FirstName = pointer.To(strings.TrimSpace(*input.FirstName))
		validator.Required(auth.FieldFirstName, *input.FirstName).
			MaxLen(auth.FieldFirstName, *input.FirstName, auth.NameMaxLength)
	}
	if input.LastName != nil {
		input.LastName = pointer.To(strings.TrimSpace(*input.LastName))
		validator.Required(auth.FieldLastName, *input.LastName).
			MaxLen(auth.FieldLastName, *input.LastName, auth.NameMaxLength)
	}
	if input.Phone != nil {
		input.Phone = pointer.To(strings.TrimSpace(*input.Phone))
		if *input.Phone != "" {
			validator.Pattern(auth.FieldPhone, *input.Phone, auth.PhonePattern, "Must be 10 or 11 digits")
		}
	}

	var dateOfBirth *time.Time
	if input.DateOfBirth != nil {
		dateOfBirth = auth.ParseDateOfBirth(validator, *input.DateOfBirth, service.now())
	}

	if err := validator.Err(); err != nil {
		return nil, err
	}

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	user, err := service.repository.FindByID(storeCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("account_service_update_lookup_failed: %w", err)
	}

	// Apply delta updates
	user.FirstName = pointer.Fallback(input.FirstName, user.FirstName)
	user.LastName = pointer.Fallback(input.LastName, user.LastName)
	user.Phone = pointer.Fallback(input.Phone, user.Phone)
	if input.DateOfBirth != nil {
		user.DateOfBirth = dateOfBirth
	}

	if err := service.repository.UpdateProfile(storeCtx, user); err != nil {
		return nil, fmt.Errorf("account_service_update_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_profile_updated", slog.String("user_id", userID))

	return user, nil
}

/*
DeleteAccount permanently removes the caller's account.

Description: Revokes the access token used for the request first, so a store
outage leaves the account intact, then deletes the account together with
every refresh session.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims (The caller's verified access token)

Returns:
  - error: StoreUnavailable, NotFound or storage failures
*/
func (service *Service) DeleteAccount(context context.Context, claims *sec.AuthClaims) error {
	revokeCtx, cancelRevoke := service.storeContext(context)
	defer cancelRevoke()

	if err := service.revocations.Revoke(revokeCtx, claims.ID, claims.ExpiresAtTime()); err != nil {
		return sec.Unavailable(fmt.Errorf("account_service_delete_revoke_failed: %w", err))
	}

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	if err := service.repository.Delete(storeCtx, claims.UserID); err != nil {
		return fmt.Errorf("account_service_delete_failed: %w", err)
	}

	ctxutil.GetLogger(context).WarnContext(context, "user_account_deleted", slog.String("user_id", claims.UserID))

	return nil
}

// # Member Directory

/*
ListMembers returns one page of the member directory.

Parameters:
  - context: context.Context
  - filter: ListFilter
  - params: pagination.Params

Returns:
  - []Summary: Members on the requested page
  - int: Total members matching filter
  - error: Validation or storage failures
*/
func (service *Service) ListMembers(context context.Context, filter ListFilter, params pagination.Params) ([]Summary, int, error) {
	allowed := slice.Map(sec.Roles, func(role sec.UserRole) string { return string(role) })
	validator := &validate.Validator{}
	for _, role := range filter.Roles {
		validator.OneOf(FieldRole, string(role), allowed...)
	}
	if err := validator.Err(); err != nil {
		return nil, 0, err
	}
	filter.Query = strings.TrimSpace(filter.Query)

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	users, total, err := service.repository.List(storeCtx, filter, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("account_service_list_failed: %w", err)
	}

	summaries := slice.Map(users, summarize)
	if summaries == nil {
		summaries = []Summary{}
	}
	return summaries, total, nil
}

// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package account handles profile management and the administrative member directory.

It lets members view, edit and delete their own account, and lets admins
browse registered members.

# Architecture

  - Entities: Summary (directory DTO), ListFilter.
  - Domain: This package depends on the auth package for the User entity.
  - Security: Every endpoint sits behind the route guard; the directory also
    requires the admin role.
*/
package account

import (
	"context"
	"time"

	"github.com/divvyapp/divvy/internal/platform/sec"
	"github.com/divvyapp/divvy/internal/users/auth"
)

// # Domain Entities

// Summary is the directory view of a member. It omits personal details.
type Summary struct {
	ID        string       `json:"id"`
	Username  string       `json:"username"`
	Email     string       `json:"email"`
	Role      sec.UserRole `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}

func summarize(user *auth.User) Summary {
	return Summary{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

// ListFilter narrows the member directory.
type ListFilter struct {
	// Query matches a substring of the username or e-mail.
	Query string

	// Roles keeps only members holding one of these roles. Empty means all.
	Roles []sec.UserRole
}

// # Repository Contracts

// Repository defines the persistence contract for account management.
type Repository interface {
	/*
		FindByID retrieves a user record by their unique ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *auth.User: Loaded account entity
		  - error: NotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*auth.User, error)

	/*
		UpdateProfile writes the mutable profile fields and refreshes UpdatedAt.

		Parameters:
		  - context: context.Context
		  - user: *auth.User (Hydrated entity with changes)

		Returns:
		  - error: NotFound or storage failures
	*/
	UpdateProfile(context context.Context, user *auth.User) error

	/*
		List returns one page of members plus the total matching count.

		Parameters:
		  - context: context.Context
		  - filter: ListFilter
		  - limit, offset: int

		Returns:
		  - []*auth.User: Members, newest first
		  - int: Total rows matching filter
		  - error: Storage failures
	*/
	List(context context.Context, filter ListFilter, limit, offset int) ([]*auth.User, int, error)

	/*
		Delete removes an account. Its sessions are removed with it.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: NotFound or storage failures
	*/
	Delete(context context.Context, id string) error
}

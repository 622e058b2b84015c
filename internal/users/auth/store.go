// Copyright (c) 2026 Divvy. All rights reserved.

package auth

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
//
// Lookups that match nothing return an error satisfying [dberr.IsNotFound];
// connectivity failures satisfy errors.Is(err, sec.ErrStoreUnavailable).
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given canonical email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		FindByUsername returns the account with the given canonical username.

		Parameters:
		  - context: context.Context
		  - username: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByUsername(context context.Context, username string) (*User, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Conflict on duplicate username/email, or persistence failures
	*/
	Create(context context.Context, user *User) error

	/*
		UpdatePassword replaces the user's password hash and revokes every active
		session except keepSessionID, atomically. An empty keepSessionID revokes all.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string
		  - keepSessionID: string (optional)

		Returns:
		  - int64: Number of sessions revoked
		  - error: NotFound or persistence failures; nothing is written on error
	*/
	UpdatePassword(context context.Context, userID, newHash, keepSessionID string) (int64, error)
}

// # Session Data Access

// SessionRepository defines the data access contract for refresh-token sessions.
type SessionRepository interface {

	/*
		Create persists a new tracking session for an authenticated login.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByTokenHash returns the session matching the given token hash,
		whether it is active, revoked or expired.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Hydrated entity
		  - error: NotFound or database retrieval failures
	*/
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	/*
		Rotate revokes the previous session, records next as its replacement and
		persists next, atomically.

		Parameters:
		  - context: context.Context
		  - previousID: string
		  - next: *Session

		Returns:
		  - error: NotFound if previousID was already revoked, or persistence failures
	*/
	Rotate(context context.Context, previousID string, next *Session) error

	/*
		ListActive returns the user's sessions that are neither revoked nor expired at now.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - now: time.Time

		Returns:
		  - []*Session: Newest first
		  - error: Database retrieval failures
	*/
	ListActive(context context.Context, userID string, now time.Time) ([]*Session, error)

	/*
		Revoke marks one of the user's sessions as permanently invalidated.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - sessionID: string

		Returns:
		  - error: NotFound if the session does not exist, belongs to someone else or is already revoked
	*/
	Revoke(context context.Context, userID, sessionID string) error

	/*
		RevokeAll revokes every active session belonging to the userID.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - int64: Number of sessions revoked
		  - error: Persistence failures
	*/
	RevokeAll(context context.Context, userID string) (int64, error)

	/*
		DeleteExpired physically removes sessions whose ExpiresAt is at or before now.

		Parameters:
		  - context: context.Context
		  - now: time.Time

		Returns:
		  - int64: Number of rows removed
		  - error: Persistence failures
	*/
	DeleteExpired(context context.Context, now time.Time) (int64, error)
}

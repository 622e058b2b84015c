// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package auth implements the user identity and session management layer.

It defines the core domain entities (User, Session) and logic for authentication,
authorization, and account lifecycle.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package auth

import (
	"time"

	"github.com/divvyapp/divvy/internal/platform/sec"
)

// # Domain Entities

// User represents a registered member of the Divvy platform.
type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"` // Explicitly omitted from JSON for security.
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Phone        string       `json:"phone,omitempty"`
	DateOfBirth  *time.Time   `json:"date_of_birth,omitempty"`
	Role         sec.UserRole `json:"role"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Subject returns the identity embedded in access tokens issued for the user.
func (user *User) Subject() sec.Subject {
	return sec.Subject{UserID: user.ID, Username: user.Username, Role: user.Role}
}

// Session represents a refresh-token session.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"` // Hashed value of the refresh token. Omitted for security.
	UserAgent string     `json:"user_agent"`
	IPAddress string     `json:"ip_address"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsRevoked bool       `json:"is_revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	// ReplacedBy is the successor's ID once the session was rotated away.
	ReplacedBy string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`

	// Current marks the session the caller is using. Not persisted.
	Current bool `json:"current"`
}

// Rotated reports whether the session was revoked by a refresh rather than
// a logout or password change.
func (session *Session) Rotated() bool {
	return session.IsRevoked && session.ReplacedBy != ""
}

// ActiveAt reports whether the session can still be exchanged at now.
func (session *Session) ActiveAt(now time.Time) bool {
	return !session.IsRevoked && now.Before(session.ExpiresAt)
}

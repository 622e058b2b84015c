// Copyright (c) 2026 Divvy. All rights reserved.

package auth

import "regexp"

// # Authentication Constraints

const (
	// RefreshTokenLength is the byte length of the random secure token.
	RefreshTokenLength = 32

	// Username length bounds, counted after canonicalization.
	UsernameMinLength = 3
	UsernameMaxLength = 32

	// PasswordMinLength is counted in characters; the upper bound is
	// [sec.MaxPasswordBytes] bytes.
	PasswordMinLength = 8

	// NameMaxLength bounds first and last names.
	NameMaxLength = 100

	// DateOfBirthLayout is the wire format of "date_of_birth".
	DateOfBirthLayout = "2006-01-02"
)

var (
	// usernamePattern accepts canonical usernames only.
	usernamePattern = regexp.MustCompile(`^[\p{Ll}\p{Lo}\p{Nd}_.]+$`)

	// PhonePattern accepts 10 or 11 digit phone numbers.
	PhonePattern = regexp.MustCompile(`^[0-9]{10,11}$`)
)

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldFirstName       = "first_name"
	FieldLastName        = "last_name"
	FieldPhone           = "phone"
	FieldDateOfBirth     = "date_of_birth"
	FieldLogin           = "login"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldRefreshToken    = "refresh_token"
	FieldSessionID       = "id"
	FieldMessage         = "message"
)

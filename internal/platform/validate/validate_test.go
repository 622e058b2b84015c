// Copyright (c) 2026 Divvy. All rights reserved.

package validate_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divvyapp/divvy/internal/platform/apperr"
	"github.com/divvyapp/divvy/internal/platform/validate"
)

/*
TestValidator_Required tests the mandatory field validation logic.
*/
func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		value    string
		hasError bool
	}{
		{"valid_string", "name", "Divvy", false},
		{"empty_string", "name", "", true},
		{"whitespace_only", "name", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Required(tt.field, tt.value)

			if tt.hasError {
				err := v.Err()
				require.NotNil(t, err)

				ae := apperr.As(err)
				require.NotNil(t, ae)
				assert.Equal(t, "VALIDATION_ERROR", ae.Code)
				assert.Equal(t, tt.field, ae.Details[0].Field)
			} else {
				assert.Nil(t, v.Err())
			}
		})
	}
}

/*
TestValidator_Email checks the email format validation rule.
*/
func TestValidator_Email(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		isValid bool
	}{
		{"valid_email", "test@example.com", true},
		{"invalid_format", "invalid-email", false},
		{"missing_domain", "test@", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Email("email", tt.email)

			if tt.isValid {
				assert.NoError(t, v.Err())
			} else {
				assert.Error(t, v.Err())
			}
		})
	}
}

/*
TestValidator_Chain tests the fluent API (chaining multiple rules).
*/
func TestValidator_Chain(t *testing.T) {
	v := &validate.Validator{}

	// Multi-rule validation
	err := v.
		Required("username", "alice").
		MinLen("username", "alice", 3).
		MaxLen("username", "alice", 10).
		Email("email", "alice@divvy.app").
		Err()

	assert.NoError(t, err)
}

/*
TestValidator_Chain_Failure tests error accumulation in the chain.
*/
func TestValidator_Chain_Failure(t *testing.T) {
	v := &validate.Validator{}

	err := v.
		Required("username", "").       // Fails
		MinLen("username", "a", 5).     // Fails
		Email("email", "not-an-email"). // Fails
		Err()

	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)

	// Should accumulate all 3 errors
	assert.Len(t, ae.Details, 3)
}

/*
TestValidator_MaxBytes counts bytes, not characters.
*/
func TestValidator_MaxBytes(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		isValid bool
	}{
		{"ascii_at_limit", strings.Repeat("a", 72), true},
		{"two_byte_runes_at_limit", strings.Repeat("é", 36), true},
		{"two_byte_runes_over_limit", strings.Repeat("é", 37), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.MaxBytes("password", tt.value, 72)
			assert.Equal(t, !tt.isValid, v.Err() != nil)
		})
	}
}

/*
TestValidator_Pattern checks the regular expression rule.
*/
func TestValidator_Pattern(t *testing.T) {
	phone := regexp.MustCompile(`^[0-9]{10,11}$`)

	tests := []struct {
		name    string
		value   string
		isValid bool
	}{
		{"ten_digits", "0123456789", true},
		{"eleven_digits", "01234567890", true},
		{"too_short", "012345678", false},
		{"letters", "01234abcde", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Pattern("phone", tt.value, phone, "Must be 10 or 11 digits")
			assert.Equal(t, !tt.isValid, v.Err() != nil)
		})
	}
}

func TestValidator_UUID(t *testing.T) {
	assert.NoError(t, (&validate.Validator{}).UUID("id", "0190A3E4-0000-7000-8000-000000000001").Err())
	assert.Error(t, (&validate.Validator{}).UUID("id", "not-a-uuid").Err())
}

func TestValidator_OneOf(t *testing.T) {
	assert.NoError(t, (&validate.Validator{}).OneOf("role", "admin", "member", "admin").Err())

	err := (&validate.Validator{}).OneOf("role", "owner", "member", "admin").Err()
	ae := apperr.As(err)
	require.NotNil(t, ae)
	require.Len(t, ae.Details, 1)
	assert.Equal(t, "role", ae.Details[0].Field)
	assert.Equal(t, "Must be one of: member, admin", ae.Details[0].Message)
}

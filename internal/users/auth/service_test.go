// Copyright (c) 2026 Divvy. All rights reserved.

package auth_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divvyapp/divvy/internal/platform/apperr"
	"github.com/divvyapp/divvy/internal/platform/dberr"
	"github.com/divvyapp/divvy/internal/platform/sec"
	"github.com/divvyapp/divvy/internal/users/auth"
)

// requireReason asserts err maps to an AppError with the given status and reason.
func requireReason(t *testing.T, err error, status int, reason string) {
	t.Helper()
	require.Error(t, err)
	appErr := apperr.Auth(err)
	assert.Equal(t, status, appErr.HTTPStatus)
	assert.Equal(t, reason, appErr.Reason)
}

// # Registration

func TestRegister_CanonicalizesIdentity(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, sec.RoleMember, user.Role)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, testPassword, user.PasswordHash)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$2"), "bcrypt hash expected")
}

func TestRegister_Validation(t *testing.T) {
	valid := auth.RegisterInput{
		Username:  "bob",
		Email:     "bob@example.com",
		Password:  testPassword,
		FirstName: "Bob",
		LastName:  "Builder",
	}

	tests := []struct {
		name      string
		mutate    func(*auth.RegisterInput)
		wantField string
	}{
		{"short_username", func(in *auth.RegisterInput) { in.Username = "bo" }, auth.FieldUsername},
		{"username_symbols", func(in *auth.RegisterInput) { in.Username = "bob!" }, auth.FieldUsername},
		{"bad_email", func(in *auth.RegisterInput) { in.Email = "not-an-email" }, auth.FieldEmail},
		{"short_password", func(in *auth.RegisterInput) { in.Password = "short" }, auth.FieldPassword},
		{"password_over_72_bytes", func(in *auth.RegisterInput) { in.Password = strings.Repeat("é", 37) }, auth.FieldPassword},
		{"missing_first_name", func(in *auth.RegisterInput) { in.FirstName = "  " }, auth.FieldFirstName},
		{"bad_phone", func(in *auth.RegisterInput) { in.Phone = "12345" }, auth.FieldPhone},
		{"bad_date", func(in *auth.RegisterInput) { in.DateOfBirth = "01/02/2000" }, auth.FieldDateOfBirth},
		{"future_date", func(in *auth.RegisterInput) { in.DateOfBirth = "2030-01-01" }, auth.FieldDateOfBirth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			input := valid
			tt.mutate(&input)

			_, err := fx.service.Register(context.Background(), input)

			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)

			fields := make([]string, 0, len(appErr.Details))
			for _, detail := range appErr.Details {
				fields = append(fields, detail.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestRegister_OptionalProfileFields(t *testing.T) {
	fx := newFixture(t)

	user, err := fx.service.Register(context.Background(), auth.RegisterInput{
		Username:    "carol",
		Email:       "carol@example.com",
		Password:    testPassword,
		FirstName:   "Carol",
		LastName:    "Danvers",
		Phone:       "0912345678",
		DateOfBirth: "1990-05-17",
	})
	require.NoError(t, err)

	assert.Equal(t, "0912345678", user.Phone)
	require.NotNil(t, user.DateOfBirth)
	assert.Equal(t, "1990-05-17", user.DateOfBirth.Format(auth.DateOfBirthLayout))
}

func TestRegister_Duplicates(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)

	tests := []struct {
		name     string
		username string
		email    string
	}{
		{"same_email_other_case", "alice2", "ALICE@example.com"},
		{"same_username_other_case", "ALICE", "other@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.service.Register(context.Background(), auth.RegisterInput{
				Username:  tt.username,
				Email:     tt.email,
				Password:  testPassword,
				FirstName: "A",
				LastName:  "B",
			})

			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
		})
	}
}

// # Credential Verification

func TestVerifyCredentials(t *testing.T) {
	fx := newFixture(t)
	registered := fx.register(t)

	tests := []struct {
		name     string
		login    string
		password string
		wantErr  error
	}{
		{"username", "alice", testPassword, nil},
		{"username_any_case", "ALICE", testPassword, nil},
		{"email", "alice@example.com", testPassword, nil},
		{"email_any_case", "Alice@EXAMPLE.com", testPassword, nil},
		{"wrong_password", "alice", testPassword + "!", sec.ErrInvalidCredentials},
		{"password_one_char_off", "alice", "correct horse batterY", sec.ErrInvalidCredentials},
		{"unknown_user", "mallory", testPassword, sec.ErrInvalidCredentials},
		{"unknown_email", "mallory@example.com", testPassword, sec.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := fx.service.VerifyCredentials(context.Background(), tt.login, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, registered.ID, user.ID)
		})
	}
}

/*
TestVerifyCredentials_Indistinguishable checks that an unknown user and a wrong
password produce the same client-facing response.
*/
func TestVerifyCredentials_Indistinguishable(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)

	_, unknown := fx.service.VerifyCredentials(context.Background(), "nobody", testPassword)
	_, wrong := fx.service.VerifyCredentials(context.Background(), "alice", "wrong password")

	assert.Equal(t, unknown, wrong)
	assert.Equal(t, apperr.Auth(unknown), apperr.Auth(wrong))
}

func TestVerifyCredentials_StoreUnavailable(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)
	fx.users.fail = errConnRefused

	_, err := fx.service.VerifyCredentials(context.Background(), "alice", testPassword)

	assert.ErrorIs(t, err, sec.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, sec.ErrInvalidCredentials)
	requireReason(t, err, http.StatusServiceUnavailable, apperr.ReasonStoreUnavailable)
	assert.True(t, apperr.Auth(err).Retryable)
}

// # Login

func TestLogin_IssuesValidTokenPair(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)

	session := fx.login(t, "alice")

	claims, err := fx.validator.VerifyToken(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, string(sec.RoleMember), claims.Role)
	assert.WithinDuration(t, fx.clock.Now().Add(fx.config.AccessTokenTTL), session.AccessTokenExpiresAt, 0)

	assert.NotEmpty(t, session.RefreshToken)
	assert.WithinDuration(t, fx.clock.Now().Add(fx.config.RefreshTokenTTL), session.RefreshTokenExpiresAt, 0)

	stored, err := fx.sessions.FindByTokenHash(context.Background(), sec.HashToken(session.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
	assert.Equal(t, "test-agent", stored.UserAgent)
	assert.NotEqual(t, session.RefreshToken, stored.TokenHash)
}

func TestLogin_DistinctTokensPerCall(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)

	first := fx.login(t, "alice")
	second := fx.login(t, "alice")

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	for _, token := range []string{first.AccessToken, second.AccessToken} {
		_, err := fx.validator.VerifyToken(context.Background(), token)
		assert.NoError(t, err)
	}
}

func TestLogin_InvalidCredentialsCreatesNoSession(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)

	_, err := fx.service.Login(context.Background(), auth.LoginInput{Login: "alice", Password: "nope nope"})
	requireReason(t, err, http.StatusUnauthorized, apperr.ReasonInvalidCredentials)

	sessions, err := fx.sessions.ListActive(context.Background(), user.ID, fx.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

/*
TestAccessToken_ExpiryTimeline follows a 60 minute token through its life.
*/
func TestAccessToken_ExpiryTimeline(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)

	token, _, err := fx.tokens.Issue(user.Subject(), time.Hour)
	require.NoError(t, err)

	fx.clock.Advance(30 * time.Minute)
	_, err = fx.validator.VerifyToken(context.Background(), token)
	require.NoError(t, err)

	fx.clock.Advance(31 * time.Minute)
	_, err = fx.validator.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, sec.ErrTokenExpired)
	requireReason(t, err, http.StatusUnauthorized, apperr.ReasonExpired)
}

// # Refresh

func TestRefreshSession_Rotates(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)
	first := fx.login(t, "alice")

	fx.clock.Advance(time.Minute)
	second, err := fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: first.RefreshToken})
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	old, err := fx.sessions.FindByTokenHash(context.Background(), sec.HashToken(first.RefreshToken))
	require.NoError(t, err)
	assert.True(t, old.IsRevoked)

	_, err = fx.validator.VerifyToken(context.Background(), second.AccessToken)
	assert.NoError(t, err)
}

/*
TestRefreshSession_ReuseRevokesFamily replays a rotated token and checks the
legitimate successor is revoked too.
*/
func TestRefreshSession_ReuseRevokesFamily(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)
	first := fx.login(t, "alice")

	second, err := fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: first.RefreshToken})
	require.NoError(t, err)

	_, err = fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: first.RefreshToken})
	requireReason(t, err, http.StatusUnauthorized, apperr.ReasonInvalidRefresh)

	_, err = fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: second.RefreshToken})
	requireReason(t, err, http.StatusUnauthorized, apperr.ReasonInvalidRefresh)
}

/*
TestRefreshSession_LoggedOutReplayKeepsOtherSessions checks that only rotated
tokens count as reuse.
*/
func TestRefreshSession_LoggedOutReplayKeepsOtherSessions(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)
	phone := fx.login(t, "alice")
	laptop := fx.login(t, "alice")

	claims, err := fx.tokens.VerifyToken(phone.AccessToken)
	require.NoError(t, err)
	require.NoError(t, fx.service.Logout(context.Background(), claims, phone.RefreshToken))

	_, err = fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: phone.RefreshToken})
	requireReason(t, err, http.StatusUnauthorized, apperr.ReasonInvalidRefresh)

	_, err = fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: laptop.RefreshToken})
	assert.NoError(t, err)
}

/*
TestRefreshSession_RotateFailureKeepsSession fails the rotation write and
checks the presented session is still active and not marked as rotated.
*/
func TestRefreshSession_RotateFailureKeepsSession(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)
	first := fx.login(t, "alice")

	fx.sessions.failWrites = errConnRefused
	_, err := fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: first.RefreshToken})
	assert.ErrorIs(t, err, sec.ErrStoreUnavailable)
	fx.sessions.failWrites = nil

	stored, err := fx.sessions.FindByTokenHash(context.Background(), sec.HashToken(first.RefreshToken))
	require.NoError(t, err)
	assert.False(t, stored.IsRevoked)
	assert.Empty(t, stored.ReplacedBy)

	active, err := fx.sessions.ListActive(context.Background(), stored.UserID, fx.clock.Now())
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: first.RefreshToken})
	assert.NoError(t, err, "retry must not be treated as reuse")
}

func TestRefreshSession_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, fx *fixture) string
	}{
		{"empty", func(*testing.T, *fixture) string { return "" }},
		{"unknown", func(*testing.T, *fixture) string { return "not-a-real-token" }},
		{"expired", func(t *testing.T, fx *fixture) string {
			session := fx.login(t, "alice")
			fx.clock.Advance(fx.config.RefreshTokenTTL)
			return session.RefreshToken
		}},
		{"logged_out", func(t *testing.T, fx *fixture) string {
			session := fx.login(t, "alice")
			claims, err := fx.tokens.VerifyToken(session.AccessToken)
			require.NoError(t, err)
			require.NoError(t, fx.service.Logout(context.Background(), claims, session.RefreshToken))
			return session.RefreshToken
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.register(t)
			token := tt.setup(t, fx)

			session, err := fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: token})
			assert.Nil(t, session)
			requireReason(t, err, http.StatusUnauthorized, apperr.ReasonInvalidRefresh)
		})
	}
}

// # Logout

func TestLogout_RevokesAccessAndRefresh(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)
	session := fx.login(t, "alice")

	claims, err := fx.validator.VerifyToken(context.Background(), session.AccessToken)
	require.NoError(t, err)

	require.NoError(t, fx.service.Logout(context.Background(), claims, session.RefreshToken))

	_, err = fx.validator.VerifyToken(context.Background(), session.AccessToken)
	assert.ErrorIs(t, err, sec.ErrTokenRevoked)
	requireReason(t, err, http.StatusUnauthorized, apperr.ReasonRevoked)

	stored, err := fx.sessions.FindByTokenHash(context.Background(), sec.HashToken(session.RefreshToken))
	require.NoError(t, err)
	assert.True(t, stored.IsRevoked)

	// Idempotent.
	assert.NoError(t, fx.service.Logout(context.Background(), claims, session.RefreshToken))
}

func TestLogout_IgnoresForeignRefreshToken(t *testing.T) {
	fx := newFixture(t)
	fx.register(t)
	_, err := fx.service.Register(context.Background(), auth.RegisterInput{
		Username: "bob", Email: "bob@example.com", Password: testPassword, FirstName: "Bob", LastName: "B",
	})
	require.NoError(t, err)

	alice := fx.login(t, "alice")
	bob := fx.login(t, "bob")

	aliceClaims, err := fx.tokens.VerifyToken(alice.AccessToken)
	require.NoError(t, err)
	require.NoError(t, fx.service.Logout(context.Background(), aliceClaims, bob.RefreshToken))

	stored, err := fx.sessions.FindByTokenHash(context.Background(), sec.HashToken(bob.RefreshToken))
	require.NoError(t, err)
	assert.False(t, stored.IsRevoked)
}

func TestLogout_RevocationStoreDown(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)
	hasher, err := sec.NewPasswordHasher(4)
	require.NoError(t, err)
	service := auth.NewService(fx.users, fx.sessions, fx.tokens, brokenRevocations{}, hasher, fx.config)

	token, _, err := fx.tokens.Issue(user.Subject(), time.Minute)
	require.NoError(t, err)
	claims, err := fx.tokens.VerifyToken(token)
	require.NoError(t, err)

	err = service.Logout(context.Background(), claims, "")
	assert.ErrorIs(t, err, sec.ErrStoreUnavailable)
}

// # Password Change

func TestChangePassword_KeepsCurrentSessionOnly(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)
	current := fx.login(t, "alice")
	other := fx.login(t, "alice@example.com")

	revoked, err := fx.service.ChangePassword(context.Background(), auth.ChangePasswordInput{
		UserID:          user.ID,
		CurrentPassword: testPassword,
		NewPassword:     "a brand new secret",
		RefreshToken:    current.RefreshToken,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, revoked)

	_, err = fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: other.RefreshToken})
	requireReason(t, err, http.StatusUnauthorized, apperr.ReasonInvalidRefresh)

	_, err = fx.service.RefreshSession(context.Background(), auth.RefreshInput{RefreshToken: current.RefreshToken})
	assert.NoError(t, err)

	_, err = fx.service.VerifyCredentials(context.Background(), "alice", testPassword)
	assert.ErrorIs(t, err, sec.ErrInvalidCredentials)
	_, err = fx.service.VerifyCredentials(context.Background(), "alice", "a brand new secret")
	assert.NoError(t, err)
}

func TestChangePassword_WithoutSessionRevokesAll(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)
	fx.login(t, "alice")
	fx.login(t, "alice")

	revoked, err := fx.service.ChangePassword(context.Background(), auth.ChangePasswordInput{
		UserID:          user.ID,
		CurrentPassword: testPassword,
		NewPassword:     "a brand new secret",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, revoked)
}

/*
TestChangePassword_StoreFailureChangesNothing fails the session write and
checks neither the password nor the other sessions moved, so a retry with the
old password succeeds.
*/
func TestChangePassword_StoreFailureChangesNothing(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)
	current := fx.login(t, "alice")
	other := fx.login(t, "alice")

	input := auth.ChangePasswordInput{
		UserID:          user.ID,
		CurrentPassword: testPassword,
		NewPassword:     "a brand new secret",
		RefreshToken:    current.RefreshToken,
	}

	fx.sessions.failWrites = errConnRefused
	_, err := fx.service.ChangePassword(context.Background(), input)
	assert.ErrorIs(t, err, sec.ErrStoreUnavailable)
	requireReason(t, err, http.StatusServiceUnavailable, apperr.ReasonStoreUnavailable)
	fx.sessions.failWrites = nil

	_, err = fx.service.VerifyCredentials(context.Background(), "alice", testPassword)
	assert.NoError(t, err, "password must be unchanged")
	_, err = fx.service.VerifyCredentials(context.Background(), "alice", "a brand new secret")
	assert.ErrorIs(t, err, sec.ErrInvalidCredentials)

	otherSession, err := fx.sessions.FindByTokenHash(context.Background(), sec.HashToken(other.RefreshToken))
	require.NoError(t, err)
	assert.False(t, otherSession.IsRevoked)

	revoked, err := fx.service.ChangePassword(context.Background(), input)
	require.NoError(t, err)
	assert.EqualValues(t, 1, revoked)
}

func TestChangePassword_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		current    string
		next       string
		wantStatus int
	}{
		{"wrong_current", "not my password", "a brand new secret", http.StatusUnauthorized},
		{"weak_new", testPassword, "short", http.StatusBadRequest},
		{"same_as_current", testPassword, testPassword, http.StatusBadRequest},
		{"missing_current", "", "a brand new secret", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			user := fx.register(t)

			_, err := fx.service.ChangePassword(context.Background(), auth.ChangePasswordInput{
				UserID:          user.ID,
				CurrentPassword: tt.current,
				NewPassword:     tt.next,
			})
			require.Error(t, err)
			appErr := apperr.Auth(err)
			assert.Equal(t, tt.wantStatus, appErr.HTTPStatus)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Current password is incorrect", appErr.Message)
			}

			_, err = fx.service.VerifyCredentials(context.Background(), "alice", testPassword)
			assert.NoError(t, err, "password must be unchanged")
		})
	}
}

// # Sessions

func TestListSessions_MarksCurrent(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)
	current := fx.login(t, "alice")
	fx.login(t, "alice")

	sessions, err := fx.service.ListSessions(context.Background(), user.ID, current.RefreshToken)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	currentCount := 0
	for _, session := range sessions {
		if session.Current {
			currentCount++
			assert.Equal(t, sec.HashToken(current.RefreshToken), session.TokenHash)
		}
	}
	assert.Equal(t, 1, currentCount)
}

func TestRevokeSession(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)
	fx.login(t, "alice")

	sessions, err := fx.service.ListSessions(context.Background(), user.ID, "")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	sessionID := sessions[0].ID

	t.Run("foreign_user", func(t *testing.T) {
		err := fx.service.RevokeSession(context.Background(), "someone-else", sessionID)
		assert.True(t, dberr.IsNotFound(err))
	})

	t.Run("invalid_id", func(t *testing.T) {
		err := fx.service.RevokeSession(context.Background(), user.ID, "not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, apperr.Auth(err).HTTPStatus)
	})

	t.Run("owner", func(t *testing.T) {
		require.NoError(t, fx.service.RevokeSession(context.Background(), user.ID, sessionID))
		assert.True(t, fx.sessions.get(sessionID).IsRevoked)
	})

	t.Run("already_revoked", func(t *testing.T) {
		err := fx.service.RevokeSession(context.Background(), user.ID, sessionID)
		assert.True(t, dberr.IsNotFound(err))
	})
}

func TestCurrentUser(t *testing.T) {
	fx := newFixture(t)
	user := fx.register(t)

	found, err := fx.service.CurrentUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)

	_, err = fx.service.CurrentUser(context.Background(), "missing")
	assert.True(t, dberr.IsNotFound(err))
	assert.False(t, errors.Is(err, sec.ErrStoreUnavailable))
}

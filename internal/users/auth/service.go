// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package auth implements the identity and access management system.

It handles everything from user registration and password verification to
session lifecycle management via JWT access tokens and rotating refresh tokens.

Architecture:

  - Service: Orchestrates business logic (Register, Login, Refresh, Logout).
  - TokenValidator: Signature, expiry and revocation checks used by the route guard.
  - Repository: Abstracted interfaces for Postgres (Users and Sessions).
  - Janitor: Background cleanup of expired sessions and revocations.

Every failure on the authentication path is a sentinel from package sec or an
[apperr.AppError], so the transport layer can map it without inspecting strings.
*/
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/divvyapp/divvy/internal/platform/apperr"
	"github.com/divvyapp/divvy/internal/platform/ctxutil"
	"github.com/divvyapp/divvy/internal/platform/dberr"
	"github.com/divvyapp/divvy/internal/platform/revocation"
	"github.com/divvyapp/divvy/internal/platform/sec"
	"github.com/divvyapp/divvy/internal/platform/validate"
	"github.com/divvyapp/divvy/pkg/ident"
	"github.com/divvyapp/divvy/pkg/uuid"
)

// # Contracts & Types

// TokenIssuer defines the contract for signing access tokens.
// [*sec.TokenService] satisfies it.
type TokenIssuer interface {
	// Issue signs a token for subject that expires after timeToLive.
	Issue(subject sec.Subject, timeToLive time.Duration) (string, *sec.AuthClaims, error)
}

// Config holds the lifetimes and bounds the service enforces.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// StoreTimeout bounds each credential, session or revocation lookup.
	StoreTimeout time.Duration
}

// ServiceOption customizes a [Service].
type ServiceOption func(*Service)

// WithClock replaces the wall clock used for session expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(service *Service) {
		service.now = now
	}
}

// Service implements user authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// or login logic must be reviewed by the security team.
type Service struct {
	userRepository    UserRepository
	sessionRepository SessionRepository
	tokenIssuer       TokenIssuer
	revocations       revocation.Store
	hasher            *sec.PasswordHasher
	config            Config
	now               func() time.Time
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	userRepo UserRepository,
	sessionRepo SessionRepository,
	issuer TokenIssuer,
	revocations revocation.Store,
	hasher *sec.PasswordHasher,
	config Config,
	opts ...ServiceOption,
) *Service {
	service := &Service{
		userRepository:    userRepo,
		sessionRepository: sessionRepo,
		tokenIssuer:       issuer,
		revocations:       revocations,
		hasher:            hasher,
		config:            config,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// storeContext derives the bounded context used for a single store call.
func (service *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if service.config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, service.config.StoreTimeout)
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Phone       string
	DateOfBirth string
}

/*
Register validates, hashes, and persists a brand new user account.

Description: Username and email are canonicalized before validation so that
visually identical identities collide on the unique indexes.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: Validation, Conflict (if identity exists) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {
	username := ident.Username(input.Username)
	email := ident.Email(input.Email)
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	phone := strings.TrimSpace(input.Phone)

	validator := &validate.Validator{}
	validator.Required(FieldUsername, username).
		MinLen(FieldUsername, username, UsernameMinLength).
		MaxLen(FieldUsername, username, UsernameMaxLength).
		Required(FieldEmail, email).
		Required(FieldFirstName, firstName).
		MaxLen(FieldFirstName, firstName, NameMaxLength).
		Required(FieldLastName, lastName).
		MaxLen(FieldLastName, lastName, NameMaxLength)

	if username != "" {
		validator.Pattern(FieldUsername, username, usernamePattern, "Only letters, digits, '_' and '.' are allowed")
	}
	if email != "" {
		validator.Email(FieldEmail, email)
	}
	if phone != "" {
		validator.Pattern(FieldPhone, phone, PhonePattern, "Must be 10 or 11 digits")
	}
	validatePassword(validator, FieldPassword, input.Password)

	dateOfBirth := ParseDateOfBirth(validator, input.DateOfBirth, service.now())
	if err := validator.Err(); err != nil {
		return nil, err
	}

	// Verify email uniqueness. Return a client-safe Conflict err.
	if err := service.ensureAvailable(context, service.userRepository.FindByEmail, email, "Email is already registered"); err != nil {
		return nil, err
	}

	// Verify username uniqueness. The unique index still guards against races.
	if err := service.ensureAvailable(context, service.userRepository.FindByUsername, username, "Username is already taken"); err != nil {
		return nil, err
	}

	hashedPassword, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// Time-sortable ID to prevent PG index fragmentation.
	now := service.now().UTC()
	user := &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        phone,
		DateOfBirth:  dateOfBirth,
		Role:         sec.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	if err := service.userRepository.Create(storeCtx, user); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_registered", slog.String("user_id", user.ID))
	return user, nil
}

// ensureAvailable fails with a Conflict when lookup finds an existing account.
func (service *Service) ensureAvailable(
	context context.Context,
	lookup func(context.Context, string) (*User, error),
	value, message string,
) error {
	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	_, err := lookup(storeCtx, value)
	switch {
	case err == nil:
		return apperr.Conflict(message)
	case dberr.IsNotFound(err):
		return nil
	default:
		return fmt.Errorf("auth_service_uniqueness_check_failed: %w", err)
	}
}

// validatePassword applies the password policy. The upper bound is in bytes
// because bcrypt ignores everything past [sec.MaxPasswordBytes].
func validatePassword(validator *validate.Validator, field, password string) {
	validator.Required(field, password).
		MinLen(field, password, PasswordMinLength).
		MaxBytes(field, password, sec.MaxPasswordBytes)
}

// ParseDateOfBirth parses an optional date, recording failures on validator.
func ParseDateOfBirth(validator *validate.Validator, raw string, now time.Time) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parsed, err := time.Parse(DateOfBirthLayout, raw)
	if err != nil {
		validator.Custom(FieldDateOfBirth, true, "Must be a date in YYYY-MM-DD format")
		return nil
	}
	validator.Custom(FieldDateOfBirth, !parsed.Before(now), "Must be in the past")
	return &parsed
}

// # Credential Verification

/*
VerifyCredentials checks a login (username or email) and password.

Description: Unknown users and wrong passwords produce the same error after
the same amount of bcrypt work, so callers cannot enumerate accounts.

Parameters:
  - context: context.Context
  - login: string
  - password: string

Returns:
  - *User: The verified identity
  - error: sec.ErrInvalidCredentials, or sec.ErrStoreUnavailable if the lookup failed
*/
func (service *Service) VerifyCredentials(context context.Context, login, password string) (*User, error) {
	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	var user *User
	var err error
	if ident.IsEmail(login) {
		user, err = service.userRepository.FindByEmail(storeCtx, ident.Email(login))
	} else {
		user, err = service.userRepository.FindByUsername(storeCtx, ident.Username(login))
	}

	switch {
	case dberr.IsNotFound(err):
		service.hasher.CompareDummy(password)
		return nil, sec.ErrInvalidCredentials
	case err != nil:
		return nil, sec.Unavailable(fmt.Errorf("auth_service_credential_lookup_failed: %w", err))
	}

	if !service.hasher.Compare(password, user.PasswordHash) {
		return nil, sec.ErrInvalidCredentials
	}

	return user, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Login     string // Can be Username or Email
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  *User
}

/*
Login validates user credentials and issues security tokens.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: sec.ErrInvalidCredentials, store or signing failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	user, err := service.VerifyCredentials(context, input.Login, input.Password)
	if err != nil {
		return nil, err
	}

	loginSession, session, err := service.newSession(user, input.UserAgent, input.IPAddress)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	if err := service.sessionRepository.Create(storeCtx, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_logged_in",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)
	return loginSession, nil
}

// newSession signs an access token and prepares an unsaved refresh session.
func (service *Service) newSession(user *User, userAgent, ipAddress string) (*LoginSession, *Session, error) {
	accessToken, claims, err := service.tokenIssuer.Issue(user.Subject(), service.config.AccessTokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	refreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	now := service.now().UTC()
	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: sec.HashToken(refreshToken),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: now.Add(service.config.RefreshTokenTTL),
		CreatedAt: now,
	}

	return &LoginSession{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  claims.ExpiresAtTime(),
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: session.ExpiresAt,
		User:                  user,
	}, session, nil
}

// # Session Management

// RefreshInput carries a refresh token and the client metadata of the new session.
type RefreshInput struct {
	RefreshToken string
	UserAgent    string
	IPAddress    string
}

// errInvalidRefresh is the single client-facing failure of a refresh attempt.
func errInvalidRefresh(cause error) *apperr.AppError {
	return apperr.Unauthenticated(apperr.ReasonInvalidRefresh, "Invalid or expired refresh token", cause)
}

/*
RefreshSession implements the Refresh Token Rotation mechanism.

Description: Verifies the existing refresh token, revokes it to prevent reuse,
and issues a fresh pair of rotated tokens. Presenting a token that was already
rotated away revokes every session of its owner. Tokens revoked by logout or
a password change are simply rejected.

Parameters:
  - context: context.Context
  - input: RefreshInput

Returns:
  - *LoginSession: New session credentials
  - error: Unauthorized (invalid_refresh_token) or storage failures
*/
func (service *Service) RefreshSession(context context.Context, input RefreshInput) (*LoginSession, error) {
	if input.RefreshToken == "" {
		return nil, errInvalidRefresh(nil)
	}

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	session, err := service.sessionRepository.FindByTokenHash(storeCtx, sec.HashToken(input.RefreshToken))
	switch {
	case dberr.IsNotFound(err):
		return nil, errInvalidRefresh(err)
	case err != nil:
		return nil, fmt.Errorf("auth_service_refresh_lookup_failed: %w", err)
	}

	// Reuse detection: a rotated token is only ever presented again by a thief
	// or by the victim after the thief already used it.
	if session.Rotated() {
		revoked, err := service.sessionRepository.RevokeAll(storeCtx, session.UserID)
		if err != nil {
			return nil, fmt.Errorf("auth_service_refresh_reuse_revoke_failed: %w", err)
		}
		ctxutil.GetLogger(context).WarnContext(context, "refresh_token_reused",
			slog.String("user_id", session.UserID),
			slog.String("session_id", session.ID),
			slog.Int64("sessions_revoked", revoked),
		)
		return nil, errInvalidRefresh(nil)
	}

	if !session.ActiveAt(service.now()) {
		return nil, errInvalidRefresh(nil)
	}

	user, err := service.userRepository.FindByID(storeCtx, session.UserID)
	switch {
	case dberr.IsNotFound(err):
		return nil, errInvalidRefresh(err)
	case err != nil:
		return nil, fmt.Errorf("auth_service_refresh_user_lookup_failed: %w", err)
	}

	loginSession, next, err := service.newSession(user, input.UserAgent, input.IPAddress)
	if err != nil {
		return nil, err
	}

	// A concurrent refresh with the same token loses the race here.
	err = service.sessionRepository.Rotate(storeCtx, session.ID, next)
	switch {
	case dberr.IsNotFound(err):
		return nil, errInvalidRefresh(err)
	case err != nil:
		return nil, fmt.Errorf("auth_service_refresh_rotate_failed: %w", err)
	}

	return loginSession, nil
}

/*
Logout revokes the caller's access token and, if given, its refresh session.

Description: The access token's ID stays on the revocation list until the
token would have expired anyway. Refresh tokens that are unknown, already
revoked or owned by someone else are ignored, so logout is idempotent.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims (the authenticated caller)
  - refreshToken: string (optional)

Returns:
  - error: sec.ErrStoreUnavailable or session storage failures
*/
func (service *Service) Logout(context context.Context, claims *sec.AuthClaims, refreshToken string) error {
	revokeCtx, cancelRevoke := service.storeContext(context)
	defer cancelRevoke()

	if err := service.revocations.Revoke(revokeCtx, claims.ID, claims.ExpiresAtTime()); err != nil {
		return sec.Unavailable(fmt.Errorf("auth_service_logout_revoke_token_failed: %w", err))
	}

	if refreshToken == "" {
		return nil
	}

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	session, err := service.sessionRepository.FindByTokenHash(storeCtx, sec.HashToken(refreshToken))
	switch {
	case dberr.IsNotFound(err):
		return nil
	case err != nil:
		return fmt.Errorf("auth_service_logout_lookup_failed: %w", err)
	}

	if session.UserID != claims.UserID || session.IsRevoked {
		return nil
	}

	if err := service.sessionRepository.Revoke(storeCtx, claims.UserID, session.ID); err != nil && !dberr.IsNotFound(err) {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	return nil
}

// ChangePasswordInput carries a password change for the authenticated user.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string

	// RefreshToken identifies the session to keep. Without it, every session is revoked.
	RefreshToken string
}

/*
ChangePassword allows an authenticated user to update their credentials.

Description: Verifies the current password, then stores the new hash and
revokes all OTHER refresh sessions in one write, forcing re-login on other
devices. A failed write leaves both the password and the sessions untouched.

Parameters:
  - context: context.Context
  - input: ChangePasswordInput

Returns:
  - int64: Number of sessions revoked
  - error: Validation, Unauthorized or storage failures
*/
func (service *Service) ChangePassword(context context.Context, input ChangePasswordInput) (int64, error) {
	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword)
	validatePassword(validator, FieldNewPassword, input.NewPassword)
	validator.Custom(FieldNewPassword,
		input.NewPassword != "" && input.NewPassword == input.CurrentPassword,
		"Must differ from the current password")

	if err := validator.Err(); err != nil {
		return 0, err
	}

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	user, err := service.userRepository.FindByID(storeCtx, input.UserID)
	if err != nil {
		return 0, fmt.Errorf("auth_service_change_password_lookup_failed: %w", err)
	}

	if !service.hasher.Compare(input.CurrentPassword, user.PasswordHash) {
		return 0, apperr.Unauthenticated(apperr.ReasonInvalidCredentials, "Current password is incorrect", sec.ErrInvalidCredentials)
	}

	hashedPassword, err := service.hasher.Hash(input.NewPassword)
	if err != nil {
		return 0, fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	var keepSessionID string
	if current := service.resolveSession(storeCtx, user.ID, input.RefreshToken); current != nil {
		keepSessionID = current.ID
	}

	revoked, err := service.userRepository.UpdatePassword(storeCtx, user.ID, hashedPassword, keepSessionID)
	if err != nil {
		return 0, fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_changed",
		slog.String("user_id", user.ID),
		slog.Int64("sessions_revoked", revoked),
	)
	return revoked, nil
}

// resolveSession returns the caller's active session for refreshToken, or nil.
func (service *Service) resolveSession(context context.Context, userID, refreshToken string) *Session {
	if refreshToken == "" {
		return nil
	}

	session, err := service.sessionRepository.FindByTokenHash(context, sec.HashToken(refreshToken))
	if err != nil || session.UserID != userID || !session.ActiveAt(service.now()) {
		return nil
	}
	return session
}

// # Identity & Sessions

/*
CurrentUser returns the account of the authenticated caller.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *User: Hydrated account entity
  - error: NotFound or storage failures
*/
func (service *Service) CurrentUser(context context.Context, userID string) (*User, error) {
	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	user, err := service.userRepository.FindByID(storeCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_current_user_failed: %w", err)
	}
	return user, nil
}

/*
ListSessions returns the caller's active sessions, flagging the one that
matches refreshToken as current.

Parameters:
  - context: context.Context
  - userID: string
  - refreshToken: string (optional)

Returns:
  - []*Session: Newest first
  - error: Storage failures
*/
func (service *Service) ListSessions(context context.Context, userID, refreshToken string) ([]*Session, error) {
	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	sessions, err := service.sessionRepository.ListActive(storeCtx, userID, service.now())
	if err != nil {
		return nil, fmt.Errorf("auth_service_list_sessions_failed: %w", err)
	}

	if refreshToken != "" {
		tokenHash := sec.HashToken(refreshToken)
		for _, session := range sessions {
			session.Current = session.TokenHash == tokenHash
		}
	}

	return sessions, nil
}

/*
RevokeSession revokes one of the caller's sessions.

Parameters:
  - context: context.Context
  - userID: string
  - sessionID: string

Returns:
  - error: Validation, NotFound (unknown, foreign or already revoked) or storage failures
*/
func (service *Service) RevokeSession(context context.Context, userID, sessionID string) error {
	validator := &validate.Validator{}
	validator.UUID(FieldSessionID, sessionID)
	if err := validator.Err(); err != nil {
		return err
	}

	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	if err := service.sessionRepository.Revoke(storeCtx, userID, sessionID); err != nil {
		return fmt.Errorf("auth_service_revoke_session_failed: %w", err)
	}
	return nil
}

/*
PurgeExpiredSessions deletes sessions past their expiry.

Parameters:
  - context: context.Context

Returns:
  - int64: Rows removed
  - error: Storage failures
*/
func (service *Service) PurgeExpiredSessions(context context.Context) (int64, error) {
	storeCtx, cancel := service.storeContext(context)
	defer cancel()

	removed, err := service.sessionRepository.DeleteExpired(storeCtx, service.now())
	if err != nil {
		return 0, fmt.Errorf("auth_service_purge_sessions_failed: %w", err)
	}
	return removed, nil
}

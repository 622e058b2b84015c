// Copyright (c) 2026 Divvy. All rights reserved.

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small interfaces declared by the consumers.
package sec

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/divvyapp/divvy/pkg/uuid"
)

// # Claims Schema

const (
	// ClaimsVersion is the schema version written to the "ver" claim.
	ClaimsVersion = 1

	// TokenTypeAccess is the only token type this service signs.
	TokenTypeAccess = "access"

	// MinSecretLength is the minimum HMAC secret size in bytes.
	MinSecretLength = 32
)

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// The claim set is fixed and versioned: validation rejects anything that a
// correct issuer would never produce, so adding a claim means bumping
// [ClaimsVersion].
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	UserID   string `json:"uid"`
	Username string `json:"unm"`
	Role     string `json:"rol"`
	Type     string `json:"typ"`
	Version  int    `json:"ver"`
}

// Subject is the verified identity a token is issued for.
type Subject struct {
	UserID   string
	Username string
	Role     UserRole
}

// checkIntegrity rejects claim sets that passed signature verification but
// do not match the schema.
func (claims *AuthClaims) checkIntegrity() error {
	switch {
	case claims.Version != ClaimsVersion:
		return fmt.Errorf("%w: unsupported claims version %d", ErrInvalidSignature, claims.Version)
	case claims.Type != TokenTypeAccess:
		return fmt.Errorf("%w: unexpected token type %q", ErrInvalidSignature, claims.Type)
	case claims.Subject == "" || claims.ID == "":
		return fmt.Errorf("%w: missing subject or token id", ErrInvalidSignature)
	case claims.Subject != claims.UserID:
		return fmt.Errorf("%w: subject mismatch", ErrInvalidSignature)
	}
	return nil
}

// ExpiresAtTime returns the expiry instant, or the zero time if absent.
func (claims *AuthClaims) ExpiresAtTime() time.Time {
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// # Token Service

// TokenService handles generation and verification of JWT access tokens.
//
// It signs with HS256 when built from a shared secret and RS256 when built
// from a PEM key pair. Keys are read-only after construction.
type TokenService struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	now       func() time.Time
}

// Option customizes a [TokenService].
type Option func(*TokenService)

// WithClock replaces the wall clock used for "iat", "exp" and validation.
func WithClock(now func() time.Time) Option {
	return func(service *TokenService) {
		service.now = now
	}
}

// NewHMACTokenService creates a TokenService signing with HS256.
func NewHMACTokenService(secret []byte, issuer string, opts ...Option) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: hmac secret must be at least %d bytes", MinSecretLength)
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return newTokenService(jwt.SigningMethodHS256, key, key, issuer, opts), nil
}

// NewRSATokenService creates a TokenService signing with RS256.
// It reads RSA keys from the provided filesystem paths.
func NewRSATokenService(privateKeyPath, publicKeyPath, issuer string, opts ...Option) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse public key: %w", err)
	}

	return newTokenService(jwt.SigningMethodRS256, privateKey, publicKey, issuer, opts), nil
}

func newTokenService(method jwt.SigningMethod, signKey, verifyKey any, issuer string, opts []Option) *TokenService {
	service := &TokenService{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Issue signs a new access token for subject that expires after timeToLive.
//
// Every call gets a fresh "jti", so two tokens for the same subject never
// collide even when issued within the same second.
func (service *TokenService) Issue(subject Subject, timeToLive time.Duration) (string, *AuthClaims, error) {
	if timeToLive <= 0 {
		return "", nil, fmt.Errorf("auth: token ttl must be positive, got %s", timeToLive)
	}

	issuedAt := service.now()
	claims := &AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New(),
			Subject:   subject.UserID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(timeToLive)),
		},
		UserID:   subject.UserID,
		Username: subject.Username,
		Role:     string(subject.Role),
		Type:     TokenTypeAccess,
		Version:  ClaimsVersion,
	}

	token := jwt.NewWithClaims(service.method, claims)
	signedToken, err := token.SignedString(service.signKey)
	if err != nil {
		return "", nil, fmt.Errorf("auth: failed to sign token: %w", err)
	}

	return signedToken, claims, nil
}

// VerifyToken checks the signature, expiry and claim schema of a JWT string.
//
// Failures wrap [ErrInvalidSignature] (including [ErrMalformedToken]) or
// [ErrTokenExpired]. The signature is checked before any claim, so a
// tampered expired token reports an invalid signature.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	claims := &AuthClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, service.keyFunc,
		jwt.WithValidMethods([]string{service.method.Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(service.now),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	if err := claims.checkIntegrity(); err != nil {
		return nil, err
	}

	return claims, nil
}

func (service *TokenService) keyFunc(token *jwt.Token) (any, error) {
	if token.Method.Alg() != service.method.Alg() {
		return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
	}
	return service.verifyKey, nil
}

// classifyParseError maps jwt parser errors onto the failure kinds.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}

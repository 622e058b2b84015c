// Copyright (c) 2026 Divvy. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/divvyapp/divvy/internal/platform/revocation"
	"github.com/divvyapp/divvy/internal/platform/sec"
)

// SignatureVerifier checks a token's signature, expiry and claim schema.
// [*sec.TokenService] satisfies it.
type SignatureVerifier interface {
	VerifyToken(token string) (*sec.AuthClaims, error)
}

// TokenValidator is the full access-token check used by the route guard:
// cryptographic verification followed by a revocation lookup.
//
// It is safe for concurrent use and has no side effects.
type TokenValidator struct {
	verifier    SignatureVerifier
	revocations revocation.Store
	timeout     time.Duration
}

// NewTokenValidator constructs a [TokenValidator]. A non-positive timeout
// leaves the revocation lookup bounded only by the caller's context.
func NewTokenValidator(verifier SignatureVerifier, revocations revocation.Store, timeout time.Duration) *TokenValidator {
	return &TokenValidator{
		verifier:    verifier,
		revocations: revocations,
		timeout:     timeout,
	}
}

/*
VerifyToken validates a raw bearer token.

Description: The signature is checked first so that forged tokens never
reach the revocation store.

Parameters:
  - ctx: context.Context
  - token: string

Returns:
  - *sec.AuthClaims: Decoded claims of a valid token
  - error: One of the sec sentinel errors
*/
func (validator *TokenValidator) VerifyToken(ctx context.Context, token string) (*sec.AuthClaims, error) {
	claims, err := validator.verifier.VerifyToken(token)
	if err != nil {
		return nil, err
	}

	lookupCtx := ctx
	if validator.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, validator.timeout)
		defer cancel()
	}

	revoked, err := validator.revocations.IsRevoked(lookupCtx, claims.ID)
	if err != nil {
		return nil, sec.Unavailable(fmt.Errorf("auth_validator_revocation_lookup_failed: %w", err))
	}
	if revoked {
		return nil, sec.ErrTokenRevoked
	}

	return claims, nil
}

// Copyright (c) 2026 Divvy. All rights reserved.

package sec

import (
	"errors"
	"fmt"
)

// # Authentication Failure Kinds

// Every failure on the authentication path is one of these values (possibly
// wrapped). Callers classify with [errors.Is]; only [ErrStoreUnavailable] is
// worth retrying.
var (
	// ErrInvalidCredentials covers both "unknown user" and "wrong password".
	ErrInvalidCredentials = errors.New("sec: invalid credentials")

	// ErrInvalidSignature is returned when a token's signature, algorithm or
	// claim set does not check out.
	ErrInvalidSignature = errors.New("sec: invalid token signature")

	// ErrMalformedToken is a structurally broken token. It is a kind of
	// [ErrInvalidSignature] and is reported to clients as such.
	ErrMalformedToken = fmt.Errorf("%w: malformed token", ErrInvalidSignature)

	// ErrTokenExpired is returned when the current time is at or past "exp".
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenRevoked is returned when the token ID is on the revocation list.
	ErrTokenRevoked = errors.New("sec: token revoked")

	// ErrUnauthenticated means no token was supplied on a protected request.
	ErrUnauthenticated = errors.New("sec: authentication required")

	// ErrStoreUnavailable means a credential or revocation lookup failed transiently.
	ErrStoreUnavailable = errors.New("sec: credential store unavailable")
)

// Unavailable wraps a backing-store failure as [ErrStoreUnavailable] while
// keeping the original error in the chain.
func Unavailable(cause error) error {
	if cause == nil {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
}

// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package revocation tracks access tokens that were invalidated before their expiry.

Entries are keyed by the token's "jti" claim and only need to live until the
token would have expired on its own; after that the signature check rejects
it anyway.

Backends:

  - MemoryStore: In-process map, for single-instance deployments and tests.
  - RedisStore: Shared list with native TTLs, for horizontally scaled deployments.
*/
package revocation

import (
	"context"
	"time"
)

// Store is the revocation list consulted by the token validator.
//
// Implementations return an error only when the backing store cannot answer;
// "not revoked" is (false, nil).
type Store interface {
	// Revoke adds tokenID to the list until expiresAt.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error

	// IsRevoked reports whether tokenID is currently on the list.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

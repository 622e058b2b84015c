// Copyright (c) 2026 Divvy. All rights reserved.

package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/divvyapp/divvy/internal/platform/constants"
)

// RedisStore is a [Store] shared by every API instance.
//
// Each revoked token is a key "auth:revoked:<jti>" whose TTL equals the
// token's remaining lifetime, so Redis expires entries on its own.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore wraps client. A nil clock selects [time.Now].
func NewRedisStore(client redis.UniversalClient, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

// Revoke implements [Store]. Revoking an already expired token is a no-op.
func (store *RedisStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	remaining := expiresAt.Sub(store.now())
	if remaining <= 0 {
		return nil
	}

	// Round up to whole milliseconds so the key never expires before the token.
	remaining = remaining.Truncate(time.Millisecond) + time.Millisecond

	if err := store.client.Set(ctx, key(tokenID), "1", remaining).Err(); err != nil {
		return fmt.Errorf("revocation: set failed: %w", err)
	}
	return nil
}

// IsRevoked implements [Store].
func (store *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	count, err := store.client.Exists(ctx, key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: exists failed: %w", err)
	}
	return count > 0, nil
}

func key(tokenID string) string {
	return constants.RedisPrefixRevokedToken + tokenID
}

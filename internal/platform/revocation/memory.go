// Copyright (c) 2026 Divvy. All rights reserved.

package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process [Store]. Expired entries are ignored on read
// and removed by [MemoryStore.Sweep].
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock selects [time.Now].
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]time.Time), now: now}
}

// Revoke implements [Store]. Revoking an already expired token is a no-op.
func (store *MemoryStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !expiresAt.After(store.now()) {
		return nil
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	// Keep the later expiry if the same token is revoked twice.
	if current, ok := store.entries[tokenID]; !ok || expiresAt.After(current) {
		store.entries[tokenID] = expiresAt
	}
	return nil
}

// IsRevoked implements [Store].
func (store *MemoryStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	store.mu.RLock()
	expiresAt, ok := store.entries[tokenID]
	store.mu.RUnlock()

	return ok && expiresAt.After(store.now()), nil
}

// Sweep drops entries whose token has expired and returns how many were removed.
func (store *MemoryStore) Sweep() int {
	now := store.now()

	store.mu.Lock()
	defer store.mu.Unlock()

	removed := 0
	for tokenID, expiresAt := range store.entries {
		if !expiresAt.After(now) {
			delete(store.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries, including expired ones not yet swept.
func (store *MemoryStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.entries)
}

// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryTokenStore is an in-process [TokenStore] used when Redis is not
// configured and in tests.
type MemoryTokenStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryTokenStore creates an empty token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{now: time.Now}
}

// Token returns the token unless its lifetime has elapsed.
func (store *MemoryTokenStore) Token(_ context.Context) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.token != "" && !store.expiresAt.IsZero() && store.now().After(store.expiresAt) {
		store.token = ""
	}
	return store.token, nil
}

// SetToken stores the token. A non-positive ttl never expires.
func (store *MemoryTokenStore) SetToken(_ context.Context, token string, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.token = token
	store.expiresAt = time.Time{}
	if ttl > 0 {
		store.expiresAt = store.now().Add(ttl)
	}
	return nil
}

// ClearToken drops the token.
func (store *MemoryTokenStore) ClearToken(_ context.Context) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.token = ""
	return nil
}

// MemoryIdentityCache is an in-process [IdentityCache].
type MemoryIdentityCache struct {
	mu   sync.Mutex
	user *User
}

// NewMemoryIdentityCache creates an empty identity cache.
func NewMemoryIdentityCache() *MemoryIdentityCache {
	return &MemoryIdentityCache{}
}

// LoadIdentity returns a copy of the cached user.
func (cache *MemoryIdentityCache) LoadIdentity(_ context.Context) (*User, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.user == nil {
		return nil, nil
	}
	user := *cache.user
	return &user, nil
}

// SaveIdentity caches a copy of user. The ttl is ignored.
func (cache *MemoryIdentityCache) SaveIdentity(_ context.Context, user *User, _ time.Duration) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	copied := *user
	cache.user = &copied
	return nil
}

// ClearIdentity drops the cached user.
func (cache *MemoryIdentityCache) ClearIdentity(_ context.Context) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.user = nil
	return nil
}

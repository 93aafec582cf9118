// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/sec"
)

// # Token Store

// RedisTokenStore implements [TokenStore] using Redis. Expiry is enforced by
// the key TTL, mirroring a browser cookie's max-age.
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore creates a token store scoped to one workspace.
func NewRedisTokenStore(client *redis.Client, workspaceID string) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		key:    sec.StorageKey(constants.RedisPrefixToken, workspaceID),
	}
}

/*
Token retrieves the bearer token.

Returns:
  - string: The token, or "" when absent or expired
  - error: Connectivity errors
*/
func (store *RedisTokenStore) Token(context context.Context) (string, error) {
	token, err := store.client.Get(context, store.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis_token_get_failed: %w", err)
	}
	return token, nil
}

// SetToken stores the token with its lifetime.
func (store *RedisTokenStore) SetToken(context context.Context, token string, ttl time.Duration) error {
	if err := store.client.Set(context, store.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis_token_set_failed: %w", err)
	}
	return nil
}

// ClearToken deletes the token key.
func (store *RedisTokenStore) ClearToken(context context.Context) error {
	if err := store.client.Del(context, store.key).Err(); err != nil {
		return fmt.Errorf("redis_token_delete_failed: %w", err)
	}
	return nil
}

// # Identity Cache

// RedisIdentityCache implements [IdentityCache] by storing the user as JSON.
type RedisIdentityCache struct {
	client *redis.Client
	key    string
}

// NewRedisIdentityCache creates an identity cache scoped to one workspace.
func NewRedisIdentityCache(client *redis.Client, workspaceID string) *RedisIdentityCache {
	return &RedisIdentityCache{
		client: client,
		key:    sec.StorageKey(constants.RedisPrefixIdentity, workspaceID),
	}
}

/*
LoadIdentity reads and decodes the cached user.

Description: A corrupt entry is deleted and reported as a cache miss.

Returns:
  - *User: The cached user or nil
  - error: Connectivity errors
*/
func (cache *RedisIdentityCache) LoadIdentity(context context.Context) (*User, error) {
	raw, err := cache.client.Get(context, cache.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis_identity_get_failed: %w", err)
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		_ = cache.client.Del(context, cache.key).Err()
		return nil, nil
	}
	return &user, nil
}

// SaveIdentity encodes and stores the user.
func (cache *RedisIdentityCache) SaveIdentity(context context.Context, user *User, ttl time.Duration) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("identity_encode_failed: %w", err)
	}

	if err := cache.client.Set(context, cache.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis_identity_set_failed: %w", err)
	}
	return nil
}

// ClearIdentity deletes the cached user.
func (cache *RedisIdentityCache) ClearIdentity(context context.Context) error {
	if err := cache.client.Del(context, cache.key).Err(); err != nil {
		return fmt.Errorf("redis_identity_delete_failed: %w", err)
	}
	return nil
}

// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package reader

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

// RedisStateStore implements [StateStore] with a single JSON value whose TTL
// is refreshed on every save.
type RedisStateStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStateStore creates a state store scoped to one workspace.
func NewRedisStateStore(client *redis.Client, workspaceID string, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		key:    sec.StorageKey(constants.RedisPrefixReader, workspaceID),
		ttl:    ttl,
	}
}

// LoadSnapshot reads and decodes the snapshot. A corrupt value is dropped.
func (store *RedisStateStore) LoadSnapshot(context context.Context) (*Snapshot, error) {
	raw, err := store.client.Get(context, store.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis_reader_state_get_failed: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		_ = store.client.Del(context, store.key).Err()
		return nil, nil
	}
	return &snapshot, nil
}

// SaveSnapshot encodes and stores the snapshot.
func (store *RedisStateStore) SaveSnapshot(context context.Context, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("reader_state_encode_failed: %w", err)
	}

	if err := store.client.Set(context, store.key, raw, store.ttl).Err(); err != nil {
		return fmt.Errorf("redis_reader_state_set_failed: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the snapshot key.
func (store *RedisStateStore) DeleteSnapshot(context context.Context) error {
	if err := store.client.Del(context, store.key).Err(); err != nil {
		return fmt.Errorf("redis_reader_state_delete_failed: %w", err)
	}
	return nil
}

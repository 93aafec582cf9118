// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/database/schema"
	"github.com/taibuivan/dlms/internal/platform/dberr"
	"github.com/taibuivan/dlms/internal/platform/sec"
)

// PostgresStateStore implements [StateStore] on the reader_state table, for
// deployments that want reader state to survive a Redis flush.
type PostgresStateStore struct {
	db  *pgxpool.Pool
	key string
	ttl time.Duration
}

// NewPostgresStateStore creates a state store scoped to one workspace.
func NewPostgresStateStore(db *pgxpool.Pool, workspaceID string, ttl time.Duration) *PostgresStateStore {
	return &PostgresStateStore{
		db:  db,
		key: sec.StorageKey(constants.RedisPrefixReader, workspaceID),
		ttl: ttl,
	}
}

/*
LoadSnapshot reads the unexpired snapshot.

Returns:
  - *Snapshot: The stored snapshot, or nil when absent or expired
  - error: Query or decoding failures
*/
func (store *PostgresStateStore) LoadSnapshot(context context.Context) (*Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s = $1 AND %s > NOW()
	`,
		schema.ReaderState.Snapshot,
		schema.ReaderState.Table,
		schema.ReaderState.Key, schema.ReaderState.ExpiresAt,
	)

	var raw []byte
	err := dberr.Wrap(store.db.QueryRow(context, query, store.key).Scan(&raw), "load_reader_state")
	if errors.Is(err, dberr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("reader_state_decode_failed: %w", err)
	}
	return &snapshot, nil
}

// SaveSnapshot upserts the snapshot and pushes its expiry forward.
func (store *PostgresStateStore) SaveSnapshot(context context.Context, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("reader_state_encode_failed: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (%s) DO UPDATE
		SET %s = EXCLUDED.%s, %s = EXCLUDED.%s, %s = NOW()
	`,
		schema.ReaderState.Table,
		schema.ReaderState.Key, schema.ReaderState.Snapshot, schema.ReaderState.ExpiresAt, schema.ReaderState.UpdatedAt,
		schema.ReaderState.Key,
		schema.ReaderState.Snapshot, schema.ReaderState.Snapshot,
		schema.ReaderState.ExpiresAt, schema.ReaderState.ExpiresAt,
		schema.ReaderState.UpdatedAt,
	)

	_, err = store.db.Exec(context, query, store.key, raw, time.Now().Add(store.ttl))
	return dberr.Wrap(err, "save_reader_state")
}

// DeleteSnapshot removes the row.
func (store *PostgresStateStore) DeleteSnapshot(context context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, schema.ReaderState.Table, schema.ReaderState.Key)

	_, err := store.db.Exec(context, query, store.key)
	return dberr.Wrap(err, "delete_reader_state")
}

// PurgeExpiredStates deletes every expired snapshot, across all workspaces.
func PurgeExpiredStates(context context.Context, db *pgxpool.Pool) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s <= NOW()`, schema.ReaderState.Table, schema.ReaderState.ExpiresAt)

	tag, err := db.Exec(context, query)
	if err != nil {
		return 0, dberr.Wrap(err, "purge_reader_state")
	}
	return tag.RowsAffected(), nil
}

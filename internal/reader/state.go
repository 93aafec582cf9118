// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package reader

import (
	"context"
	"slices"
	"sync"
)

// Snapshot is the persisted part of the reader state. Only these four
// fields survive a reload; reading context and errors do not.
type Snapshot struct {
	Resource     *Resource    `json:"resource"`
	ResourceType ResourceType `json:"resource_type"`
	Notes        []Annotation `json:"notes"`
	ChatMessages []Annotation `json:"chat_messages"`
}

// StateStore persists one workspace's [Snapshot] (the session-scoped storage
// of a browser client).
type StateStore interface {

	// LoadSnapshot returns nil, nil when nothing is stored.
	LoadSnapshot(context context.Context) (*Snapshot, error)

	SaveSnapshot(context context.Context, snapshot Snapshot) error

	DeleteSnapshot(context context.Context) error
}

// MemoryStateStore keeps the snapshot in process memory.
type MemoryStateStore struct {
	mu       sync.Mutex
	snapshot *Snapshot
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// LoadSnapshot returns a copy of the stored snapshot.
func (store *MemoryStateStore) LoadSnapshot(_ context.Context) (*Snapshot, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.snapshot == nil {
		return nil, nil
	}
	copied := cloneSnapshot(*store.snapshot)
	return &copied, nil
}

// SaveSnapshot stores a copy of snapshot.
func (store *MemoryStateStore) SaveSnapshot(_ context.Context, snapshot Snapshot) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	copied := cloneSnapshot(snapshot)
	store.snapshot = &copied
	return nil
}

// DeleteSnapshot drops the stored snapshot.
func (store *MemoryStateStore) DeleteSnapshot(_ context.Context) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.snapshot = nil
	return nil
}

func cloneSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Resource != nil {
		resource := *snapshot.Resource
		snapshot.Resource = &resource
	}
	snapshot.Notes = slices.Clone(snapshot.Notes)
	snapshot.ChatMessages = slices.Clone(snapshot.ChatMessages)
	return snapshot
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package threadstore

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	threads      map[string]Thread
	participants map[string]map[string]time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		threads:      make(map[string]Thread),
		participants: make(map[string]map[string]time.Time),
	}
}

func (m *Memory) LookupThread(ctx context.Context, tenantID, threadID string) (Thread, error) {
	if err := ctx.Err(); err != nil {
		return Thread{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	thread, ok := m.threads[threadID]
	if !ok || thread.TenantID != tenantID {
		return Thread{}, ErrNotFound
	}
	return thread, nil
}

func (m *Memory) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.participants[threadID][userID]
	return ok, nil
}

func (m *Memory) CreateThread(ctx context.Context, thread Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.threads[thread.ID]; exists {
		return ErrExists
	}
	m.threads[thread.ID] = thread
	return nil
}

func (m *Memory) AddParticipant(ctx context.Context, threadID, userID string, joinedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.threads[threadID]; !exists {
		return ErrNotFound
	}
	members := m.participants[threadID]
	if members == nil {
		members = make(map[string]time.Time)
		m.participants[threadID] = members
	}
	if _, already := members[userID]; !already {
		members[userID] = joinedAt
	}
	return nil
}

func (m *Memory) SetArchived(ctx context.Context, threadID string, archived bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	thread, exists := m.threads[threadID]
	if !exists {
		return ErrNotFound
	}
	thread.Archived = archived
	m.threads[threadID] = thread
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

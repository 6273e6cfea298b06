// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package threadstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by LookupThread when no thread with the
	// id exists in the tenant. A thread owned by another tenant is
	// reported the same way.
	ErrNotFound = errors.New("threadstore: thread not found")

	// ErrExists is returned by CreateThread for a duplicate thread id.
	ErrExists = errors.New("threadstore: thread already exists")
)

// Thread is one conversation thread.
type Thread struct {
	// ID is the canonical hyphenated UUID string.
	ID       string
	TenantID string
	Archived bool

	CreatedAt time.Time
}

// Reader is the read side used by the access oracle.
type Reader interface {
	// LookupThread returns the thread if it exists in tenantID, or
	// ErrNotFound.
	LookupThread(ctx context.Context, tenantID, threadID string) (Thread, error)

	// IsParticipant reports whether userID is a participant of
	// threadID.
	IsParticipant(ctx context.Context, threadID, userID string) (bool, error)
}

// Writer seeds and mutates threads. AddParticipant is idempotent.
// AddParticipant and SetArchived return ErrNotFound for an unknown
// thread.
type Writer interface {
	CreateThread(ctx context.Context, thread Thread) error
	AddParticipant(ctx context.Context, threadID, userID string, joinedAt time.Time) error
	SetArchived(ctx context.Context, threadID string, archived bool) error
}

// Store is a complete backend.
type Store interface {
	Reader
	Writer
	Close() error
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package threadaccess decides whether an authenticated principal may
// join a conversation thread.
//
// The decision runs four checks in order and stops at the first
// failure: the thread id is a canonical UUID, the thread exists in the
// principal's tenant, the thread is not archived, and the user is a
// participant. A thread owned by another tenant is indistinguishable
// from one that does not exist.
//
// Denials are values, not errors. An error from [Oracle.MayJoin] means
// the store failed and no decision was reached.
package threadaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/chatgate/lib/threadstore"
)

// DenialKind names the reason a join was refused.
type DenialKind string

const (
	DenialBadThreadID    DenialKind = "bad_thread_id"
	DenialNotFound       DenialKind = "not_found"
	DenialArchived       DenialKind = "archived"
	DenialNotParticipant DenialKind = "not_participant"
)

// Decision is the outcome of MayJoin.
type Decision struct {
	Allowed bool

	// Denial is set when Allowed is false.
	Denial DenialKind

	// ThreadID is the canonical form of the requested id, set once the
	// id has parsed.
	ThreadID string
}

// Oracle answers join requests against a thread store.
type Oracle struct {
	store  threadstore.Reader
	logger *slog.Logger
}

// New returns an Oracle reading from store. A nil logger discards.
func New(store threadstore.Reader, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Oracle{store: store, logger: logger}
}

// MayJoin decides whether userID of tenantID may join threadID.
func (o *Oracle) MayJoin(ctx context.Context, threadID, tenantID, userID string) (Decision, error) {
	canonical, ok := CanonicalThreadID(threadID)
	if !ok {
		return o.deny(DenialBadThreadID, "", tenantID, userID), nil
	}

	thread, err := o.store.LookupThread(ctx, tenantID, canonical)
	if errors.Is(err, threadstore.ErrNotFound) {
		return o.deny(DenialNotFound, canonical, tenantID, userID), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("threadaccess: %w", err)
	}
	if thread.Archived {
		return o.deny(DenialArchived, canonical, tenantID, userID), nil
	}

	member, err := o.store.IsParticipant(ctx, canonical, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("threadaccess: %w", err)
	}
	if !member {
		return o.deny(DenialNotParticipant, canonical, tenantID, userID), nil
	}

	return Decision{Allowed: true, ThreadID: canonical}, nil
}

func (o *Oracle) deny(kind DenialKind, threadID, tenantID, userID string) Decision {
	o.logger.Info("join denied",
		"denial", kind,
		"thread_id", threadID,
		"tenant_id", tenantID,
		"user_id", userID,
	)
	return Decision{Denial: kind, ThreadID: threadID}
}

// CanonicalThreadID reports whether id is a UUID in the canonical
// 36-character hyphenated form and returns it lowercased. Braced, URN,
// and unhyphenated forms are rejected.
func CanonicalThreadID(id string) (string, bool) {
	if len(id) != 36 {
		return "", false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	canonical := parsed.String()
	if canonical != strings.ToLower(id) {
		return "", false
	}
	return canonical, true
}

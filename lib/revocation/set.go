// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/chatgate/lib/clock"
)

// Layer names used by the built-in sources.
const (
	LayerFile  = "file"
	LayerRedis = "redis"
	LayerPush  = "push"
)

// Entry is one revoked identifier.
type Entry struct {
	ID string

	// ExpiresAt is the revoked credential's natural expiry. Zero means
	// the entry is kept until its layer is replaced.
	ExpiresAt time.Time
}

// layers maps layer name to identifier to expiry. Published snapshots
// are never mutated.
type layers map[string]map[string]time.Time

// Set is a concurrent set of revoked identifiers.
type Set struct {
	// writeMu serializes copy-on-write updates. Readers never take it.
	writeMu  sync.Mutex
	snapshot atomic.Pointer[layers]
}

// NewSet returns an empty Set.
func NewSet() *Set {
	s := &Set{}
	s.snapshot.Store(&layers{})
	return s
}

// IsRevoked reports whether id is present in any layer.
func (s *Set) IsRevoked(id string) bool {
	if id == "" {
		return false
	}
	for _, layer := range *s.snapshot.Load() {
		if _, ok := layer[id]; ok {
			return true
		}
	}
	return false
}

// Replace atomically swaps the contents of one layer.
func (s *Set) Replace(layer string, entries []Entry) {
	fresh := make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		if entry.ID != "" {
			fresh[entry.ID] = entry.ExpiresAt
		}
	}

	s.update(func(next layers) {
		if len(fresh) == 0 {
			delete(next, layer)
			return
		}
		next[layer] = fresh
	})
}

// Add merges entries into one layer.
func (s *Set) Add(layer string, entries ...Entry) {
	s.update(func(next layers) {
		merged := maps.Clone(next[layer])
		if merged == nil {
			merged = make(map[string]time.Time, len(entries))
		}
		for _, entry := range entries {
			if entry.ID != "" {
				merged[entry.ID] = entry.ExpiresAt
			}
		}
		next[layer] = merged
	})
}

// Cleanup drops entries whose expiry is at or before now and returns
// how many were removed.
func (s *Set) Cleanup(now time.Time) int {
	removed := 0
	s.update(func(next layers) {
		for name, layer := range next {
			var kept map[string]time.Time
			for id, expiresAt := range layer {
				if !expiresAt.IsZero() && !now.Before(expiresAt) {
					if kept == nil {
						kept = maps.Clone(layer)
					}
					delete(kept, id)
					removed++
				}
			}
			if kept != nil {
				next[name] = kept
			}
		}
	})
	return removed
}

// Len returns the number of distinct identifiers across all layers.
func (s *Set) Len() int {
	seen := make(map[string]struct{})
	for _, layer := range *s.snapshot.Load() {
		for id := range layer {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// RunCleanup calls Cleanup every interval until ctx is cancelled.
func (s *Set) RunCleanup(ctx context.Context, clk clock.Clock, interval time.Duration, logger *slog.Logger) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Cleanup(now); removed > 0 {
				logger.Debug("revocation entries expired", "removed", removed)
			}
		}
	}
}

// update clones the layer map (not the layers themselves), lets mutate
// edit the clone, and publishes it.
func (s *Set) update(mutate func(next layers)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := maps.Clone(*s.snapshot.Load())
	if next == nil {
		next = layers{}
	}
	mutate(next)
	s.snapshot.Store(&next)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connregistry

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/chatgate/lib/clock"
)

const (
	// DefaultQueueDepth is the send queue capacity per connection.
	DefaultQueueDepth = 64

	// DefaultSlowConsumerGrace is how long a queue may stay full
	// before the connection is disconnected.
	DefaultSlowConsumerGrace = 5 * time.Second
)

// Config configures a Registry.
type Config struct {
	// QueueDepth is the send queue capacity. Zero means
	// DefaultQueueDepth.
	QueueDepth int

	// SlowConsumerGrace is how long a queue may stay full. Zero means
	// DefaultSlowConsumerGrace.
	SlowConsumerGrace time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Stats is a point-in-time view of the registry's counters.
type Stats struct {
	Connections int
	Threads     int

	// SlowConsumerDrops counts frames dropped on full queues.
	SlowConsumerDrops uint64

	// SlowConsumerDisconnects counts handles whose Slow channel closed.
	SlowConsumerDisconnects uint64
}

// Registry is the set of live connections. It is safe for concurrent
// use.
type Registry struct {
	queueDepth int
	grace      time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket

	lastID      atomic.Uint64
	connections atomic.Int64

	slowConsumerDrops       atomic.Uint64
	slowConsumerDisconnects atomic.Uint64
}

// bucket holds one thread's handles. A bucket removed from the map is
// marked dead so a concurrent Register retries with a fresh bucket.
type bucket struct {
	mu      sync.RWMutex
	handles map[uint64]*Handle
	dead    bool
}

// New returns an empty Registry.
func New(cfg Config) *Registry {
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	grace := cfg.SlowConsumerGrace
	if grace <= 0 {
		grace = DefaultSlowConsumerGrace
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		queueDepth: queueDepth,
		grace:      grace,
		clock:      clk,
		logger:     logger,
		buckets:    make(map[string]*bucket),
	}
}

// NewHandle creates an unregistered handle with an empty send queue.
// Frames may be enqueued before Register so that a greeting is
// guaranteed to precede any broadcast.
func (r *Registry) NewHandle(identity Identity) *Handle {
	return &Handle{
		Identity:    identity,
		ConnectedAt: r.clock.Now(),
		queue:       make(chan []byte, r.queueDepth),
		clock:       r.clock,
		grace:       r.grace,
		registry:    r,
		slow:        make(chan struct{}),
	}
}

// Register adds handle under its thread and returns its connection id.
// Ids are assigned from 1 and never reused within the process.
func (r *Registry) Register(handle *Handle) uint64 {
	id := r.lastID.Add(1)
	handle.id.Store(id)

	for {
		r.mu.Lock()
		b := r.buckets[handle.ThreadID]
		if b == nil {
			b = &bucket{handles: make(map[uint64]*Handle)}
			r.buckets[handle.ThreadID] = b
		}
		r.mu.Unlock()

		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}
		b.handles[id] = handle
		b.mu.Unlock()
		break
	}

	r.connections.Add(1)
	r.logger.Debug("connection registered",
		"thread_id", handle.ThreadID,
		"connection_id", id,
		"user_id", handle.UserID,
	)
	return id
}

// Unregister removes a connection. Unknown ids are ignored, so calling
// it more than once is safe.
func (r *Registry) Unregister(threadID string, connectionID uint64) {
	r.mu.RLock()
	b := r.buckets[threadID]
	r.mu.RUnlock()
	if b == nil {
		return
	}

	b.mu.Lock()
	handle, ok := b.handles[connectionID]
	if ok {
		delete(b.handles, connectionID)
	}
	empty := len(b.handles) == 0
	b.mu.Unlock()

	if !ok {
		return
	}
	handle.release()
	r.connections.Add(-1)
	r.logger.Debug("connection unregistered", "thread_id", threadID, "connection_id", connectionID)

	if empty {
		r.mu.Lock()
		b.mu.Lock()
		if len(b.handles) == 0 && r.buckets[threadID] == b {
			b.dead = true
			delete(r.buckets, threadID)
		}
		b.mu.Unlock()
		r.mu.Unlock()
	}
}

// Broadcast enqueues frame on every connection of threadID except the
// one with id except (zero excludes nobody) and returns how many
// accepted it.
func (r *Registry) Broadcast(threadID string, frame []byte, except uint64) int {
	delivered := 0
	for _, handle := range r.Snapshot(threadID) {
		if handle.ID() == except {
			continue
		}
		if handle.Enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// Send enqueues frame on one connection. It returns false if the
// connection is not registered or its queue is full.
func (r *Registry) Send(threadID string, connectionID uint64, frame []byte) bool {
	r.mu.RLock()
	b := r.buckets[threadID]
	r.mu.RUnlock()
	if b == nil {
		return false
	}

	b.mu.RLock()
	handle := b.handles[connectionID]
	b.mu.RUnlock()
	if handle == nil {
		return false
	}
	return handle.Enqueue(frame)
}

// Snapshot returns the handles registered on threadID, ordered by
// connection id.
func (r *Registry) Snapshot(threadID string) []*Handle {
	r.mu.RLock()
	b := r.buckets[threadID]
	r.mu.RUnlock()
	if b == nil {
		return nil
	}

	b.mu.RLock()
	handles := make([]*Handle, 0, len(b.handles))
	for _, handle := range b.handles {
		handles = append(handles, handle)
	}
	b.mu.RUnlock()

	slices.SortFunc(handles, func(a, b *Handle) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return handles
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	return int(r.connections.Load())
}

// Stats returns the registry's counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	threads := len(r.buckets)
	r.mu.RUnlock()
	return Stats{
		Connections:             r.Count(),
		Threads:                 threads,
		SlowConsumerDrops:       r.slowConsumerDrops.Load(),
		SlowConsumerDisconnects: r.slowConsumerDisconnects.Load(),
	}
}

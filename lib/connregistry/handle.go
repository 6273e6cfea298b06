// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connregistry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/chatgate/lib/clock"
)

// Identity describes who is on the other end of a connection.
type Identity struct {
	ThreadID string
	UserID   string
	TenantID string
}

// Handle is the registry's view of one connection.
type Handle struct {
	Identity

	// ConnectedAt is when the handle was created.
	ConnectedAt time.Time

	id    atomic.Uint64
	queue chan []byte

	clock    clock.Clock
	grace    time.Duration
	registry *Registry

	dropped atomic.Uint64

	mu         sync.Mutex
	fullSince  time.Time
	graceTimer *clock.Timer
	released   bool

	slow     chan struct{}
	slowOnce sync.Once
}

// ID returns the connection id assigned by Register, or zero before
// registration.
func (h *Handle) ID() uint64 { return h.id.Load() }

// Queue is the receive side of the send queue. Only the connection's
// writer reads it, and it must call Dequeued after each receive.
func (h *Handle) Queue() <-chan []byte { return h.queue }

// Slow is closed once the queue has stayed full for longer than the
// grace period.
func (h *Handle) Slow() <-chan struct{} { return h.slow }

// Dropped returns the number of frames dropped for this connection.
func (h *Handle) Dropped() uint64 { return h.dropped.Load() }

// Pending returns the number of frames waiting in the queue.
func (h *Handle) Pending() int { return len(h.queue) }

// Enqueue offers frame to the connection without blocking. It returns
// false and records a slow-consumer drop when the queue is full.
func (h *Handle) Enqueue(frame []byte) bool {
	select {
	case h.queue <- frame:
		return true
	default:
	}

	h.dropped.Add(1)
	if h.registry != nil {
		h.registry.slowConsumerDrops.Add(1)
	}
	h.markFull()
	return false
}

// Dequeued tells the handle the writer has taken a frame, so the queue
// is no longer full.
func (h *Handle) Dequeued() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fullSince.IsZero() {
		return
	}
	h.fullSince = time.Time{}
	if h.graceTimer != nil {
		h.graceTimer.Stop()
		h.graceTimer = nil
	}
}

// markFull starts the grace timer on the first drop of a full spell.
// The connection is slow once the queue has been full for strictly
// longer than the grace period, so the timer fires just past it.
func (h *Handle) markFull() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || !h.fullSince.IsZero() {
		return
	}
	h.fullSince = h.clock.Now()
	h.graceTimer = h.clock.AfterFunc(h.grace+time.Nanosecond, h.graceExpired)
}

func (h *Handle) graceExpired() {
	h.mu.Lock()
	expired := !h.released && !h.fullSince.IsZero() &&
		h.clock.Now().Sub(h.fullSince) > h.grace
	h.graceTimer = nil
	h.mu.Unlock()

	if !expired {
		return
	}
	h.slowOnce.Do(func() {
		if h.registry != nil {
			h.registry.slowConsumerDisconnects.Add(1)
		}
		close(h.slow)
	})
}

// release stops the grace timer. Called on unregister.
func (h *Handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	if h.graceTimer != nil {
		h.graceTimer.Stop()
		h.graceTimer = nil
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package connregistry tracks live chat connections grouped by thread
// and delivers encoded frames to them.
//
// Each connection is represented by a [Handle] owning a bounded send
// queue. The gateway's writer goroutine drains the queue; everyone
// else enqueues without blocking. When a queue is full the frame is
// dropped for that recipient only and counted as a slow-consumer drop.
// If the queue stays full for longer than the configured grace period
// the handle's [Handle.Slow] channel closes and the owning session
// disconnects the client.
//
// Threads map to buckets, each with its own lock. Register and
// Unregister take a bucket's write lock. Broadcast holds the read lock
// only long enough to copy the handle list and enqueues outside it, so
// a slow fan-out never blocks joins or leaves on the same thread.
//
// Frames are shared between recipients and must not be modified after
// they are enqueued.
package connregistry

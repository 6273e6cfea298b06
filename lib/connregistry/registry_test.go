// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connregistry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/chatgate/lib/clock"
	"github.com/bureau-foundation/chatgate/lib/testutil"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T, queueDepth int) (*Registry, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(testEpoch)
	return New(Config{QueueDepth: queueDepth, Clock: fake}), fake
}

func register(t *testing.T, registry *Registry, threadID, userID string) *Handle {
	t.Helper()
	handle := registry.NewHandle(Identity{ThreadID: threadID, UserID: userID, TenantID: "tenant-a"})
	registry.Register(handle)
	return handle
}

func TestRegisterAssignsMonotonicIDs(t *testing.T) {
	registry, _ := newTestRegistry(t, 4)

	first := register(t, registry, "thread-1", "alice")
	second := register(t, registry, "thread-2", "bob")
	third := register(t, registry, "thread-1", "carol")

	if first.ID() != 1 || second.ID() != 2 || third.ID() != 3 {
		t.Fatalf("ids = %d, %d, %d; want 1, 2, 3", first.ID(), second.ID(), third.ID())
	}

	registry.Unregister("thread-1", first.ID())
	fourth := register(t, registry, "thread-1", "alice")
	if fourth.ID() != 4 {
		t.Errorf("id after unregister = %d, want 4 (ids are never reused)", fourth.ID())
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	registry, _ := newTestRegistry(t, 4)
	handle := register(t, registry, "thread-1", "alice")

	registry.Unregister("thread-1", handle.ID())
	registry.Unregister("thread-1", handle.ID())
	registry.Unregister("thread-unknown", 99)

	if registry.Count() != 0 {
		t.Errorf("Count = %d, want 0", registry.Count())
	}
	if stats := registry.Stats(); stats.Threads != 0 {
		t.Errorf("Threads = %d, want 0 after last connection left", stats.Threads)
	}
	if len(registry.Snapshot("thread-1")) != 0 {
		t.Error("Snapshot still lists the unregistered handle")
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	registry, _ := newTestRegistry(t, 4)
	alice := register(t, registry, "thread-1", "alice")
	bob := register(t, registry, "thread-1", "bob")
	other := register(t, registry, "thread-2", "carol")

	frame := []byte(`{"type":"message"}`)
	if delivered := registry.Broadcast("thread-1", frame, alice.ID()); delivered != 1 {
		t.Fatalf("Broadcast delivered = %d, want 1", delivered)
	}

	got := testutil.RequireReceive(t, bob.Queue(), time.Second, "bob's queue")
	if string(got) != string(frame) {
		t.Errorf("bob received %q, want %q", got, frame)
	}
	if alice.Pending() != 0 {
		t.Error("sender received its own broadcast")
	}
	if other.Pending() != 0 {
		t.Error("broadcast leaked to another thread")
	}

	if delivered := registry.Broadcast("thread-1", frame, 0); delivered != 2 {
		t.Errorf("Broadcast with no exclusion delivered = %d, want 2", delivered)
	}
}

func TestBroadcastCountsSlowConsumers(t *testing.T) {
	registry, _ := newTestRegistry(t, 2)
	fast := register(t, registry, "thread-1", "fast")
	slow := register(t, registry, "thread-1", "slow")

	frame := []byte(`{}`)
	slow.Enqueue(frame)
	slow.Enqueue(frame)

	delivered := registry.Broadcast("thread-1", frame, 0)
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if fast.Pending() != 1 {
		t.Errorf("fast consumer pending = %d, want 1", fast.Pending())
	}
	if slow.Dropped() != 1 {
		t.Errorf("slow consumer dropped = %d, want 1", slow.Dropped())
	}
	if stats := registry.Stats(); stats.SlowConsumerDrops != 1 {
		t.Errorf("SlowConsumerDrops = %d, want 1", stats.SlowConsumerDrops)
	}
}

func TestSlowConsumerGrace(t *testing.T) {
	registry, fake := newTestRegistry(t, 1)
	handle := register(t, registry, "thread-1", "alice")

	handle.Enqueue([]byte("a"))
	handle.Enqueue([]byte("b")) // dropped, starts the grace period

	fake.Advance(DefaultSlowConsumerGrace - time.Millisecond)
	select {
	case <-handle.Slow():
		t.Fatal("Slow closed before the grace period elapsed")
	default:
	}

	// Full for exactly the grace period is not yet too long.
	fake.Advance(time.Millisecond)
	select {
	case <-handle.Slow():
		t.Fatal("Slow closed with the queue full for exactly the grace period")
	default:
	}

	fake.Advance(time.Nanosecond)
	testutil.RequireClosed(t, handle.Slow(), time.Second, "Slow after grace")

	if stats := registry.Stats(); stats.SlowConsumerDisconnects != 1 {
		t.Errorf("SlowConsumerDisconnects = %d, want 1", stats.SlowConsumerDisconnects)
	}
}

func TestDequeueCancelsGrace(t *testing.T) {
	registry, fake := newTestRegistry(t, 1)
	handle := register(t, registry, "thread-1", "alice")

	handle.Enqueue([]byte("a"))
	handle.Enqueue([]byte("b"))
	fake.Advance(3 * time.Second)

	<-handle.Queue()
	handle.Dequeued()

	fake.Advance(10 * time.Second)
	select {
	case <-handle.Slow():
		t.Fatal("Slow closed although the writer caught up")
	default:
	}
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", fake.PendingCount())
	}
}

func TestUnregisterStopsGrace(t *testing.T) {
	registry, fake := newTestRegistry(t, 1)
	handle := register(t, registry, "thread-1", "alice")

	handle.Enqueue([]byte("a"))
	handle.Enqueue([]byte("b"))
	registry.Unregister("thread-1", handle.ID())

	fake.Advance(time.Minute)
	select {
	case <-handle.Slow():
		t.Fatal("Slow closed after unregister")
	default:
	}
}

func TestSend(t *testing.T) {
	registry, _ := newTestRegistry(t, 4)
	alice := register(t, registry, "thread-1", "alice")
	bob := register(t, registry, "thread-1", "bob")

	if !registry.Send("thread-1", bob.ID(), []byte("hi")) {
		t.Fatal("Send to a registered connection failed")
	}
	if bob.Pending() != 1 || alice.Pending() != 0 {
		t.Errorf("pending alice=%d bob=%d, want 0 and 1", alice.Pending(), bob.Pending())
	}
	if registry.Send("thread-1", 999, []byte("hi")) {
		t.Error("Send to an unknown connection succeeded")
	}
	if registry.Send("thread-2", bob.ID(), []byte("hi")) {
		t.Error("Send with the wrong thread succeeded")
	}
}

func TestSnapshotOrderedByID(t *testing.T) {
	registry, _ := newTestRegistry(t, 4)
	for i := range 5 {
		register(t, registry, "thread-1", fmt.Sprintf("user-%d", i))
	}
	snapshot := registry.Snapshot("thread-1")
	if len(snapshot) != 5 {
		t.Fatalf("len(Snapshot) = %d, want 5", len(snapshot))
	}
	for i, handle := range snapshot {
		if handle.ID() != uint64(i+1) {
			t.Errorf("snapshot[%d].ID = %d, want %d", i, handle.ID(), i+1)
		}
	}
}

func TestConcurrentRegisterBroadcastUnregister(t *testing.T) {
	registry, _ := newTestRegistry(t, 256)
	const workers = 16
	var group sync.WaitGroup

	for worker := range workers {
		group.Add(1)
		go func() {
			defer group.Done()
			thread := fmt.Sprintf("thread-%d", worker%3)
			for range 50 {
				handle := registry.NewHandle(Identity{ThreadID: thread, UserID: "u"})
				id := registry.Register(handle)
				registry.Broadcast(thread, []byte("x"), id)
				registry.Unregister(thread, id)
			}
		}()
	}
	group.Wait()

	stats := registry.Stats()
	if stats.Connections != 0 || stats.Threads != 0 {
		t.Errorf("Stats after churn = %+v, want empty", stats)
	}
}

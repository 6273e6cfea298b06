// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// recorder captures Fatalf instead of stopping the goroutine.
type recorder struct {
	failed  bool
	message string
}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}
}

func TestRequireClosedTimesOut(t *testing.T) {
	rec := &recorder{}
	RequireClosed(rec, make(chan struct{}), 10*time.Millisecond, "slow %s", "consumer")
	if !rec.failed {
		t.Fatal("RequireClosed did not fail on an open channel")
	}
	if !strings.Contains(rec.message, "slow consumer") {
		t.Errorf("message = %q, want it to contain the formatted context", rec.message)
	}
}

func TestEventually(t *testing.T) {
	var calls atomic.Int32
	Eventually(t, time.Second, func() bool { return calls.Add(1) >= 3 }, "third call")

	rec := &recorder{}
	Eventually(rec, 20*time.Millisecond, func() bool { return false }, "never")
	if !rec.failed {
		t.Error("Eventually did not fail for a condition that never holds")
	}
}

func TestUniqueID(t *testing.T) {
	first, second := UniqueID("ref"), UniqueID("ref")
	if first == second || !strings.HasPrefix(first, "ref-") {
		t.Errorf("UniqueID returned %q then %q", first, second)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit implements per-connection sliding-window admission
// for inbound chat frames.
//
// A [Window] keeps the admission instants of the last second and the
// last minute. Before each decision it drops instants that have aged
// out, then refuses the frame if admitting it would exceed either
// limit. Refused frames are not recorded, so a client that backs off
// recovers as soon as old instants expire.
//
// A Window belongs to one connection and is not safe for concurrent
// use; the connection's reader goroutine is its only caller.
package ratelimit

import (
	"fmt"
	"time"
)

const (
	// DefaultBurstMax is the number of frames admitted per second.
	DefaultBurstMax = 10

	// DefaultMinuteMax is the number of frames admitted per minute.
	DefaultMinuteMax = 30

	burstSpan     = time.Second
	sustainedSpan = time.Minute
)

// Denial names the limit that refused a frame. The zero value means
// admitted.
type Denial string

const (
	DenialBurst     Denial = "burst"
	DenialSustained Denial = "sustained"
)

// Limits are the per-connection ceilings.
type Limits struct {
	BurstMax  int
	MinuteMax int
}

// DefaultLimits returns 10 per second and 30 per minute.
func DefaultLimits() Limits {
	return Limits{BurstMax: DefaultBurstMax, MinuteMax: DefaultMinuteMax}
}

// Validate rejects non-positive limits.
func (l Limits) Validate() error {
	if l.BurstMax <= 0 {
		return fmt.Errorf("ratelimit: burst max must be positive, got %d", l.BurstMax)
	}
	if l.MinuteMax <= 0 {
		return fmt.Errorf("ratelimit: minute max must be positive, got %d", l.MinuteMax)
	}
	return nil
}

// Window tracks admissions for one connection.
type Window struct {
	limits Limits

	// Admission instants, oldest first.
	short []time.Time
	long  []time.Time
}

// NewWindow returns an empty window enforcing limits.
func NewWindow(limits Limits) *Window {
	return &Window{
		limits: limits,
		short:  make([]time.Time, 0, limits.BurstMax),
		long:   make([]time.Time, 0, limits.MinuteMax),
	}
}

// Admit decides whether a frame arriving at now is admitted. It
// returns "" and records now on admission, or the denial and records
// nothing.
func (w *Window) Admit(now time.Time) Denial {
	w.short = prune(w.short, now, burstSpan)
	w.long = prune(w.long, now, sustainedSpan)

	if len(w.short)+1 > w.limits.BurstMax {
		return DenialBurst
	}
	if len(w.long)+1 > w.limits.MinuteMax {
		return DenialSustained
	}

	w.short = append(w.short, now)
	w.long = append(w.long, now)
	return ""
}

// Counts returns the number of admissions currently inside the short
// and long spans, as of the last Admit.
func (w *Window) Counts() (short, long int) {
	return len(w.short), len(w.long)
}

// prune drops leading instants whose age at now is span or more. It
// reuses the slice's backing array.
func prune(instants []time.Time, now time.Time, span time.Duration) []time.Time {
	cut := 0
	for cut < len(instants) && now.Sub(instants[cut]) >= span {
		cut++
	}
	if cut == 0 {
		return instants
	}
	remaining := copy(instants, instants[cut:])
	return instants[:remaining]
}

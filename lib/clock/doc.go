// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the gateway's injectable time source.
//
// Rate-limit windows, idle and handshake deadlines, slow-consumer grace
// periods, and frame timestamps all read time through a [Clock]. The
// binary wires [Real]; tests wire [Fake] and move time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	limiter := ratelimit.NewWindow(limits)
//	limiter.Admit(c.Now())
//	c.Advance(time.Second)
//
// Socket read/write deadlines are the one exception: the network stack
// only understands wall time, so transport code calls time.Now for
// those and nothing else.
//
// # Synchronizing with goroutines
//
// A goroutine that arms a timer on a [FakeClock] races with the test
// that wants to advance past it. [FakeClock.WaitForTimers] blocks until
// the expected number of timers are pending, which removes the race
// without sleeping.
package clock

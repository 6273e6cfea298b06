// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for chatgate packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the select
// with a wall-clock fallback that keeps a broken test from hanging.
// [Eventually] polls a condition for effects that arrive from outside
// the fake clock's control (filesystem notifications, goroutines
// woken by a ticker). These are the only places in the test suite that
// use real timeouts; protocol timing in tests goes through
// clock.FakeClock.
//
// [UniqueID] generates distinct identifiers (message bodies, client
// refs, user ids) without reading the clock.
//
// All helpers call t.Fatalf on failure.
package testutil

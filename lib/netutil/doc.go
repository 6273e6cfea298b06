// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies transport errors on chat connections.
//
// A client that disappears without a close handshake surfaces on the
// gateway as EOF, a reset, or a write to a socket that is already
// closed. [IsExpectedCloseError] separates those routine disconnects
// from failures worth a warning.
package netutil

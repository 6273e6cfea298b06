// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the process-level HTTP server for chatgate.
//
// [HTTPServer] binds a TCP listener, reports readiness, and shuts down
// in order when its context is cancelled: the BeforeShutdown hook runs
// first (the gateway uses it to drain and close WebSocket connections,
// which http.Server does not track once hijacked), then the listener
// closes and in-flight requests drain.
package service

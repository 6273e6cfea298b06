// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway accepts chat WebSocket connections, authenticates
// and authorizes them, and runs each accepted connection until it
// closes.
//
// # Handshake
//
// A client connects to /<prefix>/chat/{thread_id} carrying its
// credential in the "token" query parameter or as the second entry of
// "Sec-WebSocket-Protocol: Bearer, <credential>". The gateway
// validates the credential, asks the access oracle whether the caller
// may join the thread, and only then upgrades. A refused handshake is
// still upgraded so the client receives a WebSocket close code:
//
//	4000 BAD_REQUEST       malformed thread id, handshake deadline passed
//	4001 UNAUTHENTICATED   any credential failure
//	4003 FORBIDDEN         thread not found, archived, or not a participant
//	4008 GOING_AWAY        shutdown, idle timeout, slow consumer
//	1011 INTERNAL          the thread store failed
//
// The reason text is the code's name. Finer-grained reasons are
// logged, never sent.
//
// # Connection lifetime
//
// An accepted connection is registered with the connection registry
// after its "connected" frame has been queued, so that frame is always
// the first the client sees. Each connection has a reader (the HTTP
// handler goroutine) and a writer goroutine joined by the handle's
// bounded send queue. The reader processes frames in arrival order:
// "ping" is answered with "pong" and never rate limited, every other
// frame passes the connection's rate window first, "message" goes to
// the MessageHandler and is acknowledged, and anything else is
// answered with an "unknown_frame" error. Rate and handler errors
// never close the connection.
//
// [Gateway.Shutdown] moves every connection to closing with
// GOING_AWAY, lets each writer drain its queue for up to the drain
// deadline, then waits for all of them to unregister.
package gateway

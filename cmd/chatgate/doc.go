// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// chatgate is the real-time chat gateway. It authenticates WebSocket
// connections with bearer JWTs, admits them to threads their tenant
// owns and they participate in, rate-limits inbound frames, and fans
// messages out to the other connections on each thread.
//
// Usage:
//
//	chatgate --config /etc/chatgate/chatgate.yaml
//	CHATGATE_CONFIG=/etc/chatgate/chatgate.yaml chatgate
//	chatgate --config chatgate.yaml --check
//
// On SIGINT or SIGTERM the gateway stops accepting connections, drains
// each connection's queued frames, closes it with 4008, and exits once
// every connection has unregistered or listen.shutdown_timeout passes.
package main

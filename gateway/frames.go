// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
)

// Frame types.
const (
	FrameConnected = "connected"
	FramePing      = "ping"
	FramePong      = "pong"
	FrameMessage   = "message"
	FrameAck       = "ack"
	FrameError     = "error"
)

// Error frame codes produced by the gateway. A MessageHandler may
// return a HandlerError with its own code.
const (
	ErrorRateLimitBurst     = "rate_limit_burst"
	ErrorRateLimitSustained = "rate_limit_sustained"
	ErrorUnknownFrame       = "unknown_frame"
	ErrorInternal           = "internal"
)

// Timestamps ("ts") are Unix milliseconds.

// ConnectedFrame is the first frame on every accepted connection.
type ConnectedFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	TS       int64  `json:"ts"`
}

// PongFrame answers a ping.
type PongFrame struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

// AckFrame acknowledges a handled message. ClientRef echoes the
// message's client_ref and is empty if the client sent none.
type AckFrame struct {
	Type      string `json:"type"`
	ClientRef string `json:"client_ref"`
	TS        int64  `json:"ts"`
}

// ErrorFrame reports a non-fatal problem with an inbound frame.
type ErrorFrame struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// MessageFrame is a chat message delivered to the other participants
// of a thread.
type MessageFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	UserID    string `json:"user_id"`
	ClientRef string `json:"client_ref,omitempty"`
	Content   string `json:"content"`
	TS        int64  `json:"ts"`
}

// inboundEnvelope is the part of every client frame the gateway reads
// before dispatch. BadClientRef is set when client_ref is present but
// not a string or null.
type inboundEnvelope struct {
	Type         string
	ClientRef    string
	BadClientRef bool
	Content      json.RawMessage
}

// decodeInbound parses a client frame. Each field is decoded on its
// own so a malformed field does not hide the frame's type. A frame that
// is not a JSON object with a string "type" yields an empty type, which
// dispatches as unknown.
func decodeInbound(data []byte) inboundEnvelope {
	var raw struct {
		Type      json.RawMessage `json:"type"`
		ClientRef json.RawMessage `json:"client_ref"`
		Content   json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return inboundEnvelope{}
	}

	var envelope inboundEnvelope
	if err := json.Unmarshal(raw.Type, &envelope.Type); err != nil {
		return inboundEnvelope{}
	}
	if len(raw.ClientRef) > 0 {
		var ref *string
		if err := json.Unmarshal(raw.ClientRef, &ref); err != nil {
			envelope.BadClientRef = true
		} else if ref != nil {
			envelope.ClientRef = *ref
		}
	}
	envelope.Content = raw.Content
	return envelope
}

// encodeFrame marshals an outbound frame. All frame types are plain
// structs of strings and integers, so failure is a programming error.
func encodeFrame(frame any) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		panic(fmt.Sprintf("gateway: encoding %T: %v", frame, err))
	}
	return data
}

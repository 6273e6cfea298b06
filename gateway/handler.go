// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/chatgate/lib/clock"
)

// Sender identifies the connection a message arrived on.
type Sender struct {
	ConnectionID uint64
	ThreadID     string
	UserID       string
	TenantID     string
}

// InboundMessage is a "message" frame after rate admission.
type InboundMessage struct {
	ClientRef string

	// Content is the raw JSON value of the "content" field, nil if
	// absent.
	Content json.RawMessage

	// Raw is the complete frame as received.
	Raw []byte
}

// MessageHandler processes admitted messages. It is called from the
// connection's reader goroutine, one message at a time per connection.
// A nil return acknowledges the message. A *HandlerError is reported to
// the client with its code; any other error is logged and reported as
// "internal". Neither closes the connection.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sender Sender, message InboundMessage) error
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, sender Sender, message InboundMessage) error

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, sender Sender, message InboundMessage) error {
	return f(ctx, sender, message)
}

// HandlerError is a handler error with a client-visible code.
type HandlerError struct {
	Code   string
	Detail string
}

func (e *HandlerError) Error() string {
	if e.Detail == "" {
		return "gateway: " + e.Code
	}
	return "gateway: " + e.Code + ": " + e.Detail
}

// ErrorInvalidMessage is the FanoutHandler's code for a message whose
// content is not a non-empty string.
const ErrorInvalidMessage = "invalid_message"

// Broadcaster delivers an encoded frame to the connections on a
// thread, skipping the connection with id except. The connection
// registry satisfies it for a single node; a cross-node bus would
// satisfy it by publishing as well.
type Broadcaster interface {
	Broadcast(threadID string, frame []byte, except uint64) int
}

// FanoutHandler relays each message to the other connections on its
// thread.
type FanoutHandler struct {
	broadcaster Broadcaster
	clock       clock.Clock
}

// NewFanoutHandler returns a handler broadcasting through broadcaster.
func NewFanoutHandler(broadcaster Broadcaster, clk clock.Clock) *FanoutHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &FanoutHandler{broadcaster: broadcaster, clock: clk}
}

func (h *FanoutHandler) HandleMessage(ctx context.Context, sender Sender, message InboundMessage) error {
	var content string
	if err := json.Unmarshal(message.Content, &content); err != nil || content == "" {
		return &HandlerError{Code: ErrorInvalidMessage, Detail: "content must be a non-empty string"}
	}

	now := h.clock.Now()
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return fmt.Errorf("gateway: assigning message id: %w", err)
	}

	h.broadcaster.Broadcast(sender.ThreadID, encodeFrame(MessageFrame{
		Type:      FrameMessage,
		ID:        id.String(),
		ThreadID:  sender.ThreadID,
		UserID:    sender.UserID,
		ClientRef: message.ClientRef,
		Content:   content,
		TS:        now.UnixMilli(),
	}), sender.ConnectionID)
	return nil
}

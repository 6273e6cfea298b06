// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"strconv"

	"github.com/gorilla/websocket"
)

// CloseCode is a WebSocket close status sent by the gateway.
type CloseCode int

const (
	CloseBadRequest      CloseCode = 4000
	CloseUnauthenticated CloseCode = 4001
	CloseForbidden       CloseCode = 4003
	CloseGoingAway       CloseCode = 4008
	CloseInternal        CloseCode = websocket.CloseInternalServerErr
)

// String returns the code's name, which is also the close reason text.
func (c CloseCode) String() string {
	switch c {
	case CloseBadRequest:
		return "BAD_REQUEST"
	case CloseUnauthenticated:
		return "UNAUTHENTICATED"
	case CloseForbidden:
		return "FORBIDDEN"
	case CloseGoingAway:
		return "GOING_AWAY"
	case CloseInternal:
		return "INTERNAL"
	}
	return strconv.Itoa(int(c))
}

// message returns the close frame payload for c.
func (c CloseCode) message() []byte {
	return websocket.FormatCloseMessage(int(c), c.String())
}

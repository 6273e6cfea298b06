// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chattoken

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// BearerSubprotocol is the marker a browser client places before its
// credential in Sec-WebSocket-Protocol ("Bearer, <credential>"). The
// gateway echoes it back as the negotiated subprotocol.
const BearerSubprotocol = "Bearer"

// Carriage records where a credential was found.
type Carriage string

const (
	CarriageNone        Carriage = "none"
	CarriageQuery       Carriage = "query"
	CarriageSubprotocol Carriage = "subprotocol"
)

// FromRequest extracts the credential from an upgrade request. The
// token query parameter wins when both carriages are present.
func FromRequest(r *http.Request) (string, Carriage) {
	if credential := strings.TrimSpace(r.URL.Query().Get("token")); credential != "" {
		return credential, CarriageQuery
	}

	protocols := websocket.Subprotocols(r)
	for i, protocol := range protocols {
		if strings.EqualFold(protocol, BearerSubprotocol) && i+1 < len(protocols) {
			if credential := protocols[i+1]; credential != "" {
				return credential, CarriageSubprotocol
			}
		}
	}
	return "", CarriageNone
}

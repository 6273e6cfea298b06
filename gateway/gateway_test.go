// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/chatgate/lib/chattoken"
	"github.com/bureau-foundation/chatgate/lib/revocation"
	"github.com/bureau-foundation/chatgate/lib/testutil"
)

func TestConnectAccepted(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, threadA, token(t, "user-42", "tenant-a"))

	frame := readFrame(t, conn)
	if frame.Type != FrameConnected {
		t.Fatalf("frame type = %q, want connected", frame.Type)
	}
	if frame.ThreadID != threadA {
		t.Errorf("thread_id = %q, want %q", frame.ThreadID, threadA)
	}
	if frame.UserID != "user-42" {
		t.Errorf("user_id = %q, want user-42", frame.UserID)
	}
	if frame.TS != testEpoch.UnixMilli() {
		t.Errorf("ts = %d, want %d", frame.TS, testEpoch.UnixMilli())
	}

	testutil.Eventually(t, 5*time.Second, func() bool { return h.registry.Count() == 1 }, //nolint:realclock test hang prevention
		"connection never registered")
	handles := h.registry.Snapshot(threadA)
	if len(handles) != 1 || handles[0].UserID != "user-42" || handles[0].TenantID != "tenant-a" {
		t.Fatalf("Snapshot = %+v, want one handle for user-42 in tenant-a", handles)
	}
}

func TestConnectUppercaseThreadIDIsCanonicalized(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, strings.ToUpper(threadA), token(t, "user-42", "tenant-a"))

	frame := readFrame(t, conn)
	if frame.Type != FrameConnected || frame.ThreadID != threadA {
		t.Fatalf("frame = %+v, want connected on %s", frame, threadA)
	}
}

func TestConnectSubprotocolCarriage(t *testing.T) {
	h := newHarness(t)
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
		Subprotocols:     []string{chattoken.BearerSubprotocol, token(t, "user-42", "tenant-a")},
	}
	conn, response, err := dialer.Dial(h.chatURL(threadA, ""), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if got := response.Header.Get("Sec-WebSocket-Protocol"); got != chattoken.BearerSubprotocol {
		t.Errorf("Sec-WebSocket-Protocol = %q, want %q", got, chattoken.BearerSubprotocol)
	}
	if frame := readFrame(t, conn); frame.Type != FrameConnected {
		t.Fatalf("frame type = %q, want connected", frame.Type)
	}
}

func TestHandshakeRejections(t *testing.T) {
	expired := func(t *testing.T) string {
		credential, err := chattoken.Mint("HS256", testSecret, chattoken.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-42",
				ExpiresAt: jwt.NewNumericDate(testEpoch.Add(-time.Second)),
			},
			TenantID:         "tenant-a",
		})
		if err != nil {
			t.Fatalf("Mint: %v", err)
		}
		return credential
	}

	tests := []struct {
		name       string
		threadID   string
		credential func(t *testing.T) string
		want       CloseCode
		logged     string
	}{
		{
			name:       "missing credential",
			threadID:   threadA,
			credential: func(*testing.T) string { return "" },
			want:       CloseUnauthenticated,
			logged:     `"reason":"missing"`,
		},
		{
			name:       "malformed credential",
			threadID:   threadA,
			credential: func(*testing.T) string { return "garbage" },
			want:       CloseUnauthenticated,
			logged:     `"reason":"malformed"`,
		},
		{
			name:       "expired credential",
			threadID:   threadA,
			credential: expired,
			want:       CloseUnauthenticated,
			logged:     `"reason":"expired"`,
		},
		{
			name:       "thread in another tenant",
			threadID:   threadForeign,
			credential: func(t *testing.T) string { return token(t, "user-42", "tenant-a") },
			want:       CloseForbidden,
			logged:     `"reason":"not_found"`,
		},
		{
			name:       "not a participant",
			threadID:   threadA,
			credential: func(t *testing.T) string { return token(t, "user-99", "tenant-a") },
			want:       CloseForbidden,
			logged:     `"reason":"not_participant"`,
		},
		{
			name:       "archived thread",
			threadID:   threadArchived,
			credential: func(t *testing.T) string { return token(t, "user-42", "tenant-a") },
			want:       CloseForbidden,
			logged:     `"reason":"archived"`,
		},
		{
			name:       "unknown thread",
			threadID:   "11111111-2222-4333-8444-555555555555",
			credential: func(t *testing.T) string { return token(t, "user-42", "tenant-a") },
			want:       CloseForbidden,
			logged:     `"reason":"not_found"`,
		},
		{
			name:       "malformed thread id",
			threadID:   "general",
			credential: func(t *testing.T) string { return token(t, "user-42", "tenant-a") },
			want:       CloseBadRequest,
			logged:     `"reason":"bad_thread_id"`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			conn := h.dial(t, test.threadID, test.credential(t))
			expectClose(t, conn, test.want)

			logs := h.logs.String()
			if !strings.Contains(logs, `"msg":"handshake rejected"`) || !strings.Contains(logs, test.logged) {
				t.Errorf("logs missing rejection with %s:\n%s", test.logged, logs)
			}
			if h.registry.Count() != 0 {
				t.Errorf("registry Count = %d after rejection, want 0", h.registry.Count())
			}
		})
	}
}

func TestHandshakeRejectsRevokedCredential(t *testing.T) {
	h := newHarness(t)
	credential := token(t, "user-42", "tenant-a")
	h.revocations.Add(revocation.LayerPush, revocation.Entry{ID: chattoken.Fingerprint(credential)})

	conn := h.dial(t, threadA, credential)
	expectClose(t, conn, CloseUnauthenticated)
	if !strings.Contains(h.logs.String(), `"reason":"revoked"`) {
		t.Errorf("logs missing revoked rejection:\n%s", h.logs.String())
	}
}

func TestHandshakeStoreFailureClosesInternal(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Authorizer = rejectingAuthorizer{err: errors.New("database is locked")}
	})
	conn := h.dial(t, threadA, token(t, "user-42", "tenant-a"))
	expectClose(t, conn, CloseInternal)

	logs := h.logs.String()
	if !strings.Contains(logs, "database is locked") || !strings.Contains(logs, `"reason":"store_error"`) {
		t.Errorf("logs missing store failure:\n%s", logs)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, func(cfg *Config) {
		cfg.Authorizer = blockingAuthorizer{started: started}
	})

	type dialResult struct {
		conn *websocket.Conn
		err  error
	}
	address := h.chatURL(threadA, token(t, "user-42", "tenant-a"))
	dialed := make(chan dialResult, 1)
	go func() {
		conn, _, err := websocket.DefaultDialer.Dial(address, nil)
		dialed <- dialResult{conn, err}
	}()

	testutil.RequireClosed(t, started, 5*time.Second, "authorizer never called") //nolint:realclock test hang prevention
	h.clock.Advance(DefaultHandshakeTimeout)

	result := testutil.RequireReceive(t, dialed, 5*time.Second, "dial never completed") //nolint:realclock test hang prevention
	if result.err != nil {
		t.Fatalf("Dial: %v", result.err)
	}
	defer result.conn.Close()
	expectClose(t, result.conn, CloseBadRequest)
	if !strings.Contains(h.logs.String(), `"reason":"handshake_timeout"`) {
		t.Errorf("logs missing handshake_timeout:\n%s", h.logs.String())
	}
}

func TestServeChatRequiresUpgrade(t *testing.T) {
	h := newHarness(t)
	response := getJSON(t, strings.Replace(h.chatURL(threadA, ""), "ws", "http", 1), nil)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("plain GET status = %d, want 400", response.StatusCode)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New with empty config succeeded")
	}
}

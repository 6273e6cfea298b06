// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/chatgate/lib/chattoken"
	"github.com/bureau-foundation/chatgate/lib/clock"
	"github.com/bureau-foundation/chatgate/lib/connregistry"
	"github.com/bureau-foundation/chatgate/lib/revocation"
	"github.com/bureau-foundation/chatgate/lib/threadaccess"
	"github.com/bureau-foundation/chatgate/lib/threadstore"
)

const (
	threadA        = "550e8400-e29b-41d4-a716-446655440000"
	threadForeign  = "6f1c2a8e-3b7d-4c55-9a0e-1d2b3c4d5e6f"
	threadArchived = "0b9d8c7e-6f5a-4b3c-8d2e-1f0a9b8c7d6e"
)

var (
	testEpoch  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testSecret = []byte("0123456789abcdef0123456789abcdef")
)

// lockedBuffer is a log sink safe for concurrent handlers.
type lockedBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

type harness struct {
	clock       *clock.FakeClock
	store       *threadstore.Memory
	revocations *revocation.Set
	registry    *connregistry.Registry
	gateway     *Gateway
	server      *httptest.Server
	logs        *lockedBuffer
}

type harnessOption func(*Config)

func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock:       clock.Fake(testEpoch),
		store:       threadstore.NewMemory(),
		revocations: revocation.NewSet(),
		logs:        &lockedBuffer{},
	}
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := threadstore.Apply(context.Background(), h.store, threadstore.Seed{
		Threads: []threadstore.SeedThread{
			{ID: threadA, Tenant: "tenant-a", Participants: []string{"user-42", "user-7"}},
			{ID: threadForeign, Tenant: "tenant-b", Participants: []string{"user-42"}},
			{ID: threadArchived, Tenant: "tenant-a", Archived: true, Participants: []string{"user-42"}},
		},
	}, testEpoch)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	validator, err := chattoken.NewValidator(chattoken.Config{
		Algorithm:   "HS256",
		Key:         testSecret,
		Revocations: h.revocations,
		Clock:       h.clock,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	h.registry = connregistry.New(connregistry.Config{Clock: h.clock, Logger: logger})
	cfg := Config{
		Authenticator: validator,
		Authorizer:    threadaccess.New(h.store, logger),
		Registry:      h.registry,
		Clock:         h.clock,
		Logger:        logger,
	}
	for _, option := range options {
		option(&cfg)
	}
	h.gateway, err = New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	router, err := NewRouter(RouterConfig{Gateway: h.gateway})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second) //nolint:realclock test hang prevention
		defer cancel()
		if err := h.gateway.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return h
}

// token mints a credential for userID in tenantID valid for five
// minutes of fake time.
func token(t *testing.T, userID, tenantID string) string {
	t.Helper()
	credential, err := chattoken.Mint("HS256", testSecret, chattoken.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(testEpoch.Add(300 * time.Second)),
			ID:        userID + "-jti",
		},
		TenantID: tenantID,
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return credential
}

func (h *harness) chatURL(threadID, credential string) string {
	address := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/chat/" + threadID
	if credential != "" {
		address += "?token=" + url.QueryEscape(credential)
	}
	return address
}

// dial connects with the credential in the query string.
func (h *harness) dial(t *testing.T, threadID, credential string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.chatURL(threadID, credential), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// connect dials and consumes the connected frame.
func (h *harness) connect(t *testing.T, threadID, userID string) *websocket.Conn {
	t.Helper()
	conn := h.dial(t, threadID, token(t, userID, "tenant-a"))
	if frame := readFrame(t, conn); frame.Type != FrameConnected {
		t.Fatalf("first frame type = %q, want connected", frame.Type)
	}
	return conn
}

// clientFrame is the union of every server frame's fields.
type clientFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	UserID    string `json:"user_id"`
	ClientRef string `json:"client_ref"`
	Content   string `json:"content"`
	Code      string `json:"code"`
	Detail    string `json:"detail"`
	TS        int64  `json:"ts"`
}

func readFrame(t *testing.T, conn *websocket.Conn) clientFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:realclock socket deadline
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decoding frame %q: %v", data, err)
	}
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

// expectClose reads until the connection closes and checks the close
// code. Any data frame before the close fails the test.
func expectClose(t *testing.T, conn *websocket.Conn, code CloseCode) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:realclock socket deadline
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("received frame %s, want close %d", data, code)
	}
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("ReadMessage error = %v, want close %d", err, code)
	}
	if closeErr.Code != int(code) {
		t.Errorf("close code = %d (%q), want %d", closeErr.Code, closeErr.Text, code)
	}
	if closeErr.Text != code.String() {
		t.Errorf("close reason = %q, want %q", closeErr.Text, code.String())
	}
}

// rejectingAuthorizer fails every MayJoin with err.
type rejectingAuthorizer struct{ err error }

func (a rejectingAuthorizer) MayJoin(context.Context, string, string, string) (threadaccess.Decision, error) {
	return threadaccess.Decision{}, a.err
}

// blockingAuthorizer waits for cancellation.
type blockingAuthorizer struct{ started chan struct{} }

func (a blockingAuthorizer) MayJoin(ctx context.Context, _, _, _ string) (threadaccess.Decision, error) {
	close(a.started)
	<-ctx.Done()
	return threadaccess.Decision{}, ctx.Err()
}

func getJSON(t *testing.T, address string, into any) *http.Response {
	t.Helper()
	response, err := http.Get(address)
	if err != nil {
		t.Fatalf("GET %s: %v", address, err)
	}
	defer response.Body.Close()
	if into != nil {
		if err := json.NewDecoder(response.Body).Decode(into); err != nil {
			t.Fatalf("decoding %s: %v", address, err)
		}
	}
	return response
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/chatgate/lib/chattoken"
	"github.com/bureau-foundation/chatgate/lib/clock"
	"github.com/bureau-foundation/chatgate/lib/connregistry"
	"github.com/bureau-foundation/chatgate/lib/metrics"
	"github.com/bureau-foundation/chatgate/lib/ratelimit"
	"github.com/bureau-foundation/chatgate/lib/threadaccess"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultIdleTimeout      = 120 * time.Second
	DefaultDrainTimeout     = 2 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultMaxFrameBytes    = 64 << 10

	// closeGrace bounds the wait for the peer's close reply after the
	// gateway sends a close frame.
	closeGrace = time.Second
)

// Authenticator turns a bearer credential into a principal.
// *chattoken.Validator satisfies it.
type Authenticator interface {
	Validate(credential string) (*chattoken.Principal, error)
}

// Authorizer decides thread membership. *threadaccess.Oracle
// satisfies it.
type Authorizer interface {
	MayJoin(ctx context.Context, threadID, tenantID, userID string) (threadaccess.Decision, error)
}

// Config configures a Gateway.
type Config struct {
	Authenticator Authenticator
	Authorizer    Authorizer
	Registry      *connregistry.Registry

	// Handler processes admitted messages. Defaults to a
	// FanoutHandler broadcasting through Registry.
	Handler MessageHandler

	// Limits are the per-connection rate limits. Zero means
	// ratelimit.DefaultLimits().
	Limits ratelimit.Limits

	// HandshakeTimeout bounds authentication and authorization.
	HandshakeTimeout time.Duration

	// IdleTimeout closes a connection that has sent no frame (pings
	// included) for this long.
	IdleTimeout time.Duration

	// DrainTimeout bounds how long queued frames are flushed during
	// shutdown.
	DrainTimeout time.Duration

	// WriteTimeout is the socket deadline for each outbound frame.
	WriteTimeout time.Duration

	// MaxFrameBytes is the largest inbound frame accepted. Larger
	// frames close the connection with 1009.
	MaxFrameBytes int64

	// CheckOrigin is passed to the WebSocket upgrader. Nil applies
	// gorilla/websocket's same-origin check.
	CheckOrigin func(r *http.Request) bool

	Clock   clock.Clock
	Metrics *metrics.Gateway
	Logger  *slog.Logger
}

// Gateway serves chat connections. Create it with New.
type Gateway struct {
	authenticator Authenticator
	authorizer    Authorizer
	registry      *connregistry.Registry
	handler       MessageHandler
	limits        ratelimit.Limits

	handshakeTimeout time.Duration
	idleTimeout      time.Duration
	drainTimeout     time.Duration
	writeTimeout     time.Duration
	maxFrameBytes    int64

	upgrader websocket.Upgrader
	clock    clock.Clock
	metrics  *metrics.Gateway
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	closing  bool
	active   sync.WaitGroup
}

// New validates cfg and returns a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Authenticator == nil {
		return nil, errors.New("gateway: Authenticator is required")
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("gateway: Authorizer is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("gateway: Registry is required")
	}

	limits := cfg.Limits
	if limits == (ratelimit.Limits{}) {
		limits = ratelimit.DefaultLimits()
	}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	handler := cfg.Handler
	if handler == nil {
		handler = NewFanoutHandler(cfg.Registry, clk)
	}

	return &Gateway{
		authenticator:    cfg.Authenticator,
		authorizer:       cfg.Authorizer,
		registry:         cfg.Registry,
		handler:          handler,
		limits:           limits,
		handshakeTimeout: orDefault(cfg.HandshakeTimeout, DefaultHandshakeTimeout),
		idleTimeout:      orDefault(cfg.IdleTimeout, DefaultIdleTimeout),
		drainTimeout:     orDefault(cfg.DrainTimeout, DefaultDrainTimeout),
		writeTimeout:     orDefault(cfg.WriteTimeout, DefaultWriteTimeout),
		maxFrameBytes:    orDefault(cfg.MaxFrameBytes, DefaultMaxFrameBytes),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		clock:    clk,
		metrics:  cfg.Metrics,
		logger:   logger,
		sessions: make(map[*session]struct{}),
	}, nil
}

func orDefault[T time.Duration | int64](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}

// admission is the outcome of the pre-upgrade checks. A zero code
// means accepted.
type admission struct {
	code      CloseCode
	reason    string
	principal *chattoken.Principal
	threadID  string
}

// ServeChat runs the handshake for threadID and, if it is accepted,
// the connection's whole lifetime. It returns when the connection is
// closed and unregistered.
func (g *Gateway) ServeChat(w http.ResponseWriter, r *http.Request, threadID string) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if g.isClosing() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	started := g.clock.Now()
	credential, carriage := chattoken.FromRequest(r)
	result := g.admit(r.Context(), credential, threadID)

	var header http.Header
	if carriage == chattoken.CarriageSubprotocol {
		header = http.Header{}
		header.Set("Sec-WebSocket-Protocol", chattoken.BearerSubprotocol)
	}
	conn, err := g.upgrader.Upgrade(w, r, header)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "thread_id", threadID, "error", err)
		return
	}
	elapsed := g.clock.Now().Sub(started)

	if result.code != 0 {
		g.metrics.Handshake(outcome(result.code), result.reason, elapsed)
		g.logger.Info("handshake rejected",
			"thread_id", threadID,
			"close_code", int(result.code),
			"reason", result.reason,
			"remote_addr", r.RemoteAddr,
		)
		g.closeHandshake(conn, result.code)
		return
	}
	g.metrics.Handshake("accepted", "", elapsed)
	g.serve(conn, result)
}

// admit runs authentication and authorization under the handshake
// deadline.
func (g *Gateway) admit(ctx context.Context, credential, threadID string) admission {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var expired atomic.Bool
	deadline := g.clock.AfterFunc(g.handshakeTimeout, func() {
		expired.Store(true)
		cancel()
	})
	defer deadline.Stop()

	result := g.authorize(ctx, credential, threadID)
	if expired.Load() {
		return admission{code: CloseBadRequest, reason: "handshake_timeout"}
	}
	return result
}

func (g *Gateway) authorize(ctx context.Context, credential, threadID string) admission {
	principal, err := g.authenticator.Validate(credential)
	if err != nil {
		return admission{code: CloseUnauthenticated, reason: string(chattoken.KindOf(err))}
	}

	decision, err := g.authorizer.MayJoin(ctx, threadID, principal.TenantID, principal.UserID)
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Error("thread access check failed",
				"thread_id", threadID,
				"user_id", principal.UserID,
				"error", err,
			)
		}
		return admission{code: CloseInternal, reason: "store_error"}
	}
	if !decision.Allowed {
		code := CloseForbidden
		if decision.Denial == threadaccess.DenialBadThreadID {
			code = CloseBadRequest
		}
		return admission{code: code, reason: string(decision.Denial)}
	}
	return admission{principal: principal, threadID: decision.ThreadID}
}

func outcome(code CloseCode) string {
	switch code {
	case CloseUnauthenticated:
		return "unauthenticated"
	case CloseForbidden:
		return "forbidden"
	case CloseBadRequest:
		return "bad_request"
	}
	return "internal"
}

// closeHandshake sends code on a refused connection and waits briefly
// for the peer's close reply.
func (g *Gateway) closeHandshake(conn *websocket.Conn, code CloseCode) {
	deadline := time.Now().Add(closeGrace)
	if err := conn.WriteControl(websocket.CloseMessage, code.message(), deadline); err == nil {
		_ = conn.SetReadDeadline(deadline)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				break
			}
		}
	}
	conn.Close()
}

// serve registers an accepted connection and runs it to completion.
func (g *Gateway) serve(conn *websocket.Conn, result admission) {
	handle := g.registry.NewHandle(connregistry.Identity{
		ThreadID: result.threadID,
		UserID:   result.principal.UserID,
		TenantID: result.principal.TenantID,
	})
	handle.Enqueue(encodeFrame(ConnectedFrame{
		Type:     FrameConnected,
		ThreadID: result.threadID,
		UserID:   result.principal.UserID,
		TS:       g.clock.Now().UnixMilli(),
	}))

	s := newSession(g, conn, handle, result.principal)
	if !g.track(s) {
		g.closeHandshake(conn, CloseGoingAway)
		return
	}
	defer g.untrack(s)

	g.registry.Register(handle)
	s.run()
}

func (g *Gateway) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

func (g *Gateway) track(s *session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.sessions[s] = struct{}{}
	g.active.Add(1)
	return true
}

func (g *Gateway) untrack(s *session) {
	g.mu.Lock()
	delete(g.sessions, s)
	g.mu.Unlock()
	g.active.Done()
}

// Sessions returns the number of connections past the handshake.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Shutdown stops accepting connections, closes every live connection
// with GOING_AWAY after draining its queue, and waits until all of
// them have unregistered or ctx is done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	sessions := slices.Collect(maps.Keys(g.sessions))
	g.mu.Unlock()

	g.logger.Info("gateway shutting down", "connections", len(sessions))
	for _, s := range sessions {
		s.terminate(reasonShutdown, CloseGoingAway)
	}

	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.logger.Info("gateway stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway: shutdown: %w", ctx.Err())
	}
}

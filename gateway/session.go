// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/chatgate/lib/chattoken"
	"github.com/bureau-foundation/chatgate/lib/clock"
	"github.com/bureau-foundation/chatgate/lib/connregistry"
	"github.com/bureau-foundation/chatgate/lib/netutil"
	"github.com/bureau-foundation/chatgate/lib/ratelimit"
)

// Reasons a connection closes, as logged and counted.
const (
	reasonPeerClosed   = "peer_closed"
	reasonReadFailed   = "read_failed"
	reasonWriteFailed  = "write_failed"
	reasonShutdown     = "shutdown"
	reasonIdleTimeout  = "idle_timeout"
	reasonSlowConsumer = "slow_consumer"
)

// session is one accepted connection. The reader side runs on the
// HTTP handler goroutine; the writer side owns every data write.
type session struct {
	gateway   *Gateway
	conn      *websocket.Conn
	handle    *connregistry.Handle
	principal *chattoken.Principal
	window    *ratelimit.Window

	ctx    context.Context
	cancel context.CancelFunc

	// Set once by terminate, read by the writer after ctx is done.
	terminateOnce sync.Once
	closeCode     CloseCode
	closeReason   string

	readerDone chan struct{}

	// Writer-owned; read by run after the writer exits.
	closeSent bool

	// Reader-owned.
	frames        uint64
	peerCloseCode int
}

func newSession(g *Gateway, conn *websocket.Conn, handle *connregistry.Handle, principal *chattoken.Principal) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		gateway:    g,
		conn:       conn,
		handle:     handle,
		principal:  principal,
		window:     ratelimit.NewWindow(g.limits),
		ctx:        ctx,
		cancel:     cancel,
		readerDone: make(chan struct{}),
	}
}

// terminate moves the session to closing. The first call wins; code
// zero means no close frame is sent (the transport already failed or
// the peer closed).
func (s *session) terminate(reason string, code CloseCode) {
	s.terminateOnce.Do(func() {
		s.closeReason = reason
		s.closeCode = code
		s.cancel()
	})
}

func (s *session) run() {
	g := s.gateway

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	go func() {
		select {
		case <-s.handle.Slow():
			s.terminate(reasonSlowConsumer, CloseGoingAway)
			// Abort a write blocked on the stalled peer. The websocket
			// deadline only applies to the next write, so set it on the
			// socket itself.
			_ = s.conn.NetConn().SetWriteDeadline(time.Now())
		case <-s.ctx.Done():
		}
	}()

	idle := g.clock.AfterFunc(g.idleTimeout, func() {
		s.terminate(reasonIdleTimeout, CloseGoingAway)
	})

	s.readLoop(idle)
	idle.Stop()
	close(s.readerDone)
	<-writerDone

	g.registry.Unregister(s.handle.ThreadID, s.handle.ID())
	lifetime := g.clock.Now().Sub(s.handle.ConnectedAt)

	// Record the close code only if the close frame reached the wire.
	var sentCode CloseCode
	codeLabel := "none"
	if s.closeSent {
		sentCode = s.closeCode
		codeLabel = strconv.Itoa(int(sentCode))
	}
	g.metrics.SessionClosed(codeLabel, s.closeReason, lifetime)
	g.logger.Info("connection closed",
		"thread_id", s.handle.ThreadID,
		"connection_id", s.handle.ID(),
		"user_id", s.principal.UserID,
		"tenant_id", s.principal.TenantID,
		"reason", s.closeReason,
		"close_code", int(sentCode),
		"peer_close_code", s.peerCloseCode,
		"frames", s.frames,
		"dropped", s.handle.Dropped(),
		"duration", lifetime,
	)
}

// readLoop processes inbound frames until the transport fails. Once
// the session is closing, frames are read and discarded so the peer's
// close reply can be seen.
func (s *session) readLoop(idle *clock.Timer) {
	g := s.gateway
	s.conn.SetReadLimit(g.maxFrameBytes)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.peerCloseCode = closeErr.Code
				s.terminate(reasonPeerClosed, 0)
			} else {
				s.transportFailed("read", err)
				s.terminate(reasonReadFailed, 0)
			}
			return
		}
		if s.ctx.Err() != nil {
			continue
		}
		idle.Reset(g.idleTimeout)
		s.handleFrame(data)
	}
}

func (s *session) handleFrame(data []byte) {
	g := s.gateway
	s.frames++
	envelope := decodeInbound(data)

	switch envelope.Type {
	case FramePing, FrameMessage:
		g.metrics.FrameReceived(envelope.Type)
	default:
		g.metrics.FrameReceived("unknown")
	}

	if envelope.Type == FramePing {
		s.send(PongFrame{Type: FramePong, TS: g.clock.Now().UnixMilli()})
		return
	}

	if denial := s.window.Admit(g.clock.Now()); denial != "" {
		code := ErrorRateLimitBurst
		if denial == ratelimit.DenialSustained {
			code = ErrorRateLimitSustained
		}
		g.metrics.RateLimited(string(denial))
		g.logger.Debug("frame rate limited",
			"thread_id", s.handle.ThreadID,
			"connection_id", s.handle.ID(),
			"limit", denial,
		)
		s.send(ErrorFrame{Type: FrameError, Code: code})
		return
	}

	if envelope.Type != FrameMessage {
		s.send(ErrorFrame{Type: FrameError, Code: ErrorUnknownFrame})
		return
	}
	if envelope.BadClientRef {
		s.send(ErrorFrame{Type: FrameError, Code: ErrorInvalidMessage, Detail: "client_ref must be a string"})
		return
	}

	err := g.handler.HandleMessage(s.ctx, Sender{
		ConnectionID: s.handle.ID(),
		ThreadID:     s.handle.ThreadID,
		UserID:       s.principal.UserID,
		TenantID:     s.principal.TenantID,
	}, InboundMessage{
		ClientRef: envelope.ClientRef,
		Content:   envelope.Content,
		Raw:       data,
	})

	var handlerErr *HandlerError
	switch {
	case err == nil:
		s.send(AckFrame{Type: FrameAck, ClientRef: envelope.ClientRef, TS: g.clock.Now().UnixMilli()})
	case errors.As(err, &handlerErr):
		s.send(ErrorFrame{Type: FrameError, Code: handlerErr.Code, Detail: handlerErr.Detail})
	default:
		g.logger.Error("message handler failed",
			"thread_id", s.handle.ThreadID,
			"connection_id", s.handle.ID(),
			"error", err,
		)
		s.send(ErrorFrame{Type: FrameError, Code: ErrorInternal})
	}
}

// send queues a reply. Replies share the send queue with broadcasts so
// the client sees frames in the order they were produced.
func (s *session) send(frame any) {
	s.handle.Enqueue(encodeFrame(frame))
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			s.finish()
			return
		default:
		}

		select {
		case frame := <-s.handle.Queue():
			s.handle.Dequeued()
			if err := s.write(frame, time.Now().Add(s.gateway.writeTimeout)); err != nil {
				if s.ctx.Err() != nil {
					// Closing aborted the write; still try the close frame.
					s.finish()
					return
				}
				s.transportFailed("write", err)
				s.terminate(reasonWriteFailed, 0)
				s.conn.Close()
				return
			}
		case <-s.ctx.Done():
			s.finish()
			return
		}
	}
}

// transportFailed logs a read or write error on a session that was not
// already closing, unless it is an ordinary disconnect.
func (s *session) transportFailed(op string, err error) {
	if s.ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
		return
	}
	s.gateway.logger.Warn("connection "+op+" failed",
		"thread_id", s.handle.ThreadID,
		"connection_id", s.handle.ID(),
		"error", err,
	)
}

func (s *session) write(frame []byte, deadline time.Time) error {
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// finish runs on the writer once the session is closing: drain on
// shutdown, send the close frame, wait for the peer's reply unless the
// peer is the reason we are closing, and close the transport.
func (s *session) finish() {
	if s.closeReason == reasonShutdown {
		s.drain()
	}
	if s.closeCode != 0 {
		deadline := time.Now().Add(closeGrace)
		err := s.conn.WriteControl(websocket.CloseMessage, s.closeCode.message(), deadline)
		s.closeSent = err == nil
		if err == nil && s.closeReason != reasonSlowConsumer {
			_ = s.conn.SetReadDeadline(deadline)
			<-s.readerDone
		}
	}
	s.conn.Close()
}

// drain writes queued frames until the queue is empty or the drain
// deadline passes.
func (s *session) drain() {
	g := s.gateway
	expired := g.clock.After(g.drainTimeout)
	writeDeadline := time.Now().Add(g.drainTimeout)
	for {
		select {
		case <-expired:
			return
		default:
		}
		select {
		case frame := <-s.handle.Queue():
			s.handle.Dequeued()
			if err := s.write(frame, writeDeadline); err != nil {
				return
			}
		default:
			return
		}
	}
}

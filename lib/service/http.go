// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address, such as ":8080". Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// ShutdownTimeout bounds BeforeShutdown and the drain of in-flight
	// requests together. Zero means 10 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers, including the
	// WebSocket upgrade request. Zero means 10 seconds.
	ReadHeaderTimeout time.Duration

	// BeforeShutdown runs once ctx is cancelled, while the listener is
	// still open. http.Server does not track hijacked connections, so
	// the gateway closes its WebSockets here.
	BeforeShutdown func(context.Context) error

	// Logger is required. Errors http.Server would print to the
	// standard logger go to it at warn level.
	Logger *slog.Logger
}

// HTTPServer listens on a TCP address and owns its graceful shutdown.
type HTTPServer struct {
	config HTTPServerConfig
	server *http.Server

	ready chan struct{}
	addr  net.Addr
}

// NewHTTPServer validates config and returns a server that has not yet
// bound its listener.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	switch {
	case config.Address == "":
		panic("service.HTTPServer: Address is required")
	case config.Handler == nil:
		panic("service.HTTPServer: Handler is required")
	case config.Logger == nil:
		panic("service.HTTPServer: Logger is required")
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = defaultReadHeaderTimeout
	}

	return &HTTPServer{
		config: config,
		server: &http.Server{
			Handler: config.Handler,
			// Upgraded connections set their own deadlines, so no
			// ReadTimeout or WriteTimeout.
			ReadHeaderTimeout: config.ReadHeaderTimeout,
			IdleTimeout:       defaultIdleTimeout,
			ErrorLog:          slog.NewLogLogger(config.Logger.Handler(), slog.LevelWarn),
		},
		ready: make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address, valid after Ready is closed. With port 0
// it carries the port the kernel chose.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Serve binds the listener and serves until ctx is cancelled or the
// server fails. On cancellation it runs BeforeShutdown and then drains
// in-flight requests, both within ShutdownTimeout.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}
	s.addr = listener.Addr()
	s.server.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }
	close(s.ready)

	logger := s.config.Logger
	logger.Info("http server listening", "address", s.addr.String())

	failed := make(chan error, 1)
	go func() {
		err := s.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		failed <- err
	}()

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}

	logger.Info("http server shutting down")
	if err := s.shutdown(); err != nil {
		logger.Error("http server shutdown failed", "error", err)
		return err
	}
	logger.Info("http server stopped")
	return nil
}

func (s *HTTPServer) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var hookErr error
	if s.config.BeforeShutdown != nil {
		hookErr = s.config.BeforeShutdown(ctx)
	}
	var serverErr error
	if err := s.server.Shutdown(ctx); err != nil {
		serverErr = fmt.Errorf("http server shutdown: %w", err)
	}
	return errors.Join(hookErr, serverErr)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bureau-foundation/chatgate/lib/version"
)

// DefaultPrefix is the path prefix of the chat and admin routes.
const DefaultPrefix = "v1"

// RouterConfig assembles the HTTP surface.
type RouterConfig struct {
	// Prefix is the first path segment of the chat and admin routes.
	// Defaults to DefaultPrefix.
	Prefix string

	Gateway *Gateway

	// RevocationPush, when set, is mounted at
	// POST /<prefix>/admin/revocations.
	RevocationPush http.Handler

	// Metrics, when set, is mounted at GET /metrics.
	Metrics http.Handler
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status      string        `json:"status"`
	Connections int           `json:"connections"`
	Threads     int           `json:"threads"`
	Build       version.Build `json:"build"`
}

// NewRouter returns the gateway's HTTP handler:
//
//	GET  /<prefix>/chat/{threadID}      WebSocket chat endpoint
//	POST /<prefix>/admin/revocations    signed revocation push
//	GET  /healthz                       liveness and connection counts
//	GET  /metrics                       Prometheus exposition
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("gateway: router requires a Gateway")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := cfg.Gateway.registry.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:      "ok",
			Connections: stats.Connections,
			Threads:     stats.Threads,
			Build:       version.Current(),
		})
	})
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	router.Route("/"+prefix, func(r chi.Router) {
		r.Get("/chat/{threadID}", func(w http.ResponseWriter, r *http.Request) {
			cfg.Gateway.ServeChat(w, r, chi.URLParam(r, "threadID"))
		})
		if cfg.RevocationPush != nil {
			r.Method(http.MethodPost, "/admin/revocations", cfg.RevocationPush)
		}
	})

	return router, nil
}

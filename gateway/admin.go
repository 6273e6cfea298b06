// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/chatgate/lib/clock"
	"github.com/bureau-foundation/chatgate/lib/metrics"
	"github.com/bureau-foundation/chatgate/lib/revocation"
)

const (
	// maxRevocationPush bounds the request body of a revocation push.
	maxRevocationPush = 1 << 20

	// DefaultPushMaxAge is how far a push's issued_at may be from the
	// gateway's clock before it is refused as stale or replayed.
	DefaultPushMaxAge = 5 * time.Minute
)

// RevocationPushConfig configures the admin revocation endpoint.
type RevocationPushConfig struct {
	// PublicKey verifies pushes. Required.
	PublicKey ed25519.PublicKey

	// Set receives accepted entries in its push layer. Required.
	Set *revocation.Set

	// MaxAge defaults to DefaultPushMaxAge.
	MaxAge time.Duration

	Clock   clock.Clock
	Metrics *metrics.Gateway
	Logger  *slog.Logger
}

// revocationPushHandler accepts signed revocation pushes: a CBOR
// revocation.Request followed by an Ed25519 signature.
type revocationPushHandler struct {
	publicKey ed25519.PublicKey
	set       *revocation.Set
	maxAge    time.Duration
	clock     clock.Clock
	metrics   *metrics.Gateway
	logger    *slog.Logger
}

// NewRevocationPushHandler returns the handler for
// POST /<prefix>/admin/revocations.
func NewRevocationPushHandler(cfg RevocationPushConfig) (http.Handler, error) {
	if len(cfg.PublicKey) != ed25519.PublicKeySize {
		return nil, errors.New("gateway: revocation push requires an Ed25519 public key")
	}
	if cfg.Set == nil {
		return nil, errors.New("gateway: revocation push requires a Set")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &revocationPushHandler{
		publicKey: cfg.PublicKey,
		set:       cfg.Set,
		maxAge:    orDefault(cfg.MaxAge, DefaultPushMaxAge),
		clock:     clk,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

func (h *revocationPushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRevocationPush))
	if err != nil {
		h.reject(w, "too_large", http.StatusRequestEntityTooLarge, err)
		return
	}

	request, err := revocation.VerifyRequest(h.publicKey, body)
	switch {
	case errors.Is(err, revocation.ErrRequestBadSig):
		h.reject(w, "bad_signature", http.StatusForbidden, err)
		return
	case err != nil:
		h.reject(w, "malformed", http.StatusBadRequest, err)
		return
	}

	issuedAt := time.Unix(request.IssuedAt, 0)
	if age := h.clock.Now().Sub(issuedAt); age > h.maxAge || age < -h.maxAge {
		h.reject(w, "stale", http.StatusBadRequest, errors.New("issued_at outside the accepted window"))
		return
	}

	entries := request.SetEntries()
	h.set.Add(revocation.LayerPush, entries...)
	h.metrics.RevocationPush("accepted")
	h.logger.Info("revocations pushed", "entries", len(entries), "remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"accepted": len(entries)})
}

func (h *revocationPushHandler) reject(w http.ResponseWriter, result string, status int, err error) {
	h.metrics.RevocationPush(result)
	h.logger.Warn("revocation push rejected", "result", result, "error", err)
	http.Error(w, result, status)
}

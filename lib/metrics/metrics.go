// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines chatgate's Prometheus collectors.
//
// Collectors are created against an injected prometheus.Registerer so
// that tests can use a private registry. A nil *Gateway is valid and
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bureau-foundation/chatgate/lib/connregistry"
)

const namespace = "chatgate"

// Gateway holds the collectors updated by the gateway.
type Gateway struct {
	handshakes        *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	framesReceived    *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	closes            *prometheus.CounterVec
	sessionDuration   prometheus.Histogram
	revocationPushes  *prometheus.CounterVec
}

// NewGateway registers the gateway collectors on registerer.
func NewGateway(registerer prometheus.Registerer) *Gateway {
	factory := promauto.With(registerer)
	return &Gateway{
		handshakes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshakes_total",
				Help:      "Handshakes by outcome and rejection reason.",
			},
			[]string{"outcome", "reason"},
		),
		handshakeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handshake_duration_seconds",
				Help:      "Time from request to accept or reject.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
		),
		framesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_received_total",
				Help:      "Inbound frames by type.",
			},
			[]string{"type"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Inbound frames refused by the rate limiter.",
			},
			[]string{"limit"},
		),
		closes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_closed_total",
				Help:      "Closed connections by close code and reason.",
			},
			[]string{"code", "reason"},
		),
		sessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Lifetime of accepted connections.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		revocationPushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revocation_pushes_total",
				Help:      "Signed revocation pushes by result.",
			},
			[]string{"result"},
		),
	}
}

// Handshake records a finished handshake. reason is empty for
// accepted connections.
func (g *Gateway) Handshake(outcome, reason string, elapsed time.Duration) {
	if g == nil {
		return
	}
	g.handshakes.WithLabelValues(outcome, reason).Inc()
	g.handshakeDuration.Observe(elapsed.Seconds())
}

// FrameReceived records one inbound frame.
func (g *Gateway) FrameReceived(frameType string) {
	if g == nil {
		return
	}
	g.framesReceived.WithLabelValues(frameType).Inc()
}

// RateLimited records a refused frame.
func (g *Gateway) RateLimited(limit string) {
	if g == nil {
		return
	}
	g.rateLimited.WithLabelValues(limit).Inc()
}

// SessionClosed records the end of an accepted connection.
func (g *Gateway) SessionClosed(code, reason string, lifetime time.Duration) {
	if g == nil {
		return
	}
	g.closes.WithLabelValues(code, reason).Inc()
	g.sessionDuration.Observe(lifetime.Seconds())
}

// RevocationPush records a push to the admin endpoint.
func (g *Gateway) RevocationPush(result string) {
	if g == nil {
		return
	}
	g.revocationPushes.WithLabelValues(result).Inc()
}

// RegisterRegistry exposes the connection registry's counters as
// collectors evaluated at scrape time.
func RegisterRegistry(registerer prometheus.Registerer, registry *connregistry.Registry) {
	factory := promauto.With(registerer)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Registered connections.",
		},
		func() float64 { return float64(registry.Stats().Connections) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads",
			Help:      "Threads with at least one connection.",
		},
		func() float64 { return float64(registry.Stats().Threads) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumer_drops_total",
			Help:      "Frames dropped because a recipient's queue was full.",
		},
		func() float64 { return float64(registry.Stats().SlowConsumerDrops) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumer_disconnects_total",
			Help:      "Connections closed after their queue stayed full past the grace period.",
		},
		func() float64 { return float64(registry.Stats().SlowConsumerDisconnects) },
	)
}

// RegisterRevocations exposes the size of the revocation set.
func RegisterRevocations(registerer prometheus.Registerer, size func() int) {
	promauto.With(registerer).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "revoked_identifiers",
			Help:      "Identifiers in the revocation set.",
		},
		func() float64 { return float64(size()) },
	)
}

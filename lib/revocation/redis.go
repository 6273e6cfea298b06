// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/chatgate/lib/clock"
)

// SetMembersReader is the slice of the go-redis client RedisSource
// uses. *redis.Client and *redis.ClusterClient satisfy it.
type SetMembersReader interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// RedisSourceConfig configures a RedisSource.
type RedisSourceConfig struct {
	Client SetMembersReader

	// Key is the Redis set holding revoked identifiers.
	Key string

	// Interval between polls. Defaults to 15 seconds.
	Interval time.Duration

	Set    *Set
	Clock  clock.Clock
	Logger *slog.Logger
}

// RedisSource mirrors a Redis set into the LayerRedis layer. Entries
// from Redis carry no expiry; removing them from the Redis set removes
// them from the layer on the next poll.
type RedisSource struct {
	client   SetMembersReader
	key      string
	interval time.Duration
	set      *Set
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRedisSource validates cfg and returns a RedisSource.
func NewRedisSource(cfg RedisSourceConfig) (*RedisSource, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("revocation: redis Client is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("revocation: redis Key is required")
	}
	if cfg.Set == nil {
		return nil, fmt.Errorf("revocation: Set is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisSource{
		client:   cfg.Client,
		key:      cfg.Key,
		interval: interval,
		set:      cfg.Set,
		clock:    clk,
		logger:   logger,
	}, nil
}

// Refresh reads the Redis set once and replaces the layer. On error
// the previous layer is kept.
func (r *RedisSource) Refresh(ctx context.Context) error {
	members, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return fmt.Errorf("revocation: SMEMBERS %s: %w", r.key, err)
	}

	entries := make([]Entry, 0, len(members))
	for _, member := range members {
		entries = append(entries, Entry{ID: member})
	}
	r.set.Replace(LayerRedis, entries)
	return nil
}

// Run polls until ctx is cancelled. Poll failures are logged and
// retried on the next tick.
func (r *RedisSource) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("revocation redis refresh failed", "key", r.key, "error", err)
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("revocation redis refresh failed", "key", r.key, "error", err)
			}
		}
	}
}

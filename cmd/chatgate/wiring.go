// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/chatgate/lib/chattoken"
	"github.com/bureau-foundation/chatgate/lib/clock"
	"github.com/bureau-foundation/chatgate/lib/config"
	"github.com/bureau-foundation/chatgate/lib/revocation"
	"github.com/bureau-foundation/chatgate/lib/secret"
	"github.com/bureau-foundation/chatgate/lib/threadstore"
)

// openStore opens the configured thread store and applies the seed
// file, if any.
func openStore(ctx context.Context, cfg config.StoreConfig, clk clock.Clock, logger *slog.Logger) (threadstore.Store, error) {
	var store threadstore.Store
	switch cfg.Driver {
	case config.DriverSQLite:
		sqliteStore, err := threadstore.OpenSQLite(threadstore.SQLiteConfig{
			Path:     cfg.SQLitePath,
			PoolSize: cfg.PoolSize,
			Logger:   logger.With("component", "threadstore"),
		})
		if err != nil {
			return nil, err
		}
		store = sqliteStore
	case config.DriverPostgres:
		postgresStore, err := threadstore.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgresStore.EnsureSchema(ctx); err != nil {
			postgresStore.Close()
			return nil, err
		}
		store = postgresStore
	case config.DriverMemory:
		store = threadstore.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if cfg.SeedFile != "" {
		count, err := threadstore.LoadSeed(ctx, cfg.SeedFile, store, clk.Now())
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("thread store seeded", "path", cfg.SeedFile, "threads", count)
	}
	return store, nil
}

// startRevocationSources loads the revocation file and starts the
// watchers, the Redis poller, and the expiry sweep on workers.
func startRevocationSources(ctx context.Context, workers *sync.WaitGroup, cfg config.RevocationConfig, set *revocation.Set, clk clock.Clock, logger *slog.Logger) error {
	logger = logger.With("component", "revocation")

	if cfg.File != "" {
		source := revocation.NewFileSource(cfg.File, set, logger)
		if err := source.Load(); err != nil {
			return fmt.Errorf("loading revocation file: %w", err)
		}
		workers.Go(func() {
			if err := source.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("revocation file watch stopped", "path", cfg.File, "error", err)
			}
		})
	}

	if cfg.RedisURL != "" {
		options, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("revocation.redis_url: %w", err)
		}
		client := redis.NewClient(options)
		source, err := revocation.NewRedisSource(revocation.RedisSourceConfig{
			Client:   client,
			Key:      cfg.RedisKey,
			Interval: cfg.PollInterval,
			Set:      set,
			Clock:    clk,
			Logger:   logger,
		})
		if err != nil {
			client.Close()
			return err
		}
		workers.Go(func() {
			defer client.Close()
			source.Run(ctx)
		})
	}

	workers.Go(func() {
		set.RunCleanup(ctx, clk, cfg.CleanupInterval, logger)
	})
	return nil
}

// loadVerificationKey reads the token key from token.secret or
// token.key_file. HMAC secrets are held in locked memory; release frees
// it and must run after the validator is no longer used.
func loadVerificationKey(cfg config.TokenConfig) (key any, release func(), err error) {
	release = func() {}
	if !strings.HasPrefix(cfg.Algorithm, "HS") {
		material, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, release, fmt.Errorf("reading token.key_file: %w", err)
		}
		key, err = chattoken.ParseVerificationKey(cfg.Algorithm, material)
		return key, release, err
	}

	var buffer *secret.Buffer
	if cfg.KeyFile != "" {
		buffer, err = secret.ReadFile(cfg.KeyFile)
	} else {
		buffer, err = secret.NewFromBytes([]byte(cfg.Secret))
	}
	if err != nil {
		return nil, release, fmt.Errorf("loading token secret: %w", err)
	}
	key, err = chattoken.ParseVerificationKey(cfg.Algorithm, buffer.Bytes())
	if err != nil {
		buffer.Close()
		return nil, release, err
	}
	return key, func() { buffer.Close() }, nil
}

// loadPushKey reads the PEM Ed25519 key that verifies revocation
// pushes.
func loadPushKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading revocation.push_public_key_file: %w", err)
	}
	key, err := chattoken.ParseVerificationKey("EdDSA", data)
	if err != nil {
		return nil, fmt.Errorf("revocation.push_public_key_file: %w", err)
	}
	publicKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("revocation.push_public_key_file: got %T, want an Ed25519 key", key)
	}
	return publicKey, nil
}

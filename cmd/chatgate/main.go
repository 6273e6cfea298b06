// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/chatgate/gateway"
	"github.com/bureau-foundation/chatgate/lib/chattoken"
	"github.com/bureau-foundation/chatgate/lib/clock"
	"github.com/bureau-foundation/chatgate/lib/config"
	"github.com/bureau-foundation/chatgate/lib/connregistry"
	"github.com/bureau-foundation/chatgate/lib/metrics"
	"github.com/bureau-foundation/chatgate/lib/process"
	"github.com/bureau-foundation/chatgate/lib/ratelimit"
	"github.com/bureau-foundation/chatgate/lib/revocation"
	"github.com/bureau-foundation/chatgate/lib/service"
	"github.com/bureau-foundation/chatgate/lib/threadaccess"
	"github.com/bureau-foundation/chatgate/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	var (
		configPath  string
		checkOnly   bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("chatgate", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to chatgate.yaml (default: $"+config.EnvVar+")")
	flagSet.BoolVar(&checkOnly, "check", false, "validate the configuration and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.Usage(err)
	}

	if showVersion {
		fmt.Printf("chatgate %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if checkOnly {
		fmt.Println("configuration ok")
		return nil
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, clock.Real(), logger)
}

// loadConfig reads the file named by --config, or by CHATGATE_CONFIG
// when the flag is absent, and validates it.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, process.Usage(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, process.Usage(fmt.Errorf("invalid configuration:\n%w", err))
	}
	return cfg, nil
}

// serve assembles the gateway from cfg and runs it until ctx is done.
func serve(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) error {
	logger.Info("chatgate starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"store", cfg.Store.Driver,
	)

	store, err := openStore(ctx, cfg.Store, clk, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Background workers stop when serve returns.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		cancelWorkers()
		workers.Wait()
	}()

	revocations := revocation.NewSet()
	if err := startRevocationSources(workerCtx, &workers, cfg.Revocation, revocations, clk, logger); err != nil {
		return err
	}

	key, releaseKey, err := loadVerificationKey(cfg.Token)
	if err != nil {
		return err
	}
	defer releaseKey()
	validator, err := chattoken.NewValidator(chattoken.Config{
		Algorithm:   cfg.Token.Algorithm,
		Key:         key,
		Issuer:      cfg.Token.Issuer,
		Audience:    cfg.Token.Audience,
		Skew:        cfg.Token.Skew,
		Revocations: revocations,
		Clock:       clk,
		Logger:      logger.With("component", "chattoken"),
	})
	if err != nil {
		return err
	}

	registry := connregistry.New(connregistry.Config{
		QueueDepth:        cfg.QueueDepth,
		SlowConsumerGrace: cfg.Timeouts.SlowConsumerGrace,
		Clock:             clk,
		Logger:            logger.With("component", "connregistry"),
	})

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gatewayMetrics := metrics.NewGateway(promRegistry)
	metrics.RegisterRegistry(promRegistry, registry)
	metrics.RegisterRevocations(promRegistry, revocations.Len)

	chat, err := gateway.New(gateway.Config{
		Authenticator: validator,
		Authorizer:    threadaccess.New(store, logger.With("component", "threadaccess")),
		Registry:      registry,
		Limits: ratelimit.Limits{
			BurstMax:  cfg.Limits.BurstMax,
			MinuteMax: cfg.Limits.MinuteMax,
		},
		HandshakeTimeout: cfg.Timeouts.Handshake,
		IdleTimeout:      cfg.Timeouts.Idle,
		DrainTimeout:     cfg.Timeouts.Drain,
		WriteTimeout:     cfg.Timeouts.Write,
		MaxFrameBytes:    cfg.MaxFrameBytes,
		CheckOrigin:      checkOrigin(cfg),
		Clock:            clk,
		Metrics:          gatewayMetrics,
		Logger:           logger.With("component", "gateway"),
	})
	if err != nil {
		return err
	}

	var push http.Handler
	if cfg.Revocation.PushPublicKeyFile != "" {
		publicKey, err := loadPushKey(cfg.Revocation.PushPublicKeyFile)
		if err != nil {
			return err
		}
		push, err = gateway.NewRevocationPushHandler(gateway.RevocationPushConfig{
			PublicKey: publicKey,
			Set:       revocations,
			Clock:     clk,
			Metrics:   gatewayMetrics,
			Logger:    logger.With("component", "revocation-push"),
		})
		if err != nil {
			return err
		}
	}

	router, err := gateway.NewRouter(gateway.RouterConfig{
		Prefix:         cfg.Listen.Prefix,
		Gateway:        chat,
		RevocationPush: push,
		Metrics:        promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	})
	if err != nil {
		return err
	}

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:           cfg.Listen.Address,
		Handler:           router,
		ShutdownTimeout:   cfg.Listen.ShutdownTimeout,
		ReadHeaderTimeout: cfg.Timeouts.Handshake,
		BeforeShutdown:    chat.Shutdown,
		Logger:            logger,
	})
	return server.Serve(ctx)
}

// checkOrigin returns nil (gorilla's same-origin check) unless the
// config lists allowed origins. Requests without an Origin header are
// not from browsers and are always allowed.
func checkOrigin(cfg *config.Config) func(*http.Request) bool {
	if len(cfg.Listen.AllowedOrigins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || cfg.OriginAllowed(origin)
	}
}

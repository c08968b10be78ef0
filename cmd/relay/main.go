// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

// Command relay runs the development relay: the websocket event server and
// REST API that the realtime client core talks to.
//
// Configuration comes from config.yaml and the environment (see
// internal/config). The relay refuses to start without a JWT_SECRET of at
// least 32 characters.
//
//	export JWT_SECRET=$(openssl rand -hex 32)
//	export RELAY_DEV_TOKENS=true
//	export RELAY_STORE=badger RELAY_STORE_PATH=./data
//	./relay
//
// SIGINT or SIGTERM stops the supervisor tree; the HTTP server drains for
// RELAY_SHUTDOWN_TIMEOUT and the hub closes its clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/spacezone-realtime/internal/config"
	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/relay"
	"github.com/tomtom215/spacezone-realtime/internal/supervisor"
	"github.com/tomtom215/spacezone-realtime/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Relay stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.ValidateRelay(); err != nil {
		return fmt.Errorf("relay configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("addr", cfg.Relay.Addr()).
		Str("store", cfg.Relay.Store).
		Bool("dev_tokens", cfg.Relay.DevTokens).
		Msg("Starting relay")

	store, err := openStore(cfg.Relay)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing relay store")
		}
	}()

	auth, err := relay.NewAuthenticator(cfg.Relay.JWTSecret)
	if err != nil {
		return err
	}
	hub := relay.NewHub(store)
	defer hub.Close()

	httpServer := &http.Server{
		Addr:              cfg.Relay.Addr(),
		Handler:           relay.NewServer(relay.ServerConfigFrom(cfg.Relay), auth, hub, store),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Relay.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	tree.AddMessagingService(services.NewRelayHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Relay.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", cfg.Relay.Addr()).Msg("Relay listening")
	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logging.Info().Msg("Relay shut down")
	return nil
}

func openStore(cfg config.RelayConfig) (relay.Store, error) {
	switch cfg.Store {
	case config.StoreBadger:
		if err := os.MkdirAll(cfg.StorePath, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		s, err := relay.OpenBadgerStore(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		logging.Info().Str("path", cfg.StorePath).Msg("Relay store opened (BadgerDB)")
		return s, nil
	default:
		logging.Info().Msg("Relay store is in memory; state is lost on restart")
		return relay.NewMemoryStore(), nil
	}
}

// Package main is the panel API server: the operator API, the
// daemon-facing remote API and the health endpoint on one listener.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dcm2610/StellarStack-sub002/internal/api"
	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/liveness"
	"github.com/dcm2610/StellarStack-sub002/internal/provision"
	"github.com/dcm2610/StellarStack-sub002/internal/relay"
	"github.com/dcm2610/StellarStack-sub002/internal/secrets"
	"github.com/dcm2610/StellarStack-sub002/internal/shutdown"
	pgstore "github.com/dcm2610/StellarStack-sub002/internal/store/postgres"
	"github.com/dcm2610/StellarStack-sub002/pkg/config"
	"github.com/dcm2610/StellarStack-sub002/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("loading configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	store, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), logger.Component(log, "store"))
	if err != nil {
		log.Error("connecting to database", "error", err)
		os.Exit(1)
	}

	box, err := secrets.NewBox(&secrets.Config{
		AgePublicKey:  cfg.AgePublicKey,
		AgePrivateKey: cfg.AgePrivateKey,
	}, logger.Component(log, "secrets"))
	if err != nil {
		log.Error("building credential box", "error", err)
		os.Exit(1)
	}

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, box, logger.Component(log, "auth"))

	relayClient := relay.NewClient(&relay.Config{
		RequestTimeout: cfg.RelayTimeout,
	}, store.Nodes(), box, logger.Component(log, "relay"))

	coordinator := provision.NewCoordinator(store, relayClient, logger.Component(log, "provision"))
	tracker := liveness.NewTracker(store.Nodes(), logger.Component(log, "liveness"))

	server := api.NewServer(cfg, store, authService, box, relayClient, coordinator, tracker, logger.Component(log, "api"))

	// Teardown order is the reverse of registration: drain the listener
	// first, close the database pool last.
	lifecycle := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log),
	)
	lifecycle.Register(shutdown.NewCloserComponent("store", store))
	lifecycle.Register(shutdown.NewFuncComponent("api", server.Shutdown))

	go func() {
		if err := server.Start(context.Background()); err != nil {
			log.Error("api server failed", "error", err)
			lifecycle.Shutdown()
		}
	}()

	go lifecycle.WaitForSignal()
	lifecycle.Wait()

	log.Info("panel stopped")
	os.Exit(lifecycle.ExitCode())
}

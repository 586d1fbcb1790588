// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Oertchan-rendezvous serves the rendezvous API that oertchan peers
// use to exchange offers and answers.
//
// The listen address comes from the config file (rendezvous.listen),
// which defaults to ":${PORT:-8080}" so the server runs unchanged on
// platforms that assign the port through the environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/oertchan/oertchan/lib/config"
	"github.com/oertchan/oertchan/lib/logging"
	"github.com/oertchan/oertchan/lib/metrics"
	"github.com/oertchan/oertchan/lib/version"
	"github.com/oertchan/oertchan/rendezvous"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen string
	var showVersion bool

	flagSet := pflag.NewFlagSet("oertchan-rendezvous", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVar(&listen, "listen", "", "listen address (overrides rendezvous.listen)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("oertchan-rendezvous")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Rendezvous.Listen = listen
	}

	logger := logging.New(os.Stderr, cfg.Log)
	slog.SetDefault(logger)

	server := rendezvous.NewServer(rendezvous.ServerConfig{
		OfferTimeout:  cfg.Rendezvous.OfferTimeout,
		RatePerSecond: cfg.Rendezvous.RatePerSecond,
		Burst:         cfg.Rendezvous.Burst,
		MaxBodyBytes:  cfg.Rendezvous.MaxBodyBytes,
		Metrics:       metrics.New(),
		Logger:        logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Rendezvous.Listen,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Info("starting oertchan-rendezvous",
		"version", version.Info(),
		"listen", cfg.Rendezvous.Listen,
		"offer_timeout", cfg.Rendezvous.OfferTimeout,
	)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}
	logger.Info("received shutdown signal")

	// Pending offers are long-polls; waiting out one offer timeout lets
	// them finish with a 408 the clients already retry on.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Rendezvous.OfferTimeout+5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.ExpandVariables()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Copyright 2026 The Oertchan Authors
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
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/oertchan/oertchan/identity"
	"github.com/oertchan/oertchan/lib/config"
	"github.com/oertchan/oertchan/lib/logging"
	"github.com/oertchan/oertchan/lib/metrics"
	"github.com/oertchan/oertchan/lib/version"
	"github.com/oertchan/oertchan/peering"
	"github.com/oertchan/oertchan/rendezvous"
	"github.com/oertchan/oertchan/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags are the command-line overrides applied on top of the config
// file.
type flags struct {
	configPath    string
	name          string
	rendezvousURL string
	logLevel      string
	logFormat     string
	metricsListen string
	showVersion   bool
}

func parseFlags(args []string) (*flags, *pflag.FlagSet, error) {
	var parsed flags
	flagSet := pflag.NewFlagSet("oertchan-peer", pflag.ContinueOnError)
	flagSet.StringVar(&parsed.configPath, "config", "", "path to config file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVarP(&parsed.name, "name", "n", "", "display name announced to peers")
	flagSet.StringVar(&parsed.rendezvousURL, "rendezvous", "", "rendezvous server URL")
	flagSet.StringVar(&parsed.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.StringVar(&parsed.logFormat, "log-format", "", "log format (auto, text, json)")
	flagSet.StringVar(&parsed.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information and exit")
	err := flagSet.Parse(args)
	return &parsed, flagSet, err
}

// loadConfig reads the config file named by --config or the
// environment, falling back to the defaults, and applies the flags.
func loadConfig(parsed *flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case parsed.configPath != "":
		cfg, err = config.LoadFile(parsed.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.ExpandVariables()
	}
	if err != nil {
		return nil, err
	}

	if parsed.name != "" {
		cfg.Peer.DisplayName = parsed.name
	}
	if parsed.rendezvousURL != "" {
		cfg.Peer.RendezvousURL = parsed.rendezvousURL
	}
	if parsed.logLevel != "" {
		cfg.Log.Level = parsed.logLevel
	}
	if parsed.logFormat != "" {
		cfg.Log.Format = parsed.logFormat
	}
	if parsed.metricsListen != "" {
		cfg.Metrics.Listen = parsed.metricsListen
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run() error {
	parsed, flagSet, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if parsed.showVersion {
		version.Print("oertchan-peer")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(parsed)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Log)
	slog.SetDefault(logger)

	local, err := identity.Create(cfg.Peer.DisplayName)
	if err != nil {
		return fmt.Errorf("creating identity: %w", err)
	}
	logger.Info("starting oertchan-peer",
		"version", version.Info(),
		"name", local.DisplayName(),
		"fingerprint", local.Fingerprint(),
		"rendezvous", cfg.Peer.RendezvousURL,
	)

	collectors := metrics.New()
	client, err := rendezvous.NewClient(rendezvous.ClientConfig{
		BaseURL: cfg.Peer.RendezvousURL,
		// No overall timeout: offers are long-polls bounded by the server.
		HTTPClient: &http.Client{},
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	negotiator := transport.NewWebRTCNegotiator(transport.WebRTCConfig{
		ICE:           transport.ICEConfigFromConfig(cfg.ICE),
		GatherTimeout: cfg.Peer.GatherTimeout,
		Logger:        logger,
	})

	console := newConsole(os.Stdout)
	manager, err := peering.NewManager(peering.Config{
		Identity:       local,
		Handler:        &app{identity: local, console: console, logger: logger},
		Negotiator:     negotiator,
		Rendezvous:     client,
		OfferInterval:  cfg.Peer.OfferInterval,
		AcceptInterval: cfg.Peer.AcceptInterval,
		ConnectTimeout: cfg.Peer.ConnectTimeout,
		Metrics:        collectors,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		metricsServer := &http.Server{Addr: cfg.Metrics.Listen, Handler: collectors.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsServer.Close()
		logger.Info("serving metrics", "listen", cfg.Metrics.Listen)
	}

	console.Notice("you are %s (%s)", local.DisplayName(), local.Fingerprint())
	console.Notice("type to chat, /peers to list channels")

	discoveryDone := make(chan struct{})
	go func() {
		manager.Run(ctx)
		close(discoveryDone)
	}()
	go func() {
		if err := chat(ctx, os.Stdin, manager, console); err != nil {
			logger.Warn("reading stdin failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("received shutdown signal")
	<-discoveryDone

	for _, channel := range manager.Channels() {
		channel.Transport().Close()
	}
	logger.Info("shutdown complete")
	return nil
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file for [Load].
const EnvironmentVariable = "OERTCHAN_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the root configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Peer       PeerConfig       `yaml:"peer"`
	ICE        ICEConfig        `yaml:"ice"`
	Rendezvous RendezvousConfig `yaml:"rendezvous"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the per-environment sections. Only non-zero fields
// replace base values.
type Overrides struct {
	Peer       *PeerConfig       `yaml:"peer,omitempty"`
	ICE        *ICEConfig        `yaml:"ice,omitempty"`
	Rendezvous *RendezvousConfig `yaml:"rendezvous,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
}

// PeerConfig configures a participating peer.
type PeerConfig struct {
	// DisplayName is the name announced in the "initial" handshake
	// message. It is cosmetic; peers are identified by fingerprint.
	DisplayName string `yaml:"display_name"`

	// RendezvousURL is the base URL of the rendezvous service.
	RendezvousURL string `yaml:"rendezvous_url"`

	// OfferInterval and AcceptInterval are the pauses between two
	// iterations of the offer and accept loops.
	OfferInterval  time.Duration `yaml:"offer_interval"`
	AcceptInterval time.Duration `yaml:"accept_interval"`

	// GatherTimeout bounds ICE candidate gathering for one session.
	GatherTimeout time.Duration `yaml:"gather_timeout"`

	// ConnectTimeout bounds the wait for a negotiated data channel to
	// open.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ICEConfig lists STUN/TURN servers.
type ICEConfig struct {
	Servers []ICEServer `yaml:"servers"`
}

// ICEServer is one STUN or TURN entry.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// RendezvousConfig configures the rendezvous service.
type RendezvousConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// OfferTimeout is how long POST /offer waits for an answer before
	// replying 408 so the offerer retries.
	OfferTimeout time.Duration `yaml:"offer_timeout"`

	// RatePerSecond and Burst configure the per-client token bucket.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`

	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// LogConfig configures slog output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is one of auto, text, json. auto picks text on a terminal.
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint of the peer. The
// rendezvous service always serves /metrics on its own listener.
type MetricsConfig struct {
	// Listen is the address for /metrics; empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns the base configuration that a file is merged into.
func Default() *Config {
	return &Config{
		Environment: Development,
		Peer: PeerConfig{
			DisplayName:    "server",
			RendezvousURL:  "https://oertchan.herokuapp.com",
			OfferInterval:  5 * time.Second,
			AcceptInterval: 5 * time.Second,
			GatherTimeout:  15 * time.Second,
			ConnectTimeout: 30 * time.Second,
		},
		ICE: ICEConfig{
			Servers: []ICEServer{
				{URLs: []string{"stun:openrelay.metered.ca:80"}},
			},
		},
		Rendezvous: RendezvousConfig{
			Listen:        ":${PORT:-8080}",
			OfferTimeout:  15 * time.Second,
			RatePerSecond: 5,
			Burst:         20,
			MaxBodyBytes:  1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file named by OERTCHAN_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your oertchan.yaml, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of Default, applies
// environment overrides and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.ExpandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Log: &LogConfig{Format: "json"}}
		}
	}
	if overrides == nil {
		return
	}

	if o := overrides.Peer; o != nil {
		if o.DisplayName != "" {
			c.Peer.DisplayName = o.DisplayName
		}
		if o.RendezvousURL != "" {
			c.Peer.RendezvousURL = o.RendezvousURL
		}
		if o.OfferInterval != 0 {
			c.Peer.OfferInterval = o.OfferInterval
		}
		if o.AcceptInterval != 0 {
			c.Peer.AcceptInterval = o.AcceptInterval
		}
		if o.GatherTimeout != 0 {
			c.Peer.GatherTimeout = o.GatherTimeout
		}
		if o.ConnectTimeout != 0 {
			c.Peer.ConnectTimeout = o.ConnectTimeout
		}
	}

	if o := overrides.ICE; o != nil && len(o.Servers) > 0 {
		c.ICE.Servers = o.Servers
	}

	if o := overrides.Rendezvous; o != nil {
		if o.Listen != "" {
			c.Rendezvous.Listen = o.Listen
		}
		if o.OfferTimeout != 0 {
			c.Rendezvous.OfferTimeout = o.OfferTimeout
		}
		if o.RatePerSecond != 0 {
			c.Rendezvous.RatePerSecond = o.RatePerSecond
		}
		if o.Burst != 0 {
			c.Rendezvous.Burst = o.Burst
		}
		if o.MaxBodyBytes != 0 {
			c.Rendezvous.MaxBodyBytes = o.MaxBodyBytes
		}
	}

	if o := overrides.Log; o != nil {
		if o.Level != "" {
			c.Log.Level = o.Level
		}
		if o.Format != "" {
			c.Log.Format = o.Format
		}
	}
}

// ExpandVariables expands ${VAR} and ${VAR:-default} references in the
// address and credential fields. LoadFile calls it; callers starting
// from Default call it themselves.
func (c *Config) ExpandVariables() {
	c.Peer.RendezvousURL = expandVars(c.Peer.RendezvousURL)
	c.Rendezvous.Listen = expandVars(c.Rendezvous.Listen)
	c.Metrics.Listen = expandVars(c.Metrics.Listen)
	for i := range c.ICE.Servers {
		c.ICE.Servers[i].Credential = expandVars(c.ICE.Servers[i].Credential)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if strings.TrimSpace(c.Peer.DisplayName) == "" {
		errs = append(errs, errors.New("peer.display_name is required"))
	}
	if parsed, err := url.Parse(c.Peer.RendezvousURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("peer.rendezvous_url must be an absolute http(s) URL, got %q", c.Peer.RendezvousURL))
	}
	for name, value := range map[string]time.Duration{
		"peer.offer_interval":      c.Peer.OfferInterval,
		"peer.accept_interval":     c.Peer.AcceptInterval,
		"peer.gather_timeout":      c.Peer.GatherTimeout,
		"peer.connect_timeout":     c.Peer.ConnectTimeout,
		"rendezvous.offer_timeout": c.Rendezvous.OfferTimeout,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	for i, server := range c.ICE.Servers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice.servers[%d].urls is empty", i))
		}
	}

	if c.Rendezvous.RatePerSecond <= 0 {
		errs = append(errs, errors.New("rendezvous.rate_per_second must be positive"))
	}
	if c.Rendezvous.Burst < 1 {
		errs = append(errs, errors.New("rendezvous.burst must be at least 1"))
	}
	if c.Rendezvous.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("rendezvous.max_body_bytes must be positive"))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !contains([]string{"auto", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// SlogLevel returns the configured level, or slog.LevelInfo if it does
// not parse.
func (l LogConfig) SlogLevel() slog.Level {
	level, err := parseLevel(l.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

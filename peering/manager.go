// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package peering

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oertchan/oertchan/identity"
	"github.com/oertchan/oertchan/lib/clock"
	"github.com/oertchan/oertchan/lib/metrics"
	"github.com/oertchan/oertchan/protocol"
	"github.com/oertchan/oertchan/transport"
)

// Default discovery timing.
const (
	DefaultOfferInterval  = 5 * time.Second
	DefaultAcceptInterval = 5 * time.Second
	DefaultConnectTimeout = 30 * time.Second
)

// Config configures a Manager. Identity and Handler are required.
// Negotiator and Rendezvous are required only for discovery.
type Config struct {
	Identity *identity.Identity
	Handler  Handler

	Negotiator transport.Negotiator
	Rendezvous Rendezvous

	// OfferInterval and AcceptInterval are the pauses between loop
	// iterations. ConnectTimeout bounds the wait for a negotiated
	// channel to open.
	OfferInterval  time.Duration
	AcceptInterval time.Duration
	ConnectTimeout time.Duration

	// Clock schedules loop iterations. Defaults to the real clock.
	Clock clock.Clock

	// Async runs signature verification. Defaults to a new goroutine
	// per verification. Tests substitute a synchronous or queued runner.
	Async func(func())

	// IntN picks the accept target among n candidates. Defaults to
	// math/rand/v2.IntN.
	IntN func(n int) int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Manager owns the local identity, the channel registry, and the
// discovery loops.
type Manager struct {
	identity   *identity.Identity
	handler    Handler
	negotiator transport.Negotiator
	rendezvous Rendezvous

	offerInterval  time.Duration
	acceptInterval time.Duration
	connectTimeout time.Duration

	clock   clock.Clock
	async   func(func())
	intN    func(int) int
	metrics *metrics.Metrics
	logger  *slog.Logger

	// naming serializes peer display-name assignment across channels.
	naming sync.Mutex

	mutex       sync.Mutex
	channels    []*Channel
	byTransport map[transport.Transport]*Channel
	byID        map[string]*Channel
}

// NewManager creates a Manager with an empty registry.
func NewManager(config Config) (*Manager, error) {
	if config.Identity == nil {
		return nil, errors.New("peering: Identity is required")
	}
	if config.Handler == nil {
		return nil, errors.New("peering: Handler is required")
	}

	manager := &Manager{
		identity:       config.Identity,
		handler:        config.Handler,
		negotiator:     config.Negotiator,
		rendezvous:     config.Rendezvous,
		offerInterval:  config.OfferInterval,
		acceptInterval: config.AcceptInterval,
		connectTimeout: config.ConnectTimeout,
		clock:          config.Clock,
		async:          config.Async,
		intN:           config.IntN,
		metrics:        config.Metrics,
		logger:         config.Logger,
		byTransport:    make(map[transport.Transport]*Channel),
		byID:           make(map[string]*Channel),
	}
	if manager.offerInterval <= 0 {
		manager.offerInterval = DefaultOfferInterval
	}
	if manager.acceptInterval <= 0 {
		manager.acceptInterval = DefaultAcceptInterval
	}
	if manager.connectTimeout <= 0 {
		manager.connectTimeout = DefaultConnectTimeout
	}
	if manager.clock == nil {
		manager.clock = clock.Real()
	}
	if manager.async == nil {
		manager.async = func(f func()) { go f() }
	}
	if manager.intN == nil {
		manager.intN = rand.IntN
	}
	if manager.metrics == nil {
		manager.metrics = metrics.New()
	}
	if manager.logger == nil {
		manager.logger = slog.Default()
	}
	manager.logger = manager.logger.With("self", shortFingerprint(config.Identity.Fingerprint()))
	return manager, nil
}

// Identity returns the local identity.
func (manager *Manager) Identity() *identity.Identity { return manager.identity }

// Register adds a usable transport to the registry, starts dispatching
// its messages, and sends the local identity announcement. Registering
// the same transport again returns the existing channel and sends
// nothing.
func (manager *Manager) Register(conn transport.Transport) *Channel {
	manager.mutex.Lock()
	if existing, ok := manager.byTransport[conn]; ok {
		manager.mutex.Unlock()
		return existing
	}
	channel := &Channel{id: uuid.NewString(), transport: conn}
	manager.channels = append(manager.channels, channel)
	manager.byTransport[conn] = channel
	manager.byID[channel.id] = channel
	manager.mutex.Unlock()

	manager.metrics.ChannelsRegistered.Inc()
	manager.logger.Info("channel registered", "channel", channel.id, "label", conn.Label())

	conn.OnClose(func() {
		channel.markClosed()
		manager.logger.Info("channel closed", "channel", channel.id, "peer", channel.PeerName())
	})
	conn.OnMessage(func(text string) {
		manager.Dispatch(channel, text)
	})

	initial := protocol.NewInitial(manager.identity.PublicKeyHex(), manager.identity.DisplayName())
	if err := channel.Send(initial); err != nil {
		manager.logger.Warn("sending identity announcement failed", "channel", channel.id, "error", err)
	}
	return channel
}

// Channels returns the registered channels in registration order,
// closed ones included.
func (manager *Manager) Channels() []*Channel {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return append([]*Channel(nil), manager.channels...)
}

// Lookup returns the channel with the given ID.
func (manager *Manager) Lookup(id string) (*Channel, bool) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	channel, ok := manager.byID[id]
	return channel, ok
}

// ConnectedFingerprints returns the fingerprints claimed on open
// channels, verified or not.
func (manager *Manager) ConnectedFingerprints() []string {
	var fingerprints []string
	for _, channel := range manager.Channels() {
		if channel.Closed() {
			continue
		}
		if peer := channel.Peer(); peer != nil {
			fingerprints = append(fingerprints, peer.Fingerprint())
		}
	}
	return fingerprints
}

// peerNames returns the raw display names of all known peers.
func (manager *Manager) peerNames() []string {
	var names []string
	for _, channel := range manager.Channels() {
		if peer := channel.Peer(); peer != nil {
			names = append(names, peer.RawDisplayName())
		}
	}
	return names
}

// Dispatch parses one raw message from channel and routes it. Errors
// are logged and counted, never returned.
func (manager *Manager) Dispatch(channel *Channel, raw string) {
	manager.logger.Debug("message received", "channel", channel.id, "peer", channel.PeerName(), "bytes", len(raw))

	envelope, diagnostic := protocol.ParseIncoming(raw)

	if envelope.SetPeerName != nil {
		manager.handleSetPeerName(channel, *envelope.SetPeerName)
	}
	if envelope.Message != nil {
		manager.handler.Message(channel, *envelope.Message)
	}
	if envelope.Request != nil {
		manager.handler.Request(channel, *envelope.Request)
	}
	if envelope.Response != nil {
		manager.handler.Response(channel, *envelope.Response)
	}

	if diagnostic != nil {
		manager.report(channel, *diagnostic)
	}
}

// report applies a diagnostic's advice. Replies go to the originating
// channel only.
func (manager *Manager) report(channel *Channel, diagnostic protocol.Diagnostic) {
	manager.metrics.CodecDiagnostics.WithLabelValues(string(diagnostic.Kind)).Inc()

	if diagnostic.LogToLocal != "" {
		manager.logger.Warn("unusable message from peer",
			"channel", channel.id,
			"peer", channel.PeerName(),
			"detail", diagnostic.LogToLocal,
		)
	}
	if diagnostic.SendToPeer != "" {
		if err := channel.Send(protocol.DiagnosticReply(diagnostic)); err != nil {
			manager.logger.Warn("sending error reply failed", "channel", channel.id, "error", err)
		}
	}
	manager.handler.Unrecognized(channel, diagnostic)
}

// Broadcast sends envelope to every registered channel and returns how
// many sends succeeded. A failing channel is logged and skipped.
func (manager *Manager) Broadcast(envelope protocol.Envelope) int {
	text, err := protocol.Marshal(envelope)
	if err != nil {
		manager.logger.Error("encoding broadcast failed", "error", err)
		return 0
	}

	delivered := 0
	for _, channel := range manager.Channels() {
		if err := channel.SendRaw(text); err != nil {
			manager.metrics.BroadcastFailures.Inc()
			manager.logger.Warn("broadcast to channel failed",
				"channel", channel.id,
				"peer", channel.PeerName(),
				"error", err,
			)
			continue
		}
		delivered++
	}
	return delivered
}

// shortFingerprint abbreviates a fingerprint for log attributes.
func shortFingerprint(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}

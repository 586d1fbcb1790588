// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface checks.
var (
	_ Negotiator      = (*WebRTCNegotiator)(nil)
	_ OutboundSession = (*webrtcOutbound)(nil)
	_ InboundSession  = (*webrtcInbound)(nil)
	_ Transport       = (*DataChannelTransport)(nil)
)

// defaultGatherTimeout is the maximum time to wait for ICE candidate
// gathering to complete before producing the offer or answer.
const defaultGatherTimeout = 15 * time.Second

// WebRTCConfig configures a WebRTCNegotiator.
type WebRTCConfig struct {
	ICE ICEConfig

	// GatherTimeout bounds candidate gathering. Zero means 15s.
	GatherTimeout time.Duration

	// IncludeLoopback adds loopback host candidates, for same-machine
	// peers and tests where loopback is the only interface.
	IncludeLoopback bool

	Logger *slog.Logger
}

// WebRTCNegotiator establishes pion data channels. Each session owns
// one PeerConnection carrying one "sendChannel" data channel in message
// mode.
type WebRTCNegotiator struct {
	api           *webrtc.API
	logger        *slog.Logger
	gatherTimeout time.Duration
	iceConfig     ICEConfig
}

// NewWebRTCNegotiator creates a negotiator.
func NewWebRTCNegotiator(config WebRTCConfig) *WebRTCNegotiator {
	settingEngine := webrtc.SettingEngine{}
	if config.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherTimeout := config.GatherTimeout
	if gatherTimeout <= 0 {
		gatherTimeout = defaultGatherTimeout
	}

	return &WebRTCNegotiator{
		api:           webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		logger:        logger,
		gatherTimeout: gatherTimeout,
		iceConfig:     config.ICE,
	}
}

// newPeerConnection creates a PeerConnection with the configured ICE
// servers and starts collecting its local candidates.
func (negotiator *WebRTCNegotiator) newPeerConnection() (*webrtc.PeerConnection, *candidateCollector, error) {
	configuration := webrtc.Configuration{ICEServers: negotiator.iceConfig.Servers}

	connection, err := negotiator.api.NewPeerConnection(configuration)
	if err != nil {
		return nil, nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	collector := &candidateCollector{}
	connection.OnICECandidate(collector.add)
	connection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		negotiator.logger.Debug("ICE state change", "state", state.String())
	})
	return connection, collector, nil
}

// gather sets the local description and waits for vanilla ICE gathering
// to finish.
func (negotiator *WebRTCNegotiator) gather(ctx context.Context, connection *webrtc.PeerConnection, description webrtc.SessionDescription) error {
	gatherComplete := webrtc.GatheringCompletePromise(connection)
	if err := connection.SetLocalDescription(description); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}

	timer := time.NewTimer(negotiator.gatherTimeout)
	defer timer.Stop()
	select {
	case <-gatherComplete:
		return nil
	case <-timer.C:
		return fmt.Errorf("ICE gathering timed out after %s", negotiator.gatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewOutbound creates a PeerConnection with the "sendChannel" data
// channel and gathers a complete offer.
func (negotiator *WebRTCNegotiator) NewOutbound(ctx context.Context) (OutboundSession, error) {
	connection, collector, err := negotiator.newPeerConnection()
	if err != nil {
		return nil, err
	}

	ordered := true
	channel, err := connection.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	transport := newDataChannelTransport(connection, channel)

	offer, err := connection.CreateOffer(nil)
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("creating SDP offer: %w", err)
	}
	if err := negotiator.gather(ctx, connection, offer); err != nil {
		connection.Close()
		return nil, err
	}

	payload, err := encodePayload(offerPayload{
		Offer:      connection.LocalDescription(),
		Candidates: collector.list(),
	})
	if err != nil {
		connection.Close()
		return nil, err
	}

	negotiator.logger.Debug("WebRTC offer gathered", "candidates", len(collector.list()))
	return &webrtcOutbound{
		negotiator: negotiator,
		connection: connection,
		transport:  transport,
		offer:      payload,
	}, nil
}

// NewInbound applies a remote offer and gathers a complete answer.
func (negotiator *WebRTCNegotiator) NewInbound(ctx context.Context, offer string) (InboundSession, error) {
	remote, err := decodeOffer(offer)
	if err != nil {
		return nil, err
	}

	connection, collector, err := negotiator.newPeerConnection()
	if err != nil {
		return nil, err
	}

	inbound := &webrtcInbound{
		negotiator: negotiator,
		connection: connection,
		channels:   make(chan *DataChannelTransport, 1),
	}
	connection.OnDataChannel(func(channel *webrtc.DataChannel) {
		if channel.Label() != ChannelLabel {
			negotiator.logger.Warn("unexpected data channel from offerer", "label", channel.Label())
		}
		transport := newDataChannelTransport(connection, channel)
		select {
		case inbound.channels <- transport:
		default:
			// Only the first channel is used.
			transport.Close()
		}
	})

	if err := connection.SetRemoteDescription(*remote.Offer); err != nil {
		connection.Close()
		return nil, fmt.Errorf("setting remote description: %w", err)
	}
	negotiator.addCandidates(connection, remote.Candidates)

	answer, err := connection.CreateAnswer(nil)
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("creating SDP answer: %w", err)
	}
	if err := negotiator.gather(ctx, connection, answer); err != nil {
		connection.Close()
		return nil, err
	}

	inbound.answer, err = encodePayload(answerPayload{
		Answer:     connection.LocalDescription(),
		Candidates: collector.list(),
	})
	if err != nil {
		connection.Close()
		return nil, err
	}
	return inbound, nil
}

// addCandidates applies trickled candidates a browser peer listed next
// to its SDP. Failures are logged: the SDP usually carries the same
// candidates.
func (negotiator *WebRTCNegotiator) addCandidates(connection *webrtc.PeerConnection, candidates []webrtc.ICECandidateInit) {
	for _, candidate := range candidates {
		if candidate.Candidate == "" {
			continue
		}
		if err := connection.AddICECandidate(candidate); err != nil {
			negotiator.logger.Debug("adding remote ICE candidate failed", "candidate", candidate.Candidate, "error", err)
		}
	}
}

type webrtcOutbound struct {
	negotiator *WebRTCNegotiator
	connection *webrtc.PeerConnection
	transport  *DataChannelTransport
	offer      string
	connected  atomic.Bool
}

func (outbound *webrtcOutbound) Offer() string { return outbound.offer }

func (outbound *webrtcOutbound) Connect(ctx context.Context, answer string) (Transport, error) {
	if !outbound.connected.CompareAndSwap(false, true) {
		return nil, errors.New("session already connected")
	}
	remote, err := decodeAnswer(answer)
	if err != nil {
		outbound.connected.Store(false)
		return nil, err
	}
	if err := outbound.connection.SetRemoteDescription(*remote.Answer); err != nil {
		outbound.connected.Store(false)
		return nil, fmt.Errorf("setting remote description: %w", err)
	}
	outbound.negotiator.addCandidates(outbound.connection, remote.Candidates)

	if err := outbound.transport.waitOpen(ctx); err != nil {
		outbound.connected.Store(false)
		return nil, err
	}
	return outbound.transport, nil
}

func (outbound *webrtcOutbound) Close() error {
	if outbound.connected.Load() {
		return nil
	}
	return outbound.transport.Close()
}

type webrtcInbound struct {
	negotiator *WebRTCNegotiator
	connection *webrtc.PeerConnection
	answer     string
	channels   chan *DataChannelTransport
	connected  atomic.Bool
}

func (inbound *webrtcInbound) Answer() string { return inbound.answer }

func (inbound *webrtcInbound) Connect(ctx context.Context) (Transport, error) {
	var transport *DataChannelTransport
	select {
	case transport = <-inbound.channels:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := transport.waitOpen(ctx); err != nil {
		return nil, err
	}
	inbound.connected.Store(true)
	return transport, nil
}

func (inbound *webrtcInbound) Close() error {
	if inbound.connected.Load() {
		return nil
	}
	return inbound.connection.Close()
}

// candidateCollector records local ICE candidates as they are gathered.
type candidateCollector struct {
	mutex      sync.Mutex
	candidates []webrtc.ICECandidateInit
}

func (collector *candidateCollector) add(candidate *webrtc.ICECandidate) {
	// A nil candidate marks the end of gathering.
	if candidate == nil {
		return
	}
	collector.mutex.Lock()
	defer collector.mutex.Unlock()
	collector.candidates = append(collector.candidates, candidate.ToJSON())
}

func (collector *candidateCollector) list() []webrtc.ICECandidateInit {
	collector.mutex.Lock()
	defer collector.mutex.Unlock()
	return append([]webrtc.ICECandidateInit{}, collector.candidates...)
}

// DataChannelTransport is a Transport over a pion data channel in
// message mode. It owns the PeerConnection: closing the transport
// closes both.
type DataChannelTransport struct {
	connection *webrtc.PeerConnection
	channel    *webrtc.DataChannel
	inbox      *inbox

	opened    chan struct{}
	openOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

func newDataChannelTransport(connection *webrtc.PeerConnection, channel *webrtc.DataChannel) *DataChannelTransport {
	transport := &DataChannelTransport{
		connection: connection,
		channel:    channel,
		inbox:      newInbox(),
		opened:     make(chan struct{}),
		closed:     make(chan struct{}),
	}

	channel.OnOpen(func() {
		transport.openOnce.Do(func() { close(transport.opened) })
	})
	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		transport.inbox.push(string(message.Data))
	})
	channel.OnClose(transport.shutdown)
	connection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			transport.shutdown()
		}
	})

	// The channel may already be open when handed over by OnDataChannel.
	if channel.ReadyState() == webrtc.DataChannelStateOpen {
		transport.openOnce.Do(func() { close(transport.opened) })
	}
	return transport
}

// waitOpen blocks until the data channel opens.
func (transport *DataChannelTransport) waitOpen(ctx context.Context) error {
	select {
	case <-transport.opened:
		return nil
	case <-transport.closed:
		return errors.New("data channel closed before opening")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (transport *DataChannelTransport) shutdown() {
	transport.closeOnce.Do(func() {
		close(transport.closed)
		transport.inbox.close()
	})
}

func (transport *DataChannelTransport) Send(text string) error {
	select {
	case <-transport.closed:
		return fmt.Errorf("data channel %s is closed", transport.channel.Label())
	default:
	}
	return transport.channel.SendText(text)
}

func (transport *DataChannelTransport) OnMessage(handler func(text string)) {
	transport.inbox.setHandler(handler)
}

func (transport *DataChannelTransport) OnClose(handler func()) {
	transport.inbox.setCloseHandler(handler)
}

// Close closes the data channel and its PeerConnection.
func (transport *DataChannelTransport) Close() error {
	transport.shutdown()
	channelErr := transport.channel.Close()
	connectionErr := transport.connection.Close()
	return errors.Join(channelErr, connectionErr)
}

func (transport *DataChannelTransport) Label() string { return transport.channel.Label() }

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package peering

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/oertchan/oertchan/identity"
	"github.com/oertchan/oertchan/lib/metrics"
	"github.com/oertchan/oertchan/protocol"
)

// recordingTransport records every send and never delivers anything.
// Tests drive the receiving side through Manager.Dispatch.
type recordingTransport struct {
	label string

	mutex   sync.Mutex
	sent    []string
	fail    bool
	onClose func()
	closed  bool
}

func newRecordingTransport(label string) *recordingTransport {
	return &recordingTransport{label: label}
}

func (transport *recordingTransport) Send(text string) error {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	if transport.fail || transport.closed {
		return errors.New("transport unavailable")
	}
	transport.sent = append(transport.sent, text)
	return nil
}

func (transport *recordingTransport) OnMessage(func(string)) {}

func (transport *recordingTransport) OnClose(handler func()) {
	transport.mutex.Lock()
	transport.onClose = handler
	transport.mutex.Unlock()
}

func (transport *recordingTransport) Close() error {
	transport.mutex.Lock()
	if transport.closed {
		transport.mutex.Unlock()
		return nil
	}
	transport.closed = true
	handler := transport.onClose
	transport.mutex.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

func (transport *recordingTransport) Label() string { return transport.label }

func (transport *recordingTransport) setFailing() {
	transport.mutex.Lock()
	transport.fail = true
	transport.mutex.Unlock()
}

// Sent returns the decoded envelopes sent so far.
func (transport *recordingTransport) Sent(t *testing.T) []protocol.Envelope {
	t.Helper()
	transport.mutex.Lock()
	sent := append([]string(nil), transport.sent...)
	transport.mutex.Unlock()

	envelopes := make([]protocol.Envelope, 0, len(sent))
	for _, text := range sent {
		envelope, diagnostic := protocol.ParseIncoming(text)
		if diagnostic != nil {
			t.Fatalf("manager sent an envelope that does not parse cleanly: %s (%+v)", text, diagnostic)
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes
}

// recordingHandler records application events.
type recordingHandler struct {
	mutex         sync.Mutex
	ready         []*Channel
	messages      []string
	authAtMessage []bool
	requests      []protocol.Request
	responses     []protocol.Response
	unrecognized  []protocol.Diagnostic

	readyCh chan *Channel
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{readyCh: make(chan *Channel, 16)}
}

func (handler *recordingHandler) MutuallyAuthenticated(channel *Channel) {
	handler.mutex.Lock()
	handler.ready = append(handler.ready, channel)
	handler.mutex.Unlock()
	handler.readyCh <- channel
}

func (handler *recordingHandler) Message(channel *Channel, text string) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	handler.messages = append(handler.messages, text)
	handler.authAtMessage = append(handler.authAtMessage, channel.MutuallyAuthenticated())
}

func (handler *recordingHandler) Request(_ *Channel, request protocol.Request) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	handler.requests = append(handler.requests, request)
}

func (handler *recordingHandler) Response(_ *Channel, response protocol.Response) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	handler.responses = append(handler.responses, response)
}

func (handler *recordingHandler) Unrecognized(_ *Channel, diagnostic protocol.Diagnostic) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	handler.unrecognized = append(handler.unrecognized, diagnostic)
}

func (handler *recordingHandler) readyCount() int {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	return len(handler.ready)
}

// syncRunner runs verification inline, so Dispatch returns with the
// whole handshake step applied.
func syncRunner(f func()) { f() }

// queueRunner holds verifications until run is called.
type queueRunner struct {
	mutex  sync.Mutex
	queued []func()
}

func (runner *queueRunner) async(f func()) {
	runner.mutex.Lock()
	runner.queued = append(runner.queued, f)
	runner.mutex.Unlock()
}

func (runner *queueRunner) run() int {
	runner.mutex.Lock()
	queued := runner.queued
	runner.queued = nil
	runner.mutex.Unlock()
	for _, f := range queued {
		f()
	}
	return len(queued)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createIdentity(t *testing.T, name string) *identity.Identity {
	t.Helper()
	id, err := identity.Create(name)
	if err != nil {
		t.Fatalf("identity.Create(%q): %v", name, err)
	}
	return id
}

func newTestManager(t *testing.T, config Config) *Manager {
	t.Helper()
	if config.Identity == nil {
		config.Identity = createIdentity(t, "local")
	}
	if config.Handler == nil {
		config.Handler = NopHandler{}
	}
	if config.Logger == nil {
		config.Logger = discardLogger()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}
	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func mustMarshal(t *testing.T, envelope protocol.Envelope) string {
	t.Helper()
	text, err := protocol.Marshal(envelope)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return text
}

// metricValue returns the value of the counter or gauge name whose
// labels match, or 0 when it has not been observed.
func metricValue(t *testing.T, m *metrics.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metricLoop
				}
			}
			if counter := metric.GetCounter(); counter != nil {
				return counter.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

// scriptedPeer plays the remote side of one channel by hand.
type scriptedPeer struct {
	identity *identity.Identity
	local    *identity.PeerIdentity
}

func newScriptedPeer(t *testing.T, name string, local *identity.Identity) *scriptedPeer {
	t.Helper()
	peer := &scriptedPeer{identity: createIdentity(t, name)}
	view, err := identity.NewPeerIdentity(local.PublicKey(), local.DisplayName(), nil)
	if err != nil {
		t.Fatalf("NewPeerIdentity: %v", err)
	}
	peer.local = view
	return peer
}

func (peer *scriptedPeer) initial(t *testing.T) string {
	return mustMarshal(t, protocol.NewInitial(peer.identity.PublicKeyHex(), peer.identity.DisplayName()))
}

func (peer *scriptedPeer) challenge(t *testing.T) string {
	t.Helper()
	challenge, err := peer.local.GenerateChallenge()
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	return mustMarshal(t, protocol.NewChallenge(challenge))
}

// response signs the challenge the manager sent on transport.
func (peer *scriptedPeer) response(t *testing.T, transport *recordingTransport) string {
	t.Helper()
	var challenge string
	for _, envelope := range transport.Sent(t) {
		if envelope.SetPeerName != nil && envelope.SetPeerName.Challenge != "" {
			challenge = envelope.SetPeerName.Challenge
		}
	}
	if challenge == "" {
		t.Fatal("manager has not sent a challenge")
	}
	signature, err := peer.identity.RespondToChallenge(challenge)
	if err != nil {
		t.Fatalf("RespondToChallenge: %v", err)
	}
	return mustMarshal(t, protocol.NewChallengeResponse(signature))
}

func (peer *scriptedPeer) acknowledge(t *testing.T) string {
	return mustMarshal(t, protocol.NewAcknowledge())
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package peering

import (
	"testing"

	"github.com/oertchan/oertchan/lib/metrics"
	"github.com/oertchan/oertchan/protocol"
)

func TestNewManager_RequiresIdentityAndHandler(t *testing.T) {
	if _, err := NewManager(Config{Handler: NopHandler{}}); err == nil {
		t.Error("expected error without Identity")
	}
	if _, err := NewManager(Config{Identity: createIdentity(t, "local")}); err == nil {
		t.Error("expected error without Handler")
	}
}

func TestRegister_Idempotent(t *testing.T) {
	m := metrics.New()
	manager := newTestManager(t, Config{Metrics: m})
	conn := newRecordingTransport("one")

	first := manager.Register(conn)
	second := manager.Register(conn)

	if first != second {
		t.Error("registering the same transport twice produced two channels")
	}
	if got := len(manager.Channels()); got != 1 {
		t.Errorf("registry holds %d channels, want 1", got)
	}
	if got := len(conn.Sent(t)); got != 1 {
		t.Errorf("sent %d announcements, want 1", got)
	}
	if got := metricValue(t, m, "oertchan_channels_registered_total", nil); got != 1 {
		t.Errorf("channels registered = %v, want 1", got)
	}

	found, ok := manager.Lookup(first.ID())
	if !ok || found != first {
		t.Errorf("Lookup(%s) = %v, %v", first.ID(), found, ok)
	}
	if _, ok := manager.Lookup("missing"); ok {
		t.Error("Lookup of an unknown ID succeeded")
	}
}

func TestRegister_AnnouncesIdentity(t *testing.T) {
	local := createIdentity(t, "alice")
	manager := newTestManager(t, Config{Identity: local})
	conn := newRecordingTransport("one")
	manager.Register(conn)

	sent := conn.Sent(t)
	if len(sent) != 1 || sent[0].SetPeerName == nil || sent[0].SetPeerName.Initial == nil {
		t.Fatalf("first envelope is not an announcement: %+v", sent)
	}
	initial := sent[0].SetPeerName.Initial
	if initial.PubKey != local.PublicKeyHex() {
		t.Error("announced a different public key")
	}
	if initial.DisplayName != "alice" {
		t.Errorf("announced name %q, want alice", initial.DisplayName)
	}
}

func TestChannel_ClosedStaysRegistered(t *testing.T) {
	manager := newTestManager(t, Config{})
	conn := newRecordingTransport("one")
	channel := manager.Register(conn)

	conn.Close()

	if !channel.Closed() {
		t.Error("channel not marked closed")
	}
	if got := len(manager.Channels()); got != 1 {
		t.Errorf("registry holds %d channels after close, want 1", got)
	}
}

func TestDispatch_RoutesApplicationFields(t *testing.T) {
	handler := newRecordingHandler()
	manager := newTestManager(t, Config{Handler: handler})
	channel := manager.Register(newRecordingTransport("one"))

	manager.Dispatch(channel, `{"message":"hi","request":{"url":"/index","method":"GET"},"response":{"content":"ok","showPostForm":true}}`)

	if len(handler.messages) != 1 || handler.messages[0] != "hi" {
		t.Errorf("messages = %q, want [hi]", handler.messages)
	}
	if len(handler.requests) != 1 || handler.requests[0].URL != "/index" || handler.requests[0].Method != protocol.MethodGet {
		t.Errorf("requests = %+v", handler.requests)
	}
	if len(handler.responses) != 1 || handler.responses[0].Content != "ok" || !handler.responses[0].ShowPostForm {
		t.Errorf("responses = %+v", handler.responses)
	}
	if len(handler.unrecognized) != 0 {
		t.Errorf("unexpected diagnostics: %+v", handler.unrecognized)
	}
}

// Unknown fields are reported without suppressing valid siblings.
func TestDispatch_UnknownFieldsKeepSiblings(t *testing.T) {
	handler := newRecordingHandler()
	m := metrics.New()
	manager := newTestManager(t, Config{Handler: handler, Metrics: m})
	conn := newRecordingTransport("one")
	channel := manager.Register(conn)

	manager.Dispatch(channel, `{"message":"still here","bogus":1}`)

	if len(handler.messages) != 1 || handler.messages[0] != "still here" {
		t.Errorf("messages = %q, want [still here]", handler.messages)
	}
	if len(handler.unrecognized) != 1 || handler.unrecognized[0].Kind != protocol.KindUnknownFields {
		t.Errorf("diagnostics = %+v", handler.unrecognized)
	}
	if got := len(conn.Sent(t)); got != 1 {
		t.Errorf("sent %d envelopes, want no reply for unknown fields", got)
	}
	if got := metricValue(t, m, "oertchan_codec_diagnostics_total", map[string]string{"kind": string(protocol.KindUnknownFields)}); got != 1 {
		t.Errorf("unknown_fields diagnostics = %v, want 1", got)
	}
}

// Peer-visible complaints go back on the originating channel only.
func TestDispatch_DiagnosticReplyOnSameChannel(t *testing.T) {
	handler := newRecordingHandler()
	manager := newTestManager(t, Config{Handler: handler})
	offending := newRecordingTransport("offending")
	bystander := newRecordingTransport("bystander")
	channel := manager.Register(offending)
	manager.Register(bystander)

	manager.Dispatch(channel, `{"request":{"url":"/foo","method":"POST"}}`)

	sent := offending.Sent(t)
	if len(sent) != 2 {
		t.Fatalf("offending channel got %d envelopes, want announcement and reply", len(sent))
	}
	reply := sent[1].Response
	if reply == nil || reply.Content != "request: POST needs content" {
		t.Errorf("reply = %+v, want POST complaint", reply)
	}
	if got := len(bystander.Sent(t)); got != 1 {
		t.Errorf("bystander got %d envelopes, want only the announcement", got)
	}
	if len(handler.requests) != 0 {
		t.Error("invalid request reached the handler")
	}
}

func TestDispatch_UnparsableNotEchoed(t *testing.T) {
	handler := newRecordingHandler()
	manager := newTestManager(t, Config{Handler: handler})
	conn := newRecordingTransport("one")
	channel := manager.Register(conn)

	manager.Dispatch(channel, `{"message":`)

	if got := len(conn.Sent(t)); got != 1 {
		t.Errorf("sent %d envelopes, want no reply to unparsable input", got)
	}
	if len(handler.unrecognized) != 1 || handler.unrecognized[0].Kind != protocol.KindUnparsable {
		t.Errorf("diagnostics = %+v", handler.unrecognized)
	}
}

func TestBroadcast_ContinuesPastFailures(t *testing.T) {
	m := metrics.New()
	manager := newTestManager(t, Config{Metrics: m})
	first := newRecordingTransport("first")
	broken := newRecordingTransport("broken")
	last := newRecordingTransport("last")
	manager.Register(first)
	manager.Register(broken)
	manager.Register(last)
	broken.setFailing()

	delivered := manager.Broadcast(protocol.NewMessage("hello all"))

	if delivered != 2 {
		t.Errorf("Broadcast delivered %d, want 2", delivered)
	}
	for _, conn := range []*recordingTransport{first, last} {
		sent := conn.Sent(t)
		if got := sent[len(sent)-1].Message; got == nil || *got != "hello all" {
			t.Errorf("%s did not receive the broadcast", conn.Label())
		}
	}
	if got := metricValue(t, m, "oertchan_broadcast_failures_total", nil); got != 1 {
		t.Errorf("broadcast failures = %v, want 1", got)
	}
}

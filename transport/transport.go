// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ChannelLabel is the data channel label the offerer creates. Browser
// peers use the same label.
const ChannelLabel = "sendChannel"

// Transport is an established, ordered, reliable text channel to one
// peer. Implementations are safe for concurrent use. The transport
// value itself identifies the connection.
type Transport interface {
	// Send queues text for delivery. It fails once the transport is
	// closed.
	Send(text string) error

	// OnMessage installs the inbound message callback. Calls are
	// serialized and in arrival order. Messages received before the
	// first OnMessage call are delivered to it.
	OnMessage(handler func(text string))

	// OnClose installs a callback invoked once when the channel closes,
	// after all queued messages have been delivered. If the channel is
	// already closed the callback runs immediately.
	OnClose(handler func())

	// Close closes the channel. Further calls are no-ops.
	Close() error

	// Label names the channel for logs.
	Label() string
}

// Negotiator establishes transports via an offer/answer exchange.
type Negotiator interface {
	// NewOutbound starts an offering session. The returned session's
	// Offer is ready to publish.
	NewOutbound(ctx context.Context) (OutboundSession, error)

	// NewInbound answers a published offer. The returned session's
	// Answer is ready to send back to the offerer.
	NewInbound(ctx context.Context, offer string) (InboundSession, error)
}

// OutboundSession is the offering side of one negotiation.
type OutboundSession interface {
	// Offer returns the negotiation payload to publish.
	Offer() string

	// Connect applies the peer's answer and waits for the channel to
	// open. The same session may not be connected twice.
	Connect(ctx context.Context, answer string) (Transport, error)

	// Close abandons the session. After a successful Connect the
	// returned Transport owns the connection and Close is a no-op.
	Close() error
}

// InboundSession is the answering side of one negotiation.
type InboundSession interface {
	// Answer returns the payload to relay back to the offerer.
	Answer() string

	// Connect waits for the offerer to apply the answer and the channel
	// to open.
	Connect(ctx context.Context) (Transport, error)

	// Close abandons the session, as for OutboundSession.
	Close() error
}

// offerPayload is the JSON document exchanged as an offer.
type offerPayload struct {
	Offer      *webrtc.SessionDescription `json:"offer"`
	Candidates []webrtc.ICECandidateInit  `json:"candidates"`
}

// answerPayload is the JSON document exchanged as an answer.
type answerPayload struct {
	Answer     *webrtc.SessionDescription `json:"answer"`
	Candidates []webrtc.ICECandidateInit  `json:"candidates"`
}

func encodePayload(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeOffer(raw string) (offerPayload, error) {
	var payload offerPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, fmt.Errorf("decoding offer: %w", err)
	}
	if payload.Offer == nil || payload.Offer.Type != webrtc.SDPTypeOffer {
		return payload, fmt.Errorf("decoding offer: no session description of type offer")
	}
	return payload, nil
}

func decodeAnswer(raw string) (answerPayload, error) {
	var payload answerPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, fmt.Errorf("decoding answer: %w", err)
	}
	if payload.Answer == nil || payload.Answer.Type != webrtc.SDPTypeAnswer {
		return payload, fmt.Errorf("decoding answer: no session description of type answer")
	}
	return payload, nil
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface checks.
var (
	_ Transport       = (*MemoryTransport)(nil)
	_ Negotiator      = (*MemoryNegotiator)(nil)
	_ OutboundSession = (*memoryOutbound)(nil)
	_ InboundSession  = (*memoryInbound)(nil)
)

// MemoryTransport is one end of an in-process channel created by Pipe.
// Delivery is asynchronous: Send returns before the peer's handler
// runs, so two handlers replying to each other cannot deadlock.
type MemoryTransport struct {
	label string
	inbox *inbox
	pipe  *pipeState
	peer  *MemoryTransport
}

// pipeState is shared by both ends; closing either end closes both.
type pipeState struct {
	closed    atomic.Bool
	closeOnce sync.Once
	ends      [2]*MemoryTransport
}

// Pipe returns two connected in-process transports.
func Pipe() (*MemoryTransport, *MemoryTransport) {
	return namedPipe("pipe")
}

func namedPipe(name string) (*MemoryTransport, *MemoryTransport) {
	state := &pipeState{}
	left := &MemoryTransport{label: name + "/a", inbox: newInbox(), pipe: state}
	right := &MemoryTransport{label: name + "/b", inbox: newInbox(), pipe: state}
	left.peer, right.peer = right, left
	state.ends = [2]*MemoryTransport{left, right}
	return left, right
}

func (transport *MemoryTransport) Send(text string) error {
	if transport.pipe.closed.Load() {
		return net.ErrClosed
	}
	transport.peer.inbox.push(text)
	return nil
}

func (transport *MemoryTransport) OnMessage(handler func(text string)) {
	transport.inbox.setHandler(handler)
}

func (transport *MemoryTransport) OnClose(handler func()) {
	transport.inbox.setCloseHandler(handler)
}

func (transport *MemoryTransport) Close() error {
	transport.pipe.closeOnce.Do(func() {
		transport.pipe.closed.Store(true)
		for _, end := range transport.pipe.ends {
			end.inbox.close()
		}
	})
	return nil
}

func (transport *MemoryTransport) Label() string { return transport.label }

// memorySDPPrefix marks the session descriptions MemoryNegotiator
// produces. They contain no SDP, only a session key.
const memorySDPPrefix = "memory:"

// MemoryNegotiator pairs offers and answers in process, standing in for
// WebRTC in tests. Both peers must share the same instance, the way two
// browsers share a signaling server. Payloads have the same JSON shape
// as WebRTCNegotiator's, so they can pass through a rendezvous server.
type MemoryNegotiator struct {
	mutex    sync.Mutex
	sessions map[string]*memorySession
	counter  atomic.Uint64
}

type memorySession struct {
	key       string
	offerer   *MemoryTransport
	answerer  *MemoryTransport
	answered  atomic.Bool
	connected chan struct{}
}

// NewMemoryNegotiator creates an empty negotiator.
func NewMemoryNegotiator() *MemoryNegotiator {
	return &MemoryNegotiator{sessions: make(map[string]*memorySession)}
}

// Pending returns the number of sessions that were offered but not yet
// connected or closed.
func (negotiator *MemoryNegotiator) Pending() int {
	negotiator.mutex.Lock()
	defer negotiator.mutex.Unlock()
	return len(negotiator.sessions)
}

func (negotiator *MemoryNegotiator) NewOutbound(ctx context.Context) (OutboundSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d", negotiator.counter.Add(1))
	offerer, answerer := namedPipe("memory-" + key)
	session := &memorySession{
		key:       key,
		offerer:   offerer,
		answerer:  answerer,
		connected: make(chan struct{}),
	}

	offer, err := encodePayload(offerPayload{
		Offer:      &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: memorySDPPrefix + key},
		Candidates: []webrtc.ICECandidateInit{},
	})
	if err != nil {
		return nil, err
	}

	negotiator.mutex.Lock()
	negotiator.sessions[key] = session
	negotiator.mutex.Unlock()

	return &memoryOutbound{negotiator: negotiator, session: session, offer: offer}, nil
}

func (negotiator *MemoryNegotiator) NewInbound(ctx context.Context, offer string) (InboundSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := decodeOffer(offer)
	if err != nil {
		return nil, err
	}
	key, ok := strings.CutPrefix(payload.Offer.SDP, memorySDPPrefix)
	if !ok {
		return nil, errors.New("offer was not produced by a memory negotiator")
	}

	negotiator.mutex.Lock()
	session, exists := negotiator.sessions[key]
	negotiator.mutex.Unlock()
	if !exists {
		return nil, fmt.Errorf("no pending memory session %q", key)
	}
	if !session.answered.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("memory session %q already answered", key)
	}

	answer, err := encodePayload(answerPayload{
		Answer:     &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: memorySDPPrefix + key},
		Candidates: []webrtc.ICECandidateInit{},
	})
	if err != nil {
		return nil, err
	}
	return &memoryInbound{session: session, answer: answer}, nil
}

func (negotiator *MemoryNegotiator) remove(key string) {
	negotiator.mutex.Lock()
	delete(negotiator.sessions, key)
	negotiator.mutex.Unlock()
}

type memoryOutbound struct {
	negotiator *MemoryNegotiator
	session    *memorySession
	offer      string
	connected  atomic.Bool
}

func (outbound *memoryOutbound) Offer() string { return outbound.offer }

func (outbound *memoryOutbound) Connect(ctx context.Context, answer string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := decodeAnswer(answer)
	if err != nil {
		return nil, err
	}
	if payload.Answer.SDP != memorySDPPrefix+outbound.session.key {
		return nil, errors.New("answer belongs to a different session")
	}
	if !outbound.connected.CompareAndSwap(false, true) {
		return nil, errors.New("session already connected")
	}
	outbound.negotiator.remove(outbound.session.key)
	close(outbound.session.connected)
	return outbound.session.offerer, nil
}

func (outbound *memoryOutbound) Close() error {
	if outbound.connected.Load() {
		return nil
	}
	outbound.negotiator.remove(outbound.session.key)
	return outbound.session.offerer.Close()
}

type memoryInbound struct {
	session   *memorySession
	answer    string
	connected atomic.Bool
}

func (inbound *memoryInbound) Answer() string { return inbound.answer }

func (inbound *memoryInbound) Connect(ctx context.Context) (Transport, error) {
	select {
	case <-inbound.session.connected:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if inbound.session.answerer.pipe.closed.Load() {
		return nil, net.ErrClosed
	}
	inbound.connected.Store(true)
	return inbound.session.answerer, nil
}

func (inbound *memoryInbound) Close() error {
	if inbound.connected.Load() {
		return nil
	}
	return inbound.session.answerer.Close()
}

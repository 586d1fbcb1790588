// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package peering

import (
	"fmt"
	"sync"

	"github.com/oertchan/oertchan/identity"
	"github.com/oertchan/oertchan/protocol"
	"github.com/oertchan/oertchan/transport"
)

// State is the handshake progress of a channel.
type State int

const (
	// StateUnknown: no identity announcement received yet.
	StateUnknown State = iota

	// StateClaimPending: the peer announced an identity and was
	// challenged.
	StateClaimPending

	// StateResponseSent: we answered the peer's challenge and wait for
	// the acknowledge.
	StateResponseSent

	// StatePeerVerified: the peer answered our challenge correctly.
	StatePeerVerified

	// StateMutuallyAuthenticated: both directions are proven.
	StateMutuallyAuthenticated
)

func (state State) String() string {
	switch state {
	case StateUnknown:
		return "unknown"
	case StateClaimPending:
		return "claim-pending"
	case StateResponseSent:
		return "response-sent"
	case StatePeerVerified:
		return "peer-verified"
	case StateMutuallyAuthenticated:
		return "mutually-authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(state))
	}
}

// Channel wraps one transport with the handshake state for its peer.
// Channels are created by Manager.Register and keyed by a stable ID.
type Channel struct {
	id        string
	transport transport.Transport

	mutex sync.Mutex
	peer  *identity.PeerIdentity

	// answeredChallenge guards against signing more than one challenge
	// per channel.
	answeredChallenge bool
	responseSent      bool
	acknowledged      bool
	readyFired        bool
	closed            bool
}

// ID returns the channel's stable connection key.
func (channel *Channel) ID() string { return channel.id }

// Transport returns the underlying transport.
func (channel *Channel) Transport() transport.Transport { return channel.transport }

// Peer returns the peer's claimed identity, or nil before the peer
// announced one.
func (channel *Channel) Peer() *identity.PeerIdentity {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	return channel.peer
}

// PeerName returns the peer's display name for presentation, including
// the unverified marker, or "???" before the announcement.
func (channel *Channel) PeerName() string {
	if peer := channel.Peer(); peer != nil {
		return peer.DisplayName()
	}
	return "???"
}

// LocallyAuthenticated reports whether we answered the peer's challenge
// and the peer acknowledged the answer.
func (channel *Channel) LocallyAuthenticated() bool {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	return channel.responseSent && channel.acknowledged
}

// MutuallyAuthenticated reports whether both directions of the
// handshake have completed. It is recomputed on every call.
func (channel *Channel) MutuallyAuthenticated() bool {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	return channel.mutualLocked()
}

func (channel *Channel) mutualLocked() bool {
	return channel.peer != nil && channel.peer.Verified() &&
		channel.responseSent && channel.acknowledged
}

// State summarizes handshake progress. When both directions are
// partially done, the peer's verification takes precedence.
func (channel *Channel) State() State {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()

	switch {
	case channel.mutualLocked():
		return StateMutuallyAuthenticated
	case channel.peer != nil && channel.peer.Verified():
		return StatePeerVerified
	case channel.responseSent:
		return StateResponseSent
	case channel.peer != nil:
		return StateClaimPending
	default:
		return StateUnknown
	}
}

// Closed reports whether the transport has closed. Closed channels stay
// registered.
func (channel *Channel) Closed() bool {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	return channel.closed
}

// Send encodes and sends an envelope on this channel.
func (channel *Channel) Send(envelope protocol.Envelope) error {
	text, err := protocol.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return channel.SendRaw(text)
}

// SendRaw sends text unchanged.
func (channel *Channel) SendRaw(text string) error {
	if err := channel.transport.Send(text); err != nil {
		return fmt.Errorf("sending on channel %s: %w", channel.id, err)
	}
	return nil
}

func (channel *Channel) markClosed() {
	channel.mutex.Lock()
	channel.closed = true
	channel.mutex.Unlock()
}

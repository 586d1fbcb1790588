// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package peering

import (
	"errors"

	"github.com/oertchan/oertchan/identity"
	"github.com/oertchan/oertchan/lib/metrics"
	"github.com/oertchan/oertchan/protocol"
)

// handleSetPeerName runs the handshake steps present in one envelope,
// in protocol order.
func (manager *Manager) handleSetPeerName(channel *Channel, setPeerName protocol.SetPeerName) {
	if setPeerName.Initial != nil {
		manager.handleInitial(channel, *setPeerName.Initial)
	}
	if setPeerName.Challenge != "" {
		manager.handleChallenge(channel, setPeerName.Challenge)
	}
	if setPeerName.Response != "" {
		manager.handleResponse(channel, setPeerName.Response)
	}
	if setPeerName.Acknowledge {
		manager.handleAcknowledge(channel)
	}
}

func (manager *Manager) violation(channel *Channel, message string, args ...any) {
	manager.metrics.HandshakeEvents.WithLabelValues(metrics.EventProtocolViolation).Inc()
	manager.logger.Warn(message, append([]any{"channel", channel.id, "peer", channel.PeerName()}, args...)...)
}

// handleInitial records the peer's claimed identity and challenges it.
// A channel's identity is set once; later announcements are rejected.
func (manager *Manager) handleInitial(channel *Channel, initial protocol.Initial) {
	if channel.Peer() != nil {
		manager.violation(channel, "peer tried to rename, renaming is not allowed",
			"proposed_name", initial.DisplayName)
		return
	}

	publicKey, err := identity.ImportPublicKey(initial.PubKey)
	if err != nil {
		manager.violation(channel, "peer announced an unusable public key", "error", err)
		return
	}

	// Channels dispatch concurrently; naming holds from the snapshot of
	// taken names until the new peer is visible to the next snapshot.
	manager.naming.Lock()
	peer, err := identity.NewPeerIdentity(publicKey, initial.DisplayName, manager.peerNames())
	if err != nil {
		manager.naming.Unlock()
		manager.violation(channel, "deriving peer fingerprint failed", "error", err)
		return
	}

	channel.mutex.Lock()
	if channel.peer != nil {
		channel.mutex.Unlock()
		manager.naming.Unlock()
		manager.violation(channel, "peer tried to rename, renaming is not allowed",
			"proposed_name", initial.DisplayName)
		return
	}
	channel.peer = peer
	channel.mutex.Unlock()
	manager.naming.Unlock()

	manager.logger.Info("peer announced identity",
		"channel", channel.id,
		"peer", peer.DisplayName(),
		"fingerprint", peer.Fingerprint(),
	)

	challenge, err := peer.GenerateChallenge()
	if err != nil {
		manager.logger.Error("generating challenge failed", "channel", channel.id, "error", err)
		return
	}
	if err := channel.Send(protocol.NewChallenge(challenge)); err != nil {
		manager.logger.Warn("sending challenge failed", "channel", channel.id, "error", err)
		return
	}
	manager.metrics.HandshakeEvents.WithLabelValues(metrics.EventChallengeSent).Inc()
}

// handleChallenge signs the peer's challenge. Only challenges bound to
// the local fingerprint are signed, and only one per channel.
func (manager *Manager) handleChallenge(channel *Channel, challenge string) {
	boundTo, ok := identity.ChallengeFingerprint(challenge)
	if !ok {
		manager.violation(channel, "refusing to sign a string that is not a challenge")
		return
	}
	if boundTo != manager.identity.Fingerprint() {
		manager.violation(channel, "refusing to sign a challenge issued for another identity",
			"bound_to", shortFingerprint(boundTo))
		return
	}

	channel.mutex.Lock()
	if channel.answeredChallenge {
		channel.mutex.Unlock()
		manager.logger.Debug("ignoring repeated challenge", "channel", channel.id)
		return
	}
	channel.answeredChallenge = true
	channel.mutex.Unlock()

	signature, err := manager.identity.RespondToChallenge(challenge)
	if err != nil {
		manager.logger.Error("signing challenge failed", "channel", channel.id, "error", err)
		return
	}
	if err := channel.Send(protocol.NewChallengeResponse(signature)); err != nil {
		manager.logger.Warn("sending challenge response failed", "channel", channel.id, "error", err)
		return
	}

	channel.mutex.Lock()
	channel.responseSent = true
	channel.mutex.Unlock()
	manager.metrics.HandshakeEvents.WithLabelValues(metrics.EventResponseSent).Inc()
	manager.logger.Debug("answered peer challenge", "channel", channel.id, "peer", channel.PeerName())

	manager.evaluate(channel)
}

// handleResponse verifies the peer's answer to our challenge. The
// check runs on the async runner; on success the peer is acknowledged.
func (manager *Manager) handleResponse(channel *Channel, signature string) {
	peer := channel.Peer()
	if peer == nil {
		manager.violation(channel, "challenge response before identity announcement")
		return
	}
	if !peer.HasPendingChallenge() {
		manager.violation(channel, "challenge response without an outstanding challenge")
		return
	}

	manager.async(func() {
		verified, err := peer.CheckResponse(signature)
		if errors.Is(err, identity.ErrNoPendingChallenge) {
			// An earlier response on this channel consumed the challenge.
			manager.violation(channel, "challenge response without an outstanding challenge")
			return
		}
		if !verified {
			manager.metrics.HandshakeEvents.WithLabelValues(metrics.EventVerifyFailed).Inc()
			manager.logger.Warn("peer failed challenge verification",
				"channel", channel.id,
				"peer", peer.DisplayName(),
				"fingerprint", peer.Fingerprint(),
			)
			return
		}

		manager.metrics.HandshakeEvents.WithLabelValues(metrics.EventPeerVerified).Inc()
		manager.logger.Info("peer verified", "channel", channel.id, "peer", peer.DisplayName())

		if err := channel.Send(protocol.NewAcknowledge()); err != nil {
			manager.logger.Warn("sending acknowledge failed", "channel", channel.id, "error", err)
		}
		manager.evaluate(channel)
	})
}

// handleAcknowledge records that the peer accepted our response.
func (manager *Manager) handleAcknowledge(channel *Channel) {
	channel.mutex.Lock()
	switch {
	case !channel.responseSent:
		channel.mutex.Unlock()
		manager.violation(channel, "acknowledge before our challenge response")
		return
	case channel.acknowledged:
		channel.mutex.Unlock()
		manager.logger.Debug("ignoring repeated acknowledge", "channel", channel.id)
		return
	}
	channel.acknowledged = true
	channel.mutex.Unlock()

	manager.evaluate(channel)
}

// evaluate fires the MutuallyAuthenticated callback the first time
// both directions are complete.
func (manager *Manager) evaluate(channel *Channel) {
	channel.mutex.Lock()
	if channel.readyFired || !channel.mutualLocked() {
		channel.mutex.Unlock()
		return
	}
	channel.readyFired = true
	channel.mutex.Unlock()

	manager.metrics.HandshakeEvents.WithLabelValues(metrics.EventMutuallyAuthed).Inc()
	manager.logger.Info("channel mutually authenticated",
		"channel", channel.id,
		"peer", channel.PeerName(),
	)
	manager.handler.MutuallyAuthenticated(channel)
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
)

// challengePrefix starts every challenge issued by GenerateChallenge.
const challengePrefix = "oertchan-challenge"

// challengeNonceSize is the number of random bytes in a challenge.
const challengeNonceSize = 32

// unverifiedMarker is appended to the display name of a peer that has
// not proven possession of its key.
const unverifiedMarker = " (unverified)"

// PeerIdentity is a remote party's claimed identity. The fingerprint is
// always derived from the public key, never taken from the peer. It is
// safe for concurrent use.
type PeerIdentity struct {
	fingerprint string
	publicKey   *ecdsa.PublicKey
	displayName string

	mutex            sync.Mutex
	verified         bool
	pendingChallenge string
}

// NewPeerIdentity derives the fingerprint of publicKey and assigns a
// display name that does not collide with existingNames.
func NewPeerIdentity(publicKey *ecdsa.PublicKey, proposedName string, existingNames []string) (*PeerIdentity, error) {
	fingerprint, err := Fingerprint(publicKey)
	if err != nil {
		return nil, err
	}
	return &PeerIdentity{
		fingerprint: fingerprint,
		publicKey:   publicKey,
		displayName: UniqueDisplayName(fingerprint, proposedName, existingNames),
	}, nil
}

// UniqueDisplayName returns name if no entry of existing equals it.
// Otherwise it appends the first n characters of suffixPool, starting
// at n=1 and growing by one per collision. If the pool runs out, a
// numeric counter follows the full pool.
func UniqueDisplayName(suffixPool, name string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, existingName := range existing {
		taken[existingName] = struct{}{}
	}

	candidate := name
	for length := 1; ; length++ {
		if _, collides := taken[candidate]; !collides {
			return candidate
		}
		if length <= len(suffixPool) {
			candidate = name + suffixPool[:length]
		} else {
			candidate = fmt.Sprintf("%s%s-%d", name, suffixPool, length-len(suffixPool))
		}
	}
}

// Fingerprint returns the hex SHA-384 fingerprint of the peer's key.
func (peer *PeerIdentity) Fingerprint() string { return peer.fingerprint }

// PublicKey returns the peer's verification key.
func (peer *PeerIdentity) PublicKey() *ecdsa.PublicKey { return peer.publicKey }

// RawDisplayName returns the locally unique name without the
// verification marker. Use DisplayName for anything shown to a user.
func (peer *PeerIdentity) RawDisplayName() string { return peer.displayName }

// DisplayName returns the name for presentation, marked as unverified
// until the peer has answered a challenge.
func (peer *PeerIdentity) DisplayName() string {
	if peer.Verified() {
		return peer.displayName
	}
	return peer.displayName + unverifiedMarker
}

// Verified reports whether the peer has answered a challenge correctly.
func (peer *PeerIdentity) Verified() bool {
	peer.mutex.Lock()
	defer peer.mutex.Unlock()
	return peer.verified
}

// HasPendingChallenge reports whether a challenge is outstanding.
func (peer *PeerIdentity) HasPendingChallenge() bool {
	peer.mutex.Lock()
	defer peer.mutex.Unlock()
	return peer.pendingChallenge != ""
}

// GenerateChallenge issues a fresh challenge bound to this peer's
// fingerprint and display name. It replaces any outstanding challenge;
// only the most recent one can be answered.
func (peer *PeerIdentity) GenerateChallenge() (string, error) {
	nonce := make([]byte, challengeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating challenge nonce: %w", err)
	}
	challenge := strings.Join([]string{challengePrefix, Hexlify(nonce), peer.fingerprint, peer.displayName}, "|")

	peer.mutex.Lock()
	peer.pendingChallenge = challenge
	peer.mutex.Unlock()
	return challenge, nil
}

// VerifyResponse checks signatureHex against the outstanding challenge.
// The challenge is consumed whatever the outcome, so a second call
// without a new GenerateChallenge returns false. Malformed input
// returns false.
func (peer *PeerIdentity) VerifyResponse(signatureHex string) bool {
	verified, _ := peer.CheckResponse(signatureHex)
	return verified
}

// CheckResponse is VerifyResponse that also tells a wrong answer apart
// from an answer with nothing to answer: it returns
// ErrNoPendingChallenge when no challenge was outstanding.
func (peer *PeerIdentity) CheckResponse(signatureHex string) (bool, error) {
	peer.mutex.Lock()
	challenge := peer.pendingChallenge
	peer.pendingChallenge = ""
	peer.mutex.Unlock()

	if challenge == "" {
		return false, ErrNoPendingChallenge
	}
	signature, err := Unhexlify(signatureHex)
	if err != nil {
		return false, nil
	}
	if !verify(peer.publicKey, challenge, signature) {
		return false, nil
	}

	peer.mutex.Lock()
	peer.verified = true
	peer.mutex.Unlock()
	return true, nil
}

// ChallengeFingerprint returns the fingerprint a challenge is bound
// to. ok is false for strings that are not in the challenge format.
// A peer answers only challenges bound to its own fingerprint.
func ChallengeFingerprint(challenge string) (fingerprint string, ok bool) {
	parts := strings.SplitN(challenge, "|", 4)
	if len(parts) != 4 || parts[0] != challengePrefix {
		return "", false
	}
	if len(parts[1]) != 2*challengeNonceSize {
		return "", false
	}
	if _, err := Unhexlify(parts[1]); err != nil {
		return "", false
	}
	return parts[2], parts[2] != ""
}

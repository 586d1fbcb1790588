// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
)

// generateKey is replaced in tests to simulate a provider failure.
var generateKey = func() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
}

// Identity is the local peer's signing identity. It is created once at
// startup and immutable afterwards, so it is safe for concurrent use.
type Identity struct {
	displayName  string
	fingerprint  string
	privateKey   *ecdsa.PrivateKey
	publicKeyHex string
}

// Create generates a fresh P-521 keypair and derives its fingerprint.
// Any failure is returned as a *KeyGenerationError.
func Create(displayName string) (*Identity, error) {
	privateKey, err := generateKey()
	if err != nil {
		return nil, &KeyGenerationError{Err: err}
	}
	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, &KeyGenerationError{Err: err}
	}
	fingerprint, err := Fingerprint(&privateKey.PublicKey)
	if err != nil {
		return nil, &KeyGenerationError{Err: err}
	}
	return &Identity{
		displayName:  displayName,
		fingerprint:  fingerprint,
		privateKey:   privateKey,
		publicKeyHex: Hexlify(der),
	}, nil
}

// Fingerprint returns the 96-character hex fingerprint of the public key.
func (identity *Identity) Fingerprint() string { return identity.fingerprint }

// DisplayName returns the name announced to peers.
func (identity *Identity) DisplayName() string { return identity.displayName }

// PublicKey returns the verification key.
func (identity *Identity) PublicKey() *ecdsa.PublicKey { return &identity.privateKey.PublicKey }

// PublicKeyHex returns the hex SubjectPublicKeyInfo sent as pubKey in
// the "initial" handshake message.
func (identity *Identity) PublicKeyHex() string { return identity.publicKeyHex }

// RespondToChallenge signs challenge and returns the hex signature.
//
// The challenge is opaque: any string is signed as given. A caller that
// passes strings received from a peer without checking them against
// the challenge format and the local fingerprint turns this method
// into a signing oracle. See [ChallengeFingerprint].
func (identity *Identity) RespondToChallenge(challenge string) (string, error) {
	signature, err := sign(identity.privateKey, challenge)
	if err != nil {
		return "", err
	}
	return Hexlify(signature), nil
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity holds the local signing identity of a peer and the
// claimed identities of remote peers.
//
// Keys are ECDSA P-521, the curve the browser peers generate through
// WebCrypto. A fingerprint is the lowercase hex SHA-384 digest of the
// DER-encoded SubjectPublicKeyInfo, 96 characters long, and is the only
// identifier trust is anchored to. Display names are cosmetic.
//
// Signatures cover the SHA-384 digest of the signed string and travel
// as hex of the fixed-width r||s encoding (IEEE P1363), which is what
// WebCrypto produces and accepts. DER conversion happens at the edge
// with cryptobyte.
//
// The challenge/response exchange between two peers:
//
//	peer := NewPeerIdentity(theirKey, "alice", existingNames)
//	challenge, _ := peer.GenerateChallenge()   // sent to them
//	response, _ := them.RespondToChallenge(challenge)
//	peer.VerifyResponse(response)              // true, peer.Verified() is now true
package identity

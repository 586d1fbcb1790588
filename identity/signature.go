// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Fingerprint returns the lowercase hex SHA-384 digest of the
// SubjectPublicKeyInfo encoding of key.
func Fingerprint(key *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	digest := sha512.Sum384(der)
	return Hexlify(digest[:]), nil
}

// ImportPublicKey parses a hex-encoded SubjectPublicKeyInfo as sent in
// the "initial" handshake message. Keys that are not ECDSA are
// rejected.
func ImportPublicKey(hexSPKI string) (*ecdsa.PublicKey, error) {
	der, err := Unhexlify(hexSPKI)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want ECDSA", parsed)
	}
	return key, nil
}

// scalarSize is the byte width of r and s for the key's curve.
func scalarSize(key *ecdsa.PublicKey) int {
	return (key.Curve.Params().BitSize + 7) / 8
}

// sign returns the P1363 encoding of an ECDSA signature over the
// SHA-384 digest of message.
func sign(key *ecdsa.PrivateKey, message string) ([]byte, error) {
	digest := sha512.Sum384([]byte(message))
	der, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, err
	}

	r, s := new(big.Int), new(big.Int)
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, cryptobyte_asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(r) || !inner.ReadASN1Integer(s) || !inner.Empty() {
		return nil, errors.New("malformed ASN.1 signature from signer")
	}

	size := scalarSize(&key.PublicKey)
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}

// verify checks a P1363 signature over the SHA-384 digest of message.
// It never panics on malformed input.
func verify(key *ecdsa.PublicKey, message string, signature []byte) bool {
	size := scalarSize(key)
	if len(signature) != 2*size {
		return false
	}
	r := new(big.Int).SetBytes(signature[:size])
	s := new(big.Int).SetBytes(signature[size:])
	if r.Sign() == 0 || s.Sign() == 0 {
		return false
	}

	var builder cryptobyte.Builder
	builder.AddASN1(cryptobyte_asn1.SEQUENCE, func(child *cryptobyte.Builder) {
		child.AddASN1BigInt(r)
		child.AddASN1BigInt(s)
	})
	der, err := builder.Bytes()
	if err != nil {
		return false
	}

	digest := sha512.Sum384([]byte(message))
	return ecdsa.VerifyASN1(key, digest[:], der)
}

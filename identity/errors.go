// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"fmt"
)

// ErrNoPendingChallenge is returned by [PeerIdentity.CheckResponse]
// when no challenge is outstanding, including when an earlier response
// already consumed it.
var ErrNoPendingChallenge = errors.New("identity: no outstanding challenge")

// KeyGenerationError is returned by [Create] when the crypto provider
// cannot produce or export a keypair. Without an identity a peer cannot
// participate, so callers treat this as fatal.
type KeyGenerationError struct {
	Err error
}

func (err *KeyGenerationError) Error() string {
	return fmt.Sprintf("identity: generating keypair: %v", err.Err)
}

func (err *KeyGenerationError) Unwrap() error {
	return err.Err
}

// FormatError is returned by [Unhexlify] for input that is not an
// even-length hex string.
type FormatError struct {
	// Length is the length of the rejected input. The input itself is
	// not retained; it usually comes from a remote peer.
	Length int

	// Reason describes the defect.
	Reason string
}

func (err *FormatError) Error() string {
	return fmt.Sprintf("identity: malformed hex (%d chars): %s", err.Length, err.Reason)
}

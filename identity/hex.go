// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import "encoding/hex"

// Hexlify returns the lowercase hex encoding of data. Empty input
// yields the empty string.
func Hexlify(data []byte) string {
	return hex.EncodeToString(data)
}

// Unhexlify decodes a hex string. Odd-length input and non-hex
// characters return a *FormatError.
func Unhexlify(text string) ([]byte, error) {
	if len(text)%2 != 0 {
		return nil, &FormatError{Length: len(text), Reason: "odd length"}
	}
	data, err := hex.DecodeString(text)
	if err != nil {
		return nil, &FormatError{Length: len(text), Reason: "invalid hex digit"}
	}
	return data, nil
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP body reads for JSON APIs.
//
// The rendezvous service is an untrusted third party from a peer's
// point of view, so every response body is read through a limit.
// Offers carry a full SDP with embedded candidates, which stays far
// below MaxResponseSize.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON response reads: 4 MiB.
const MaxResponseSize int64 = 4 << 20

// maxErrorExcerpt bounds how much of an error body ends up in an error
// message.
const maxErrorExcerpt = 512

// DecodeResponse reads body up to MaxResponseSize and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns a short excerpt of an error response for
// diagnostics. Read errors yield whatever was read, possibly "".
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorExcerpt))
	return string(data)
}

// DecodeRequest reads a request body up to limit bytes and
// JSON-decodes it into v.
func DecodeRequest(body io.Reader, limit int64, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(data)) > limit {
		return fmt.Errorf("request body exceeds %d bytes", limit)
	}
	return json.Unmarshal(data, v)
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the JSON envelope exchanged over a peer data
// channel and the total parser for it.
//
// An envelope is a JSON object with four independent, optional
// top-level keys:
//
//	{ "setPeerName": {"initial": {"pubKey", "displayName"}, "challenge", "response", "acknowledge": true},
//	  "message":     "chat text",
//	  "request":     {"url", "method": "GET"|"POST", "content"},
//	  "response":    {"content", "showPostForm"} }
//
// There is no version field. [ParseIncoming] never fails: it returns
// whatever it could extract plus an optional [Diagnostic] telling the
// caller what to log locally and what, if anything, to send back to
// the peer. Only request and response validation errors are ever
// reported to the peer; parser internals and handshake problems stay
// local.
package protocol

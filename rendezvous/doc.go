// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package rendezvous implements the HTTP service peers use to find each
// other, and the client for it.
//
// An offering peer POSTs its negotiation payload to /offer under its
// fingerprint and holds the request open. An accepting peer lists the
// waiting uids, fetches one offer from /describeoffer, and POSTs its
// answer to /accept, which completes the offerer's pending request.
// After [ServerConfig.OfferTimeout] without an answer the offer is
// withdrawn and the offerer gets 408, which means "post the same offer
// again".
//
// Payloads are opaque JSON documents. The server stores the offer's
// compact encoding and returns it as a JSON string:
//
//	POST /offer         {"uid": "…", "offer": {…}}          → {"answer": "<json>"}
//	GET  /listoffers                                        → {"uids": ["…"]}
//	GET  /describeoffer?uid=…                               → {"offer": "<json>"}
//	POST /accept        {"uidRemote": "…", "answer": {…}}   → {}
//
// Every endpoint answers CORS preflight requests and requires exactly
// one Content-Type header equal to application/json, so browser peers
// can use the same server.
package rendezvous

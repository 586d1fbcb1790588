// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the ordered, reliable message channels that
// peers talk over, and the negotiation that establishes them.
//
// A [Transport] is one bidirectional channel carrying text messages. It
// delivers inbound messages to a single callback, one at a time and in
// arrival order. Messages that arrive before the callback is installed
// are queued, not dropped, so a caller can finish its own bookkeeping
// before it starts reading.
//
// A [Negotiator] establishes transports through an opaque offer/answer
// exchange carried by some external signaling path (the rendezvous
// service in production). The offerer creates an [OutboundSession] and
// publishes its Offer; the answerer feeds that offer into an
// [InboundSession] and returns its Answer; each side then calls Connect
// to wait for the channel to open.
//
// [WebRTCNegotiator] uses pion/webrtc data channels in message mode with
// vanilla ICE: all candidates are gathered before the offer or answer is
// produced, so signaling needs exactly one round trip. The payloads are
// the JSON documents browser peers exchange:
//
//	{"offer":  {"type":"offer","sdp":"..."},  "candidates":[...]}
//	{"answer": {"type":"answer","sdp":"..."}, "candidates":[...]}
//
// [MemoryNegotiator] and [Pipe] provide in-process transports for tests.
package transport

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package peering

import "github.com/oertchan/oertchan/protocol"

// Handler receives application-level events from the Manager.
//
// Methods for one channel are called from that channel's delivery
// goroutine, in message order, except MutuallyAuthenticated, which may
// run on the verification goroutine. Methods for different channels may
// run concurrently.
type Handler interface {
	// MutuallyAuthenticated is called once when both directions of the
	// handshake have completed on channel.
	MutuallyAuthenticated(channel *Channel)

	// Message delivers a chat message.
	Message(channel *Channel, text string)

	// Request delivers a valid request. Invalid requests were already
	// answered with an error response.
	Request(channel *Channel, request protocol.Request)

	// Response delivers a response to an earlier request.
	Response(channel *Channel, response protocol.Response)

	// Unrecognized reports an envelope that was partly or wholly
	// unusable. Any peer-visible reply was already sent.
	Unrecognized(channel *Channel, diagnostic protocol.Diagnostic)
}

// NopHandler ignores every event. Embed it to implement only some
// methods.
type NopHandler struct{}

func (NopHandler) MutuallyAuthenticated(*Channel) {}
func (NopHandler) Message(*Channel, string) {}
func (NopHandler) Request(*Channel, protocol.Request) {}
func (NopHandler) Response(*Channel, protocol.Response) {}
func (NopHandler) Unrecognized(*Channel, protocol.Diagnostic) {}

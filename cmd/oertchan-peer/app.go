// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/oertchan/oertchan/identity"
	"github.com/oertchan/oertchan/peering"
	"github.com/oertchan/oertchan/protocol"
)

// Pages served to peers.
const (
	pathIndex = "/index"
	pathDM    = "/dm"

	greeting = "Check out [this cool link](/index)!!"
)

// app serves the peer's pages and prints chat traffic.
type app struct {
	identity *identity.Identity
	console  *console
	logger   *slog.Logger
}

var _ peering.Handler = (*app)(nil)

func (app *app) MutuallyAuthenticated(channel *peering.Channel) {
	peer := channel.Peer()
	app.console.Notice("%s is verified (%s)", peer.DisplayName(), peer.Fingerprint())
	app.reply(channel, protocol.NewMessage(greeting))
}

func (app *app) Message(channel *peering.Channel, text string) {
	app.console.Message(channel.PeerName(), channel.MutuallyAuthenticated(), text)
}

func (app *app) Request(channel *peering.Channel, request protocol.Request) {
	peerName := channel.PeerName()
	switch {
	case request.URL == pathIndex:
		app.reply(channel, protocol.NewResponse(fmt.Sprintf(
			"Hello, my name is %s. Nice talking to you, %s. [Send me a private message](%s).",
			app.identity.DisplayName(), peerName, pathDM), false))

	case request.URL == pathDM && request.Method == protocol.MethodGet:
		app.reply(channel, protocol.NewResponse("Use POST field below to send me private message.", true))

	case request.URL == pathDM && request.Method == protocol.MethodPost:
		content := request.Body()
		app.reply(channel, protocol.NewResponse(peerName+": "+content, true))
		app.console.PrivateMessage(peerName, channel.MutuallyAuthenticated(), content)

	default:
		app.reply(channel, protocol.NewResponse(fmt.Sprintf(
			"request: received %s request for %s", request.Method, request.URL), false))
	}
}

func (app *app) Response(channel *peering.Channel, response protocol.Response) {
	app.console.Response(channel.PeerName(), channel.MutuallyAuthenticated(), response.Content, response.ShowPostForm)
}

func (app *app) Unrecognized(channel *peering.Channel, diagnostic protocol.Diagnostic) {
	if diagnostic.LogToLocal != "" {
		app.console.Notice("unusable message from %s: %s", channel.PeerName(), diagnostic.LogToLocal)
	}
}

func (app *app) reply(channel *peering.Channel, envelope protocol.Envelope) {
	if err := channel.Send(envelope); err != nil {
		app.logger.Warn("reply failed", "channel", channel.ID(), "error", err)
	}
}

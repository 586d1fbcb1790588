// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package peering runs the authentication handshake over peer channels,
// keeps the registry of channels, and drives peer discovery through a
// rendezvous service.
//
// A [Manager] owns every [Channel]. Registering a transport sends the
// local identity announcement right away; from then on both sides run
// two independent challenge/response exchanges over the same channel:
//
//	A -> B  initial{pubKey, displayName}
//	B -> A  challenge (bound to A's fingerprint)
//	A -> B  response  (signature over the challenge)
//	B -> A  acknowledge
//
// and the same with the roles swapped. A channel is mutually
// authenticated once the peer answered our challenge correctly, we
// answered theirs, and they acknowledged our answer. The handler's
// MutuallyAuthenticated method fires exactly once per channel at that
// point, whichever exchange finishes last.
//
// Signature verification runs off the message path. A message that
// follows a challenge response on the wire can therefore be delivered
// while the peer still reads as unverified. Handlers that care must
// check [Channel.MutuallyAuthenticated] when a message arrives rather
// than infer it from message order.
//
// Handshake failures are logged and counted but never reported to the
// peer, and never close the channel: the channel just stays
// unauthenticated. Channels are not removed from the registry when they
// close; a closed channel is kept, marked closed, and skipped by peer
// selection.
//
// [Manager.RunOfferLoop] and [Manager.RunAcceptLoop] publish offers and
// accept offers on a fixed interval until their context is cancelled.
// At most one attempt of each kind is in flight at a time.
package peering

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Oertchan-peer is a headless oertchan peer with a terminal chat.
//
// It creates a fresh identity, then keeps offering and accepting data
// channels through the rendezvous server. Every channel runs the mutual
// authentication handshake. Lines typed on stdin are broadcast as chat
// messages; lines starting with a slash are commands:
//
//	/peers                 list channels and their handshake state
//	/get <n> <url>         send a GET request to channel n
//	/post <n> <url> <text> send a POST request to channel n
//
// Peers can browse this peer with requests: /index introduces it and
// /dm accepts private messages.
package main

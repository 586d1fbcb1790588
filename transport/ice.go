// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/oertchan/oertchan/lib/config"
)

// ICEConfig holds ICE server configuration for WebRTC PeerConnections.
type ICEConfig struct {
	// Servers is the list of ICE servers (STUN + TURN) to use during
	// candidate gathering. Order matters: pion tries them in sequence.
	Servers []webrtc.ICEServer
}

// ICEConfigFromConfig converts the configured STUN/TURN servers into
// pion entries. An empty list yields host candidates only, which is
// sufficient for same-machine and same-LAN peers.
func ICEConfigFromConfig(ice config.ICEConfig) ICEConfig {
	var servers []webrtc.ICEServer
	for _, server := range ice.Servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs, Username: server.Username}
		if server.Credential != "" {
			entry.Credential = server.Credential
		}
		servers = append(servers, entry)
	}
	return ICEConfig{Servers: servers}
}

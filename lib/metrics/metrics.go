// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus counters exported by the peer
// and the rendezvous service.
//
// Each [Metrics] owns a private registry instead of registering on the
// global default, so a process (or a test) can build as many as it
// needs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handshake event labels.
const (
	EventChallengeSent     = "challenge_sent"
	EventResponseSent      = "response_sent"
	EventPeerVerified      = "peer_verified"
	EventVerifyFailed      = "verify_failed"
	EventMutuallyAuthed    = "mutually_authenticated"
	EventProtocolViolation = "protocol_violation"
)

// Metrics holds every collector.
type Metrics struct {
	registry *prometheus.Registry

	ChannelsRegistered prometheus.Counter
	HandshakeEvents    *prometheus.CounterVec
	CodecDiagnostics   *prometheus.CounterVec
	BroadcastFailures  prometheus.Counter
	DiscoveryAttempts  *prometheus.CounterVec

	RendezvousRequests      *prometheus.CounterVec
	RendezvousPendingOffers prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ChannelsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "oertchan_channels_registered_total",
			Help: "Data channels registered with the channel manager.",
		}),
		HandshakeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oertchan_handshake_events_total",
			Help: "Authentication handshake transitions and failures.",
		}, []string{"event"}),
		CodecDiagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oertchan_codec_diagnostics_total",
			Help: "Diagnostics produced while parsing inbound envelopes.",
		}, []string{"kind"}),
		BroadcastFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "oertchan_broadcast_failures_total",
			Help: "Per-channel send failures during broadcast.",
		}),
		DiscoveryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oertchan_discovery_attempts_total",
			Help: "Offer and accept loop iterations by outcome.",
		}, []string{"loop", "outcome"}),

		RendezvousRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oertchan_rendezvous_requests_total",
			Help: "Rendezvous HTTP requests by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		RendezvousPendingOffers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oertchan_rendezvous_pending_offers",
			Help: "Offers currently waiting for an answer.",
		}),
	}
}

// Registry returns the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

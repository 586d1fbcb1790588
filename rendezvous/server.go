// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oertchan/oertchan/lib/clock"
	"github.com/oertchan/oertchan/lib/metrics"
	"github.com/oertchan/oertchan/lib/netutil"
)

const contentTypeJSON = "application/json"

// Server defaults.
const (
	DefaultOfferTimeout  = 15 * time.Second
	DefaultRatePerSecond = 5
	DefaultBurst         = 20
	DefaultMaxBodyBytes  = 1 << 20
)

// ServerConfig configures a Server. The zero value is usable.
type ServerConfig struct {
	// OfferTimeout is how long POST /offer waits for an answer before
	// withdrawing the offer and replying 408.
	OfferTimeout time.Duration

	// RatePerSecond and Burst size the per-client token bucket.
	// A negative RatePerSecond disables rate limiting.
	RatePerSecond float64
	Burst         int

	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the rendezvous HTTP handler.
type Server struct {
	offerTimeout time.Duration
	maxBodyBytes int64
	clock        clock.Clock
	metrics      *metrics.Metrics
	logger       *slog.Logger
	limiter      *clientLimiter

	store *offerStore
	mux   *http.ServeMux
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a Server with an empty offer store.
func NewServer(config ServerConfig) *Server {
	server := &Server{
		offerTimeout: config.OfferTimeout,
		maxBodyBytes: config.MaxBodyBytes,
		clock:        config.Clock,
		metrics:      config.Metrics,
		logger:       config.Logger,
		store:        newOfferStore(),
		mux:          http.NewServeMux(),
	}
	if server.offerTimeout <= 0 {
		server.offerTimeout = DefaultOfferTimeout
	}
	if server.maxBodyBytes <= 0 {
		server.maxBodyBytes = DefaultMaxBodyBytes
	}
	if server.clock == nil {
		server.clock = clock.Real()
	}
	if server.metrics == nil {
		server.metrics = metrics.New()
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if config.RatePerSecond >= 0 {
		perSecond, burst := config.RatePerSecond, config.Burst
		if perSecond == 0 {
			perSecond = DefaultRatePerSecond
		}
		if burst <= 0 {
			burst = DefaultBurst
		}
		server.limiter = newClientLimiter(perSecond, burst, server.clock)
	}

	server.mux.Handle("/offer", server.endpoint("offer", []string{http.MethodPost}, server.handleOffer))
	server.mux.Handle("/listoffers", server.endpoint("listoffers", []string{http.MethodGet}, server.handleListOffers))
	server.mux.Handle("/describeoffer", server.endpoint("describeoffer", []string{http.MethodGet}, server.handleDescribeOffer))
	server.mux.Handle("/accept", server.endpoint("accept", []string{http.MethodPost}, server.handleAccept))
	server.mux.Handle("/metrics", server.metrics.Handler())
	return server
}

func (server *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	server.mux.ServeHTTP(writer, request)
}

// PendingOffers returns the number of offers waiting for an answer.
func (server *Server) PendingOffers() int { return server.store.len() }

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (recorder *statusRecorder) WriteHeader(code int) {
	recorder.code = code
	recorder.ResponseWriter.WriteHeader(code)
}

// endpoint wraps serve with request accounting, rate limiting, and the
// CORS and Content-Type policy.
func (server *Server) endpoint(name string, methods []string, serve http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		recorder := &statusRecorder{ResponseWriter: writer, code: http.StatusOK}
		defer func() {
			server.metrics.RendezvousRequests.WithLabelValues(name, strconv.Itoa(recorder.code)).Inc()
		}()

		client := clientAddress(request)
		server.logger.Debug("rendezvous request",
			"method", request.Method,
			"endpoint", name,
			"client", client,
		)

		if server.limiter != nil && !server.limiter.allow(client) {
			recorder.Header().Set("Retry-After", "1")
			http.Error(recorder, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		if !allowCORS(recorder, request, methods) {
			return
		}
		serve(recorder, request)
	})
}

// allowCORS answers preflight requests and enforces the method and
// Content-Type policy. It reports whether the request should be served.
func allowCORS(writer http.ResponseWriter, request *http.Request, methods []string) bool {
	header := writer.Header()
	if request.Method == http.MethodOptions {
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Headers", "Content-Type")
		header.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
		return false
	}
	if !slices.Contains(methods, request.Method) {
		http.Error(writer, "not accepting this method", http.StatusBadRequest)
		return false
	}

	contentTypes, present := request.Header["Content-Type"]
	switch {
	case !present:
		http.Error(writer, "missing Content-Type", http.StatusBadRequest)
		return false
	case len(contentTypes) != 1:
		http.Error(writer, "want exactly one Content-Type", http.StatusBadRequest)
		return false
	case contentTypes[0] != contentTypeJSON:
		http.Error(writer, `want Content-Type "application/json"`, http.StatusBadRequest)
		return false
	}

	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
	return true
}

// handleOffer publishes the offer and holds the request until it is
// answered, the client goes away, or the offer times out.
func (server *Server) handleOffer(writer http.ResponseWriter, request *http.Request) {
	var body offerRequest
	if err := netutil.DecodeRequest(request.Body, server.maxBodyBytes, &body); err != nil {
		http.Error(writer, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.UID == "" {
		http.Error(writer, "need uid", http.StatusBadRequest)
		return
	}
	offer, err := compactPayload(body.Offer)
	if err != nil {
		http.Error(writer, "need offer", http.StatusBadRequest)
		return
	}

	pending := server.store.publish(body.UID, offer)
	server.metrics.RendezvousPendingOffers.Set(float64(server.store.len()))
	defer func() {
		server.store.withdraw(body.UID, pending)
		server.metrics.RendezvousPendingOffers.Set(float64(server.store.len()))
	}()

	server.logger.Info("offer waiting for an answer", "uid", shortUID(body.UID))
	select {
	case answer := <-pending.answer:
		server.logger.Info("offer answered", "uid", shortUID(body.UID))
		writeJSON(writer, offerResponse{Answer: answer})
	case <-request.Context().Done():
		server.logger.Info("offerer went away", "uid", shortUID(body.UID))
	case <-server.clock.After(server.offerTimeout):
		server.store.withdraw(body.UID, pending)
		select {
		case answer := <-pending.answer:
			server.logger.Info("offer answered at the deadline", "uid", shortUID(body.UID))
			writeJSON(writer, offerResponse{Answer: answer})
		default:
			server.logger.Info("offer timed out", "uid", shortUID(body.UID), "timeout", server.offerTimeout)
			http.Error(writer, "no answer yet, please retry", http.StatusRequestTimeout)
		}
	}
}

func (server *Server) handleListOffers(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, listOffersResponse{UIDs: server.store.uids()})
}

func (server *Server) handleDescribeOffer(writer http.ResponseWriter, request *http.Request) {
	uids, present := request.URL.Query()["uid"]
	if !present {
		http.Error(writer, "need uid parameter", http.StatusBadRequest)
		return
	}
	if len(uids) != 1 {
		http.Error(writer, "need exactly one uid parameter", http.StatusBadRequest)
		return
	}
	offer, ok := server.store.describe(uids[0])
	if !ok {
		http.Error(writer, "no offer found for this uid", http.StatusNotFound)
		return
	}
	writeJSON(writer, describeOfferResponse{Offer: offer})
}

func (server *Server) handleAccept(writer http.ResponseWriter, request *http.Request) {
	var body acceptRequest
	if err := netutil.DecodeRequest(request.Body, server.maxBodyBytes, &body); err != nil {
		http.Error(writer, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.UIDRemote == "" {
		http.Error(writer, "need uidRemote", http.StatusBadRequest)
		return
	}
	answer, err := compactPayload(body.Answer)
	if err != nil {
		http.Error(writer, "need answer", http.StatusBadRequest)
		return
	}

	if !server.store.relay(body.UIDRemote, answer) {
		http.Error(writer, "no offer waiting under this uid", http.StatusNotFound)
		return
	}
	server.logger.Info("answer relayed", "uid", shortUID(body.UIDRemote))
	writeJSON(writer, struct{}{})
}

// compactPayload returns raw without insignificant whitespace. A
// missing or null payload is an error.
func compactPayload(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("payload missing")
	}
	var buffer bytes.Buffer
	if err := json.Compact(&buffer, raw); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", contentTypeJSON)
	json.NewEncoder(writer).Encode(value)
}

func shortUID(uid string) string {
	if len(uid) > 12 {
		return uid[:12]
	}
	return uid
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oertchan/oertchan/lib/clock"
	"github.com/oertchan/oertchan/lib/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, config ServerConfig) (*Server, *httptest.Server, *Client) {
	t.Helper()
	if config.Logger == nil {
		config.Logger = discardLogger()
	}
	if config.RatePerSecond == 0 {
		config.RatePerSecond = -1
	}
	server := NewServer(config)
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:    httpServer.URL,
		HTTPClient: httpServer.Client(),
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return server, httpServer, client
}

func TestServer_OfferAcceptRoundTrip(t *testing.T) {
	server, _, client := newTestServer(t, ServerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	offer := `{"offer":{"type":"offer","sdp":"v=0"},"candidates":[]}`
	type result struct {
		answer string
		err    error
	}
	answered := make(chan result, 1)
	go func() {
		answer, err := client.Offer(ctx, "alice", offer)
		answered <- result{answer, err}
	}()

	var uids []string
	for len(uids) == 0 {
		var err error
		if uids, err = client.ListOffers(ctx); err != nil {
			t.Fatalf("ListOffers: %v", err)
		}
		if ctx.Err() != nil {
			t.Fatal("offer never listed")
		}
	}
	if len(uids) != 1 || uids[0] != "alice" {
		t.Fatalf("uids = %v, want [alice]", uids)
	}
	if got := server.PendingOffers(); got != 1 {
		t.Errorf("PendingOffers = %d, want 1", got)
	}

	described, err := client.DescribeOffer(ctx, "alice")
	if err != nil {
		t.Fatalf("DescribeOffer: %v", err)
	}
	if described != offer {
		t.Errorf("DescribeOffer = %s, want %s", described, offer)
	}

	answer := `{"answer":{"type":"answer","sdp":"v=0"},"candidates":[]}`
	if err := client.Accept(ctx, "alice", answer); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	got := testutil.RequireReceive(t, answered, 5*time.Second, "offer reply")
	if got.err != nil {
		t.Fatalf("Offer: %v", got.err)
	}
	if got.answer != answer {
		t.Errorf("Offer answer = %s, want %s", got.answer, answer)
	}

	if uids, err := client.ListOffers(ctx); err != nil || len(uids) != 0 {
		t.Errorf("after answer, ListOffers = %v, %v, want empty", uids, err)
	}
	if err := client.Accept(ctx, "alice", answer); !IsStatus(err, http.StatusNotFound) {
		t.Errorf("second Accept = %v, want 404", err)
	}
}

// Whitespace in payloads is not significant; the server stores the
// compact form.
func TestServer_CompactsPayloads(t *testing.T) {
	_, _, client := newTestServer(t, ServerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go client.Offer(ctx, "bob", "{ \"offer\" : { \"sdp\" : \"x\" } }")
	for {
		offer, err := client.DescribeOffer(ctx, "bob")
		if err == nil {
			if offer != `{"offer":{"sdp":"x"}}` {
				t.Errorf("DescribeOffer = %s, want compact form", offer)
			}
			return
		}
		if ctx.Err() != nil {
			t.Fatal("offer never published")
		}
	}
}

func TestServer_OfferTimesOut(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	server := NewServer(ServerConfig{Clock: fake, RatePerSecond: -1, Logger: discardLogger()})

	request := httptest.NewRequest(http.MethodPost, "/offer", strings.NewReader(`{"uid":"alice","offer":{"x":1}}`))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.ServeHTTP(recorder, request)
		close(done)
	}()

	fake.WaitForTimers(1)
	if got := server.PendingOffers(); got != 1 {
		t.Fatalf("PendingOffers = %d, want 1", got)
	}
	fake.Advance(DefaultOfferTimeout - time.Second)
	testutil.RequireNoReceive(t, done, 20*time.Millisecond, "offer returned before the timeout")

	fake.Advance(time.Second)
	testutil.RequireClosed(t, done, 5*time.Second, "offer did not time out")

	if recorder.Code != http.StatusRequestTimeout {
		t.Errorf("status = %d, want 408", recorder.Code)
	}
	if got := server.PendingOffers(); got != 0 {
		t.Errorf("PendingOffers after timeout = %d, want 0", got)
	}
}

func TestClient_OfferRetriesAfterTimeout(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	server := NewServer(ServerConfig{Clock: fake, RatePerSecond: -1, Logger: discardLogger()})
	var offerPosts atomic.Int32
	httpServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/offer" {
			offerPosts.Add(1)
		}
		server.ServeHTTP(writer, request)
	}))
	defer httpServer.Close()
	client, err := NewClient(ClientConfig{BaseURL: httpServer.URL, HTTPClient: httpServer.Client(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	answered := make(chan string, 1)
	go func() {
		answer, err := client.Offer(ctx, "alice", `{"n":1}`)
		if err != nil {
			t.Errorf("Offer: %v", err)
		}
		answered <- answer
	}()

	fake.WaitForTimers(1)
	fake.Advance(DefaultOfferTimeout)
	fake.WaitForTimers(1)

	if got := offerPosts.Load(); got != 2 {
		t.Errorf("offer posted %d times, want 2", got)
	}
	if err := client.Accept(ctx, "alice", `{"a":1}`); err != nil {
		t.Fatalf("Accept after retry: %v", err)
	}
	if got := testutil.RequireReceive(t, answered, 5*time.Second, "offer reply"); got != `{"a":1}` {
		t.Errorf("answer = %s, want {\"a\":1}", got)
	}
}

func TestServer_RequestPolicy(t *testing.T) {
	server := NewServer(ServerConfig{RatePerSecond: -1, Logger: discardLogger()})

	tests := []struct {
		name        string
		method      string
		target      string
		contentType []string
		body        string
		wantCode    int
		wantBody    string
	}{
		{"list empty", "GET", "/listoffers", []string{"application/json"}, "", 200, `{"uids":[]}`},
		{"wrong method", "POST", "/listoffers", []string{"application/json"}, "{}", 400, "not accepting this method"},
		{"missing content type", "GET", "/listoffers", nil, "", 400, "missing Content-Type"},
		{"two content types", "GET", "/listoffers", []string{"application/json", "application/json"}, "", 400, "exactly one"},
		{"wrong content type", "GET", "/listoffers", []string{"text/plain"}, "", 400, "application/json"},
		{"describe without uid", "GET", "/describeoffer", []string{"application/json"}, "", 400, "need uid parameter"},
		{"describe two uids", "GET", "/describeoffer?uid=a&uid=b", []string{"application/json"}, "", 400, "exactly one uid"},
		{"describe unknown", "GET", "/describeoffer?uid=nobody", []string{"application/json"}, "", 404, "no offer found"},
		{"accept unknown", "POST", "/accept", []string{"application/json"}, `{"uidRemote":"nobody","answer":{}}`, 404, "no offer waiting"},
		{"accept without uid", "POST", "/accept", []string{"application/json"}, `{"answer":{}}`, 400, "need uidRemote"},
		{"accept without answer", "POST", "/accept", []string{"application/json"}, `{"uidRemote":"x"}`, 400, "need answer"},
		{"offer malformed", "POST", "/offer", []string{"application/json"}, `{"uid":`, 400, "invalid request body"},
		{"offer without uid", "POST", "/offer", []string{"application/json"}, `{"offer":{}}`, 400, "need uid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			for _, value := range tt.contentType {
				request.Header.Add("Content-Type", value)
			}
			recorder := httptest.NewRecorder()
			server.ServeHTTP(recorder, request)

			if recorder.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %q)", recorder.Code, tt.wantCode, recorder.Body.String())
			}
			if !strings.Contains(recorder.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", recorder.Body.String(), tt.wantBody)
			}
			if strings.Contains(recorder.Body.String(), "invalid character") || strings.Contains(recorder.Body.String(), "unexpected end") {
				t.Errorf("body leaks decoder details: %q", recorder.Body.String())
			}
		})
	}
}

func TestServer_Preflight(t *testing.T) {
	server := NewServer(ServerConfig{RatePerSecond: -1, Logger: discardLogger()})
	request := httptest.NewRequest(http.MethodOptions, "/offer", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", recorder.Code)
	}
	header := recorder.Header()
	if got := header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := header.Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Errorf("Allow-Headers = %q, want Content-Type", got)
	}
	if got := header.Get("Access-Control-Allow-Methods"); got != "POST" {
		t.Errorf("Allow-Methods = %q, want POST", got)
	}
}

func TestServer_RateLimit(t *testing.T) {
	fake := clock.Fake(time.Unix(1000, 0))
	server := NewServer(ServerConfig{Clock: fake, RatePerSecond: 1, Burst: 2, Logger: discardLogger()})

	list := func() int {
		request := httptest.NewRequest(http.MethodGet, "/listoffers", nil)
		request.Header.Set("Content-Type", "application/json")
		recorder := httptest.NewRecorder()
		server.ServeHTTP(recorder, request)
		return recorder.Code
	}

	for i := range 2 {
		if got := list(); got != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i, got)
		}
	}
	if got := list(); got != http.StatusTooManyRequests {
		t.Errorf("third request: status %d, want 429", got)
	}
	fake.Advance(time.Second)
	if got := list(); got != http.StatusOK {
		t.Errorf("after refill: status %d, want 200", got)
	}
}

func TestServer_Metrics(t *testing.T) {
	server := NewServer(ServerConfig{RatePerSecond: -1, Logger: discardLogger()})

	request := httptest.NewRequest(http.MethodGet, "/describeoffer?uid=nobody", nil)
	request.Header.Set("Content-Type", "application/json")
	server.ServeHTTP(httptest.NewRecorder(), request)

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", recorder.Code)
	}
	want := `oertchan_rendezvous_requests_total{code="404",endpoint="describeoffer"} 1`
	if !strings.Contains(recorder.Body.String(), want) {
		t.Errorf("metrics output missing %s", want)
	}
}

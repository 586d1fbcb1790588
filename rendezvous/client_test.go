// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"https", "https://oertchan.example", false},
		{"trailing slash", "http://localhost:8080/", false},
		{"empty", "", true},
		{"no scheme", "oertchan.example", true},
		{"websocket", "ws://oertchan.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(ClientConfig{BaseURL: tt.baseURL})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient(%q) error = %v, wantErr %v", tt.baseURL, err, tt.wantErr)
			}
		})
	}
}

func TestClient_Errors(t *testing.T) {
	_, _, client := newTestServer(t, ServerConfig{})
	ctx := context.Background()

	if _, err := client.DescribeOffer(ctx, "nobody"); !errors.Is(err, ErrOfferNotFound) {
		t.Errorf("DescribeOffer(unknown) = %v, want ErrOfferNotFound", err)
	}
	if err := client.Accept(ctx, "nobody", `{}`); !errors.Is(err, ErrOfferNotFound) {
		t.Errorf("Accept(unknown) = %v, want ErrOfferNotFound", err)
	}
	if _, err := client.Offer(ctx, "alice", "not json"); err == nil {
		t.Error("Offer accepted a payload that is not JSON")
	}
	if err := client.Accept(ctx, "alice", "not json"); err == nil {
		t.Error("Accept accepted a payload that is not JSON")
	}
}

func TestClient_StatusError(t *testing.T) {
	httpServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("request Content-Type = %q", got)
		}
		http.Error(writer, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer httpServer.Close()

	client, err := NewClient(ClientConfig{BaseURL: httpServer.URL, HTTPClient: httpServer.Client(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.ListOffers(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("ListOffers error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable || statusErr.Body != "down for maintenance" || statusErr.Path != "/listoffers" {
		t.Errorf("StatusError = %+v", statusErr)
	}

	// Only 408 is retried.
	if _, err := client.Offer(context.Background(), "alice", `{}`); !IsStatus(err, http.StatusServiceUnavailable) {
		t.Errorf("Offer error = %v, want 503", err)
	}
}

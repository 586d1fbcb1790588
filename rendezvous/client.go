// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/oertchan/oertchan/lib/netutil"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the rendezvous server, e.g. "https://oertchan.herokuapp.com".
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is
	// used. It must not impose a timeout shorter than the server's
	// offer timeout, or every offer fails before the 408 arrives.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to a rendezvous server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the server at config.BaseURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("rendezvous: BaseURL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("rendezvous: BaseURL %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type offerRequest struct {
	UID   string          `json:"uid"`
	Offer json.RawMessage `json:"offer"`
}

type offerResponse struct {
	Answer string `json:"answer"`
}

type listOffersResponse struct {
	UIDs []string `json:"uids"`
}

type describeOfferResponse struct {
	Offer string `json:"offer"`
}

type acceptRequest struct {
	UIDRemote string          `json:"uidRemote"`
	Answer    json.RawMessage `json:"answer"`
}

// Offer publishes offer under uid and waits for an answer. A 408 from
// the server means the offer was withdrawn unanswered; Offer posts the
// same payload again until an answer arrives, ctx is done, or another
// error occurs. offer must be a JSON document.
func (c *Client) Offer(ctx context.Context, uid, offer string) (string, error) {
	if !json.Valid([]byte(offer)) {
		return "", errors.New("rendezvous: offer is not valid JSON")
	}
	body := offerRequest{UID: uid, Offer: json.RawMessage(offer)}

	for attempt := 1; ; attempt++ {
		c.logger.Debug("posting offer", "attempt", attempt)

		var response offerResponse
		err := c.doRequest(ctx, http.MethodPost, "/offer", nil, body, &response)
		if IsStatus(err, http.StatusRequestTimeout) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			continue
		}
		if err != nil {
			return "", err
		}
		if response.Answer == "" {
			return "", errors.New("rendezvous: offer reply has no answer")
		}
		return response.Answer, nil
	}
}

// ListOffers returns the uids of offers waiting for an answer.
func (c *Client) ListOffers(ctx context.Context) ([]string, error) {
	var response listOffersResponse
	if err := c.doRequest(ctx, http.MethodGet, "/listoffers", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.UIDs, nil
}

// DescribeOffer returns the offer waiting under uid, or
// ErrOfferNotFound.
func (c *Client) DescribeOffer(ctx context.Context, uid string) (string, error) {
	var response describeOfferResponse
	err := c.doRequest(ctx, http.MethodGet, "/describeoffer", url.Values{"uid": {uid}}, nil, &response)
	if IsStatus(err, http.StatusNotFound) {
		return "", fmt.Errorf("%w: %w", ErrOfferNotFound, err)
	}
	if err != nil {
		return "", err
	}
	return response.Offer, nil
}

// Accept relays answer to the peer waiting under uidRemote. answer
// must be a JSON document. Returns ErrOfferNotFound if nobody waits
// under uidRemote any more.
func (c *Client) Accept(ctx context.Context, uidRemote, answer string) error {
	if !json.Valid([]byte(answer)) {
		return errors.New("rendezvous: answer is not valid JSON")
	}
	body := acceptRequest{UIDRemote: uidRemote, Answer: json.RawMessage(answer)}
	err := c.doRequest(ctx, http.MethodPost, "/accept", nil, body, nil)
	if IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %w", ErrOfferNotFound, err)
	}
	return err
}

// doRequest performs one JSON request. Every request carries the
// Content-Type header, GETs included, because the server requires it.
// A nil result discards the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, requestBody, result any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("rendezvous: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("rendezvous: creating request: %w", err)
	}
	request.Header.Set("Content-Type", contentTypeJSON)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("rendezvous: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &StatusError{
			Method: method,
			Path:   path,
			Code:   response.StatusCode,
			Body:   strings.TrimSpace(netutil.ErrorBody(response.Body)),
		}
	}
	if result == nil {
		return nil
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("rendezvous: decoding %s %s response: %w", method, path, err)
	}
	return nil
}

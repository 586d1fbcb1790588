// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
)

// Methods accepted in a request.
const (
	MethodGet  = "GET"
	MethodPost = "POST"
)

// Envelope is one message on a data channel. Absent sections are nil.
type Envelope struct {
	SetPeerName *SetPeerName `json:"setPeerName,omitempty"`
	Message     *string      `json:"message,omitempty"`
	Request     *Request     `json:"request,omitempty"`
	Response    *Response    `json:"response,omitempty"`
}

// SetPeerName carries the handshake sub-messages. Several may be set in
// one envelope; they are processed in field order.
type SetPeerName struct {
	Initial     *Initial `json:"initial,omitempty"`
	Challenge   string   `json:"challenge,omitempty"`
	Response    string   `json:"response,omitempty"`
	Acknowledge bool     `json:"acknowledge,omitempty"`
}

// Initial announces the sender's public key and proposed display name.
type Initial struct {
	// PubKey is the hex-encoded SubjectPublicKeyInfo.
	PubKey      string `json:"pubKey"`
	DisplayName string `json:"displayName"`
}

// Request asks the peer for a page.
type Request struct {
	URL    string `json:"url"`
	Method string `json:"method"`

	// Content is required for POST and nil when absent.
	Content *string `json:"content,omitempty"`
}

// Body returns the request content, or "" when there is none.
func (request Request) Body() string {
	if request.Content == nil {
		return ""
	}
	return *request.Content
}

// Response answers a request or reports a request error.
type Response struct {
	Content      string `json:"content"`
	ShowPostForm bool   `json:"showPostForm,omitempty"`
}

// IsEmpty reports whether no section is set.
func (envelope Envelope) IsEmpty() bool {
	return envelope.SetPeerName == nil && envelope.Message == nil &&
		envelope.Request == nil && envelope.Response == nil
}

// Marshal encodes an envelope for sending. HTML characters are not
// escaped; the browser peers render text themselves.
func Marshal(envelope Envelope) (string, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(envelope); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buffer.Bytes(), []byte("\n"))), nil
}

// NewMessage returns a chat message envelope.
func NewMessage(text string) Envelope {
	return Envelope{Message: &text}
}

// NewInitial returns the identity announcement sent when a channel is
// registered.
func NewInitial(publicKeyHex, displayName string) Envelope {
	return Envelope{SetPeerName: &SetPeerName{Initial: &Initial{PubKey: publicKeyHex, DisplayName: displayName}}}
}

// NewChallenge returns a challenge envelope.
func NewChallenge(challenge string) Envelope {
	return Envelope{SetPeerName: &SetPeerName{Challenge: challenge}}
}

// NewChallengeResponse returns the signed answer to a challenge.
func NewChallengeResponse(signatureHex string) Envelope {
	return Envelope{SetPeerName: &SetPeerName{Response: signatureHex}}
}

// NewAcknowledge returns the envelope confirming a verified response.
func NewAcknowledge() Envelope {
	return Envelope{SetPeerName: &SetPeerName{Acknowledge: true}}
}

// NewRequest returns a request envelope. content is ignored for GET.
func NewRequest(method, url, content string) Envelope {
	request := &Request{URL: url, Method: method}
	if method == MethodPost {
		request.Content = &content
	}
	return Envelope{Request: request}
}

// NewResponse returns a response envelope.
func NewResponse(content string, showPostForm bool) Envelope {
	return Envelope{Response: &Response{Content: content, ShowPostForm: showPostForm}}
}

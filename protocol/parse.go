// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// notAString replaces values that have no faithful string form.
const notAString = "<not a string>"

// DiagnosticKind classifies a Diagnostic for logs and metrics.
type DiagnosticKind string

const (
	KindUnparsable    DiagnosticKind = "unparsable"
	KindNotObject     DiagnosticKind = "not_object"
	KindBadRequest    DiagnosticKind = "bad_request"
	KindBadResponse   DiagnosticKind = "bad_response"
	KindUnknownFields DiagnosticKind = "unknown_fields"
)

// Diagnostic is the advice ParseIncoming gives about a defective
// envelope. LogToLocal is for the local log only. SendToPeer, when
// non-empty, is sent back on the same channel as the content of a
// response.
type Diagnostic struct {
	Kind       DiagnosticKind
	LogToLocal string
	SendToPeer string
}

// DiagnosticReply returns the envelope carrying SendToPeer.
func DiagnosticReply(diagnostic Diagnostic) Envelope {
	return NewResponse(diagnostic.SendToPeer, false)
}

// ParseIncoming parses one raw channel message. It is total: any input
// yields an envelope and at most one diagnostic.
//
// Syntax errors and invalid request or response sections return an
// empty envelope. Unknown top-level keys are reported but do not
// discard the sections that parsed. Unknown keys nested in a section
// are dropped silently.
func ParseIncoming(raw string) (Envelope, *Diagnostic) {
	value, err := decode(raw)
	if err != nil {
		return Envelope{}, &Diagnostic{Kind: KindUnparsable, LogToLocal: "unparsable: " + raw}
	}
	object, ok := value.(map[string]any)
	if !ok {
		return Envelope{}, &Diagnostic{Kind: KindNotObject, LogToLocal: "not an object: " + raw}
	}

	var envelope Envelope

	if section, present := object["setPeerName"]; present {
		envelope.SetPeerName = parseSetPeerName(section)
		delete(object, "setPeerName")
	}

	if section, present := object["message"]; present {
		message := SafeString(section)
		envelope.Message = &message
		delete(object, "message")
	}

	if section, present := object["request"]; present {
		request, complaint := parseRequest(section)
		if complaint != "" {
			return Envelope{}, &Diagnostic{Kind: KindBadRequest, SendToPeer: complaint}
		}
		envelope.Request = request
		delete(object, "request")
	}

	if section, present := object["response"]; present {
		response, complaint := parseResponse(section)
		if complaint != "" {
			return Envelope{}, &Diagnostic{Kind: KindBadResponse, LogToLocal: complaint}
		}
		envelope.Response = response
		delete(object, "response")
	}

	if len(object) > 0 {
		names := make([]string, 0, len(object))
		for name := range object {
			names = append(names, name)
		}
		slices.Sort(names)
		return envelope, &Diagnostic{
			Kind:       KindUnknownFields,
			LogToLocal: "unknown fields: " + strings.Join(names, ", "),
		}
	}

	return envelope, nil
}

// decode parses exactly one JSON value, keeping numbers in their
// literal form.
func decode(raw string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return value, nil
}

// parseSetPeerName keeps the four known handshake keys and drops
// everything else, including values of the wrong type.
func parseSetPeerName(section any) *SetPeerName {
	fields, ok := section.(map[string]any)
	if !ok {
		return nil
	}

	var setPeerName SetPeerName
	if initial, ok := fields["initial"].(map[string]any); ok {
		setPeerName.Initial = &Initial{
			PubKey:      stringField(initial, "pubKey"),
			DisplayName: stringField(initial, "displayName"),
		}
	}
	if _, present := fields["challenge"]; present {
		setPeerName.Challenge = SafeString(fields["challenge"])
	}
	if _, present := fields["response"]; present {
		setPeerName.Response = SafeString(fields["response"])
	}
	if acknowledge, ok := fields["acknowledge"].(bool); ok {
		setPeerName.Acknowledge = acknowledge
	}

	if setPeerName == (SetPeerName{}) {
		return nil
	}
	return &setPeerName
}

// parseRequest validates a request. A non-empty complaint is meant for
// the peer.
func parseRequest(section any) (*Request, string) {
	fields, _ := section.(map[string]any)

	method := stringField(fields, "method")
	if method != MethodGet && method != MethodPost {
		return nil, fmt.Sprintf("request: unknown method %q", method)
	}

	url, present := fields["url"]
	if !present || url == nil || SafeString(url) == "" {
		return nil, "request: needs url"
	}

	request := &Request{URL: SafeString(url), Method: method}
	if content, present := fields["content"]; present {
		text := SafeString(content)
		request.Content = &text
	}
	if method == MethodPost && request.Content == nil {
		return nil, "request: POST needs content"
	}
	return request, ""
}

// parseResponse validates a response. A non-empty complaint is for the
// local log only.
func parseResponse(section any) (*Response, string) {
	fields, _ := section.(map[string]any)

	content, present := fields["content"]
	if !present || content == nil || SafeString(content) == "" {
		return nil, "response: needs content"
	}
	response := &Response{Content: SafeString(content)}
	if showPostForm, ok := fields["showPostForm"].(bool); ok {
		response.ShowPostForm = showPostForm
	}
	return response, ""
}

// stringField returns SafeString of fields[key], or "" if the key is
// absent.
func stringField(fields map[string]any, key string) string {
	value, present := fields[key]
	if !present {
		return ""
	}
	return SafeString(value)
}

// SafeString converts a decoded JSON value to a string without
// trusting its type: null becomes "null", strings keep their text,
// numbers take their shortest round-trip form (1.50 becomes "1.5",
// 1e2 becomes "100"), and anything else becomes "<not a string>".
func SafeString(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case string:
		return typed
	case json.Number:
		number, err := typed.Float64()
		if err != nil {
			// Out of float64 range; keep the text.
			return typed.String()
		}
		return formatNumber(number)
	case float64:
		return formatNumber(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		return notAString
	}
}

// formatNumber renders a number the way browser peers print one:
// plain decimal between 1e-6 and 1e21, exponent form outside it.
func formatNumber(number float64) string {
	if number == 0 {
		return "0"
	}
	magnitude := math.Abs(number)
	if magnitude >= 1e21 || magnitude < 1e-6 {
		text := strconv.FormatFloat(number, 'e', -1, 64)
		mantissa, exponent, _ := strings.Cut(text, "e")
		sign, digits := exponent[:1], strings.TrimLeft(exponent[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(number, 'f', -1, 64)
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx reply from the rendezvous server. Callers
// can use errors.As to inspect the status:
//
//	var statusErr *StatusError
//	if errors.As(err, &statusErr) && statusErr.Code == http.StatusTooManyRequests { ... }
type StatusError struct {
	// Method and Path identify the failed request.
	Method string
	Path   string
	// Code is the HTTP status code.
	Code int
	// Body is an excerpt of the response body.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rendezvous: %s %s: %d %s: %s", e.Method, e.Path, e.Code, http.StatusText(e.Code), e.Body)
}

// ErrOfferNotFound is returned by DescribeOffer and Accept when the uid
// has no waiting offer, typically because it was answered or withdrawn
// in the meantime.
var ErrOfferNotFound = errors.New("rendezvous: no offer waiting under this uid")

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == code
	}
	return false
}

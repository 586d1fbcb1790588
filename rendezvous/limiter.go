// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/oertchan/oertchan/lib/clock"
)

// limiterIdleTimeout is how long a client's bucket is kept after its
// last request.
const limiterIdleTimeout = 10 * time.Minute

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	limit rate.Limit
	burst int
	clock clock.Clock

	mutex     sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int, clk clock.Clock) *clientLimiter {
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clock:   clk,
		buckets: make(map[string]*bucket),
	}
}

// allow reports whether the client may make one more request now.
func (limiter *clientLimiter) allow(client string) bool {
	now := limiter.clock.Now()

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	if now.Sub(limiter.lastPrune) > limiterIdleTimeout {
		for key, entry := range limiter.buckets {
			if now.Sub(entry.lastSeen) > limiterIdleTimeout {
				delete(limiter.buckets, key)
			}
		}
		limiter.lastPrune = now
	}

	entry, ok := limiter.buckets[client]
	if !ok {
		entry = &bucket{limiter: rate.NewLimiter(limiter.limit, limiter.burst)}
		limiter.buckets[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// clientAddress is the host part of the request's remote address.
// Forwarding headers are not trusted.
func clientAddress(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}

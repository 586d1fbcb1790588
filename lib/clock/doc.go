// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the discovery
// loops and the rendezvous server's long-poll waits.
//
// Production code holds a [Clock] and calls Now and After on it instead
// of the time package. [Real] is backed by the time package. [Fake]
// only moves when a test calls Advance, which makes "wait five seconds
// and poll again" testable without sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go manager.RunAcceptLoop(ctx)
//	c.WaitForTimers(1)        // the loop is parked on its interval
//	c.Advance(5 * time.Second) // start the next iteration
package clock

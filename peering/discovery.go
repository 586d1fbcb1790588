// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package peering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Rendezvous is the discovery service the offer and accept loops talk
// to. The rendezvous package's Client implements it.
type Rendezvous interface {
	// Offer publishes offer under uid and blocks until a peer answers.
	Offer(ctx context.Context, uid, offer string) (answer string, err error)

	// ListOffers returns the uids with a published offer.
	ListOffers(ctx context.Context) ([]string, error)

	// DescribeOffer returns the offer published under uid.
	DescribeOffer(ctx context.Context, uid string) (string, error)

	// Accept relays answer to the peer that published uidRemote.
	Accept(ctx context.Context, uidRemote, answer string) error
}

// Discovery loop outcome labels.
const (
	outcomeConnected = "connected"
	outcomeIdle      = "idle"
	outcomeFailed    = "failed"
)

// ErrNoCandidate is returned by AcceptOnce when every advertised offer
// is our own or belongs to a peer we are already connected to.
var ErrNoCandidate = errors.New("no new peer to accept")

// SelectRemotePeer picks one uid to accept, excluding the local
// fingerprint and every peer claimed on an open channel. The choice is
// uniform among the rest. ok is false when nothing is left.
//
// Closed channels stay registered but do not exclude their peer, so a
// peer whose channel dropped can be reconnected. Excluding every
// registered channel would lock such a peer out for the session.
func (manager *Manager) SelectRemotePeer(uids []string) (string, bool) {
	excluded := map[string]bool{manager.identity.Fingerprint(): true}
	for _, fingerprint := range manager.ConnectedFingerprints() {
		excluded[fingerprint] = true
	}

	var candidates []string
	for _, uid := range uids {
		if uid == "" || excluded[uid] {
			continue
		}
		excluded[uid] = true
		candidates = append(candidates, uid)
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[manager.intN(len(candidates))], true
}

func (manager *Manager) requireDiscovery() error {
	if manager.negotiator == nil || manager.rendezvous == nil {
		return errors.New("peering: discovery needs a Negotiator and a Rendezvous")
	}
	return nil
}

// OfferOnce publishes one offer under the local fingerprint, waits for
// an answer, and registers the resulting channel.
func (manager *Manager) OfferOnce(ctx context.Context) error {
	if err := manager.requireDiscovery(); err != nil {
		return err
	}

	session, err := manager.negotiator.NewOutbound(ctx)
	if err != nil {
		return fmt.Errorf("creating offer: %w", err)
	}
	defer session.Close()

	manager.logger.Debug("publishing offer", "bytes", len(session.Offer()))
	answer, err := manager.rendezvous.Offer(ctx, manager.identity.Fingerprint(), session.Offer())
	if err != nil {
		return fmt.Errorf("publishing offer: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, manager.connectTimeout)
	defer cancel()
	conn, err := session.Connect(connectCtx, answer)
	if err != nil {
		return fmt.Errorf("connecting to answering peer: %w", err)
	}
	manager.Register(conn)
	return nil
}

// AcceptOnce picks one advertised offer, answers it, and registers the
// resulting channel. It returns ErrNoCandidate when there is nothing
// new to accept.
func (manager *Manager) AcceptOnce(ctx context.Context) error {
	if err := manager.requireDiscovery(); err != nil {
		return err
	}

	uids, err := manager.rendezvous.ListOffers(ctx)
	if err != nil {
		return fmt.Errorf("listing offers: %w", err)
	}
	uidRemote, ok := manager.SelectRemotePeer(uids)
	if !ok {
		return ErrNoCandidate
	}
	manager.logger.Debug("accepting offer", "remote", shortFingerprint(uidRemote), "advertised", len(uids))

	offer, err := manager.rendezvous.DescribeOffer(ctx, uidRemote)
	if err != nil {
		return fmt.Errorf("fetching offer of %s: %w", shortFingerprint(uidRemote), err)
	}

	session, err := manager.negotiator.NewInbound(ctx, offer)
	if err != nil {
		return fmt.Errorf("answering offer of %s: %w", shortFingerprint(uidRemote), err)
	}
	defer session.Close()

	if err := manager.rendezvous.Accept(ctx, uidRemote, session.Answer()); err != nil {
		return fmt.Errorf("relaying answer to %s: %w", shortFingerprint(uidRemote), err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, manager.connectTimeout)
	defer cancel()
	conn, err := session.Connect(connectCtx)
	if err != nil {
		return fmt.Errorf("connecting to offering peer %s: %w", shortFingerprint(uidRemote), err)
	}
	manager.Register(conn)
	return nil
}

// RunOfferLoop calls OfferOnce until ctx is done, pausing OfferInterval
// after each attempt. Failures are logged and retried.
func (manager *Manager) RunOfferLoop(ctx context.Context) {
	manager.runLoop(ctx, "offer", manager.offerInterval, manager.OfferOnce)
}

// RunAcceptLoop calls AcceptOnce until ctx is done, pausing
// AcceptInterval after each attempt.
func (manager *Manager) RunAcceptLoop(ctx context.Context) {
	manager.runLoop(ctx, "accept", manager.acceptInterval, manager.AcceptOnce)
}

// Run runs both discovery loops and returns when ctx is done and both
// have stopped.
func (manager *Manager) Run(ctx context.Context) {
	var waitGroup sync.WaitGroup
	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		manager.RunOfferLoop(ctx)
	}()
	go func() {
		defer waitGroup.Done()
		manager.RunAcceptLoop(ctx)
	}()
	waitGroup.Wait()
}

// runLoop runs attempt strictly sequentially, so at most one iteration
// per loop is in flight.
func (manager *Manager) runLoop(ctx context.Context, loop string, interval time.Duration, attempt func(context.Context) error) {
	logger := manager.logger.With("loop", loop)
	logger.Info("discovery loop started", "interval", interval)
	defer logger.Info("discovery loop stopped")

	for {
		err := attempt(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err == nil:
			manager.metrics.DiscoveryAttempts.WithLabelValues(loop, outcomeConnected).Inc()
		case errors.Is(err, ErrNoCandidate):
			manager.metrics.DiscoveryAttempts.WithLabelValues(loop, outcomeIdle).Inc()
			logger.Debug("no new offers available")
		default:
			manager.metrics.DiscoveryAttempts.WithLabelValues(loop, outcomeFailed).Inc()
			logger.Warn("discovery attempt failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-manager.clock.After(interval):
		}
	}
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"slices"
	"sync"
)

// pendingOffer is one offer waiting for an answer. answer has capacity
// 1 and receives at most one value.
type pendingOffer struct {
	offer  string
	answer chan string
}

// offerStore holds the waiting offers keyed by uid. A uid holds at most
// one offer; publishing again replaces the previous one.
type offerStore struct {
	mutex  sync.Mutex
	offers map[string]*pendingOffer
}

func newOfferStore() *offerStore {
	return &offerStore{offers: make(map[string]*pendingOffer)}
}

func (store *offerStore) publish(uid, offer string) *pendingOffer {
	pending := &pendingOffer{offer: offer, answer: make(chan string, 1)}
	store.mutex.Lock()
	store.offers[uid] = pending
	store.mutex.Unlock()
	return pending
}

// withdraw removes pending if it is still the offer under uid. After
// withdraw returns, no relay can reach pending.
func (store *offerStore) withdraw(uid string, pending *pendingOffer) {
	store.mutex.Lock()
	if store.offers[uid] == pending {
		delete(store.offers, uid)
	}
	store.mutex.Unlock()
}

func (store *offerStore) describe(uid string) (string, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	pending, ok := store.offers[uid]
	if !ok {
		return "", false
	}
	return pending.offer, true
}

// uids returns the waiting uids in sorted order, never nil.
func (store *offerStore) uids() []string {
	store.mutex.Lock()
	uids := make([]string, 0, len(store.offers))
	for uid := range store.offers {
		uids = append(uids, uid)
	}
	store.mutex.Unlock()
	slices.Sort(uids)
	return uids
}

// relay hands answer to the offer under uid and removes it, so each
// offer is answered once. Reports false if no offer waits under uid.
func (store *offerStore) relay(uid, answer string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	pending, ok := store.offers[uid]
	if !ok {
		return false
	}
	delete(store.offers, uid)
	pending.answer <- answer
	return true
}

func (store *offerStore) len() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.offers)
}

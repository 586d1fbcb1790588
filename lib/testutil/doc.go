// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so individual tests never call time.After themselves.
// The timeout only prevents a hung test; correctness never depends on
// it.
//
// All helpers call t.Fatalf on failure.
package testutil

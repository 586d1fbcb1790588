// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration shared by the oertchan peer
// and the rendezvous service.
//
// Configuration comes from exactly one file, named either by the
// OERTCHAN_CONFIG environment variable ([Load]) or by a --config flag
// ([LoadFile]). There is no discovery of ~/.config or similar; running
// without a file means running on [Default]. The file is YAML; files
// ending in .json or .jsonc are accepted too, with comments and
// trailing commas stripped first.
//
// A file may carry development and production sections that override
// base values when [Config].Environment matches. Production without an
// explicit section switches logging to JSON.
//
// ${VAR} and ${VAR:-default} are expanded in URL and listen-address
// fields after loading. No other environment variables override
// values.
package config

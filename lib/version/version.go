// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for oertchan binaries.
//
// Values are injected at build time:
//
//	go build -ldflags "-X github.com/oertchan/oertchan/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags.
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns "<version> (<commit>, <build time>)".
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Print writes the --version line for binary to stdout.
func Print(binary string) {
	fmt.Printf("%s %s %s/%s\n", binary, Info(), runtime.GOOS, runtime.GOARCH)
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package version

import "testing"

func TestInfo(t *testing.T) {
	previousVersion, previousCommit, previousTime := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = previousVersion, previousCommit, previousTime })

	Version, GitCommit, BuildTime = "1.2.3", "abc1234", "2026-10-18T00:00:00Z"
	if got, want := Info(), "1.2.3 (abc1234, 2026-10-18T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}

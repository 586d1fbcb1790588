// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/oertchan/oertchan/lib/config"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		format   string
		wantJSON bool
	}{
		{"json", true},
		{"text", false},
		// A buffer is not a terminal.
		{"auto", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buffer bytes.Buffer
			New(&buffer, config.LogConfig{Level: "info", Format: tt.format}).Info("hello", "peer", "alice")

			line := strings.TrimSpace(buffer.String())
			var record map[string]any
			isJSON := json.Unmarshal([]byte(line), &record) == nil
			if isJSON != tt.wantJSON {
				t.Fatalf("output %q: JSON = %v, want %v", line, isJSON, tt.wantJSON)
			}
			if !strings.Contains(line, "alice") {
				t.Errorf("output %q missing attribute", line)
			}
		})
	}
}

func TestNew_Level(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(&buffer, config.LogConfig{Level: "warn", Format: "text"})

	logger.Info("suppressed")
	logger.Warn("kept")

	output := buffer.String()
	if strings.Contains(output, "suppressed") {
		t.Errorf("info record written at warn level: %q", output)
	}
	if !strings.Contains(output, "kept") {
		t.Errorf("warn record missing: %q", output)
	}
}

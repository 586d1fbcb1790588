// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog loggers used by oertchan binaries.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/oertchan/oertchan/lib/config"
)

// New creates a logger writing to w at the configured level.
//
// Format "text" and "json" select the handler directly. Format "auto"
// (or empty) uses text when w is a terminal and JSON otherwise, so
// piped output stays machine-parseable:
//
//	logger := logging.New(os.Stderr, cfg.Log).With("binary", "oertchan-peer")
func New(w io.Writer, log config.LogConfig) *slog.Logger {
	options := &slog.HandlerOptions{Level: log.SlogLevel()}

	var handler slog.Handler
	switch log.Format {
	case "text":
		handler = slog.NewTextHandler(w, options)
	case "json":
		handler = slog.NewJSONHandler(w, options)
	default:
		if isTerminal(w) {
			handler = slog.NewTextHandler(w, options)
		} else {
			handler = slog.NewJSONHandler(w, options)
		}
	}
	return slog.New(handler)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/oertchan/oertchan/peering"
	"github.com/oertchan/oertchan/protocol"
)

// chat reads lines from input until EOF or ctx is done. Plain lines are
// broadcast; slash lines are commands.
func chat(ctx context.Context, input io.Reader, manager *peering.Manager, console *console) error {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			runCommand(line, manager, console)
			continue
		}
		delivered := manager.Broadcast(protocol.NewMessage(line))
		if delivered == 0 {
			console.Notice("nobody is connected yet")
		}
	}
	return scanner.Err()
}

func runCommand(line string, manager *peering.Manager, console *console) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/peers":
		channels := manager.Channels()
		if len(channels) == 0 {
			console.Notice("no channels yet")
			return
		}
		for index, channel := range channels {
			status := channel.State().String()
			if channel.Closed() {
				status = "closed"
			}
			console.Notice("%d  %s  %s", index+1, channel.PeerName(), status)
		}

	case "/get":
		if len(fields) != 3 {
			console.Notice("usage: /get <n> <url>")
			return
		}
		sendRequest(manager, console, fields[1], protocol.NewRequest(protocol.MethodGet, fields[2], ""))

	case "/post":
		if len(fields) < 4 {
			console.Notice("usage: /post <n> <url> <text>")
			return
		}
		_, rest := cutField(line)
		_, rest = cutField(rest)
		_, text := cutField(rest)
		sendRequest(manager, console, fields[1], protocol.NewRequest(protocol.MethodPost, fields[2], text))

	default:
		console.Notice("unknown command %s (try /peers, /get, /post)", fields[0])
	}
}

func sendRequest(manager *peering.Manager, console *console, position string, envelope protocol.Envelope) {
	index, err := strconv.Atoi(position)
	channels := manager.Channels()
	if err != nil || index < 1 || index > len(channels) {
		console.Notice("no channel %s (see /peers)", position)
		return
	}
	channel := channels[index-1]
	if err := channel.Send(envelope); err != nil {
		console.Notice("sending to %s failed: %v", channel.PeerName(), err)
	}
}

// cutField splits s into its first whitespace-separated field and the
// remainder, keeping the remainder's inner spacing.
func cutField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		return s, ""
	}
	return s[:end], strings.TrimLeftFunc(s[end:], unicode.IsSpace)
}

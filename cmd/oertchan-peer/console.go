// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// console renders chat events for the terminal. Styles degrade to plain
// text when out is not a color terminal.
type console struct {
	mutex sync.Mutex
	out   io.Writer

	verified   lipgloss.Style
	unverified lipgloss.Style
	private    lipgloss.Style
	response   lipgloss.Style
	notice     lipgloss.Style
}

func newConsole(out io.Writer) *console {
	renderer := lipgloss.NewRenderer(out)
	return &console{
		out:        out,
		verified:   renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		unverified: renderer.NewStyle().Foreground(lipgloss.Color("11")),
		private:    renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		response:   renderer.NewStyle().Foreground(lipgloss.Color("12")),
		notice:     renderer.NewStyle().Faint(true),
	}
}

func (console *console) println(line string) {
	console.mutex.Lock()
	defer console.mutex.Unlock()
	fmt.Fprintln(console.out, line)
}

func (console *console) peer(name string, authenticated bool) string {
	if authenticated {
		return console.verified.Render(name)
	}
	return console.unverified.Render(name)
}

// Message prints a chat message from a peer.
func (console *console) Message(from string, authenticated bool, text string) {
	console.println(console.peer(from, authenticated) + ": " + text)
}

// PrivateMessage prints a message posted to /dm.
func (console *console) PrivateMessage(from string, authenticated bool, text string) {
	console.println(console.private.Render("[Private Message]") + " " + console.peer(from, authenticated) + ": " + text)
}

// Response prints the answer to one of our requests.
func (console *console) Response(from string, authenticated bool, content string, showPostForm bool) {
	line := console.peer(from, authenticated) + " " + console.response.Render("> "+content)
	if showPostForm {
		line += console.notice.Render(" (reply with /post)")
	}
	console.println(line)
}

// Notice prints a status line.
func (console *console) Notice(format string, args ...any) {
	console.println(console.notice.Render(fmt.Sprintf(format, args...)))
}

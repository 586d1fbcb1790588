// Copyright 2026 The Oertchan Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "sync"

// inbox serializes delivery of inbound messages to a handler that may
// be installed late. A single goroutine per inbox delivers messages in
// push order and, after close, fires the close handler once. Pushing
// never blocks on the handler.
type inbox struct {
	mutex        sync.Mutex
	wake         *sync.Cond
	queue        []string
	handler      func(string)
	closeHandler func()
	closed       bool
	finished     bool
}

func newInbox() *inbox {
	box := &inbox{}
	box.wake = sync.NewCond(&box.mutex)
	go box.run()
	return box
}

// push queues text. Messages pushed after close are dropped.
func (box *inbox) push(text string) {
	box.mutex.Lock()
	defer box.mutex.Unlock()
	if box.closed {
		return
	}
	box.queue = append(box.queue, text)
	box.wake.Signal()
}

func (box *inbox) setHandler(handler func(string)) {
	box.mutex.Lock()
	defer box.mutex.Unlock()
	box.handler = handler
	box.wake.Signal()
}

func (box *inbox) setCloseHandler(handler func()) {
	box.mutex.Lock()
	if box.finished {
		box.mutex.Unlock()
		if handler != nil {
			handler()
		}
		return
	}
	box.closeHandler = handler
	box.mutex.Unlock()
}

// close stops accepting messages. Queued messages are still delivered
// if a handler is installed; otherwise they are discarded.
func (box *inbox) close() {
	box.mutex.Lock()
	defer box.mutex.Unlock()
	box.closed = true
	box.wake.Signal()
}

func (box *inbox) run() {
	box.mutex.Lock()
	defer box.mutex.Unlock()

	for {
		switch {
		case box.handler != nil && len(box.queue) > 0:
			text := box.queue[0]
			box.queue[0] = ""
			box.queue = box.queue[1:]
			handler := box.handler
			box.mutex.Unlock()
			handler(text)
			box.mutex.Lock()

		case box.closed:
			box.queue = nil
			box.finished = true
			if closeHandler := box.closeHandler; closeHandler != nil {
				box.mutex.Unlock()
				closeHandler()
				box.mutex.Lock()
			}
			return

		default:
			box.wake.Wait()
		}
	}
}

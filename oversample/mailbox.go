// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package oversample

import (
	"fmt"
	"sync"
)

// Pair is a filtered sample of both wipers of a pot.
type Pair struct {
	S1 uint16
	S2 uint16
}

func (p Pair) String() string {
	return fmt.Sprintf("(%d, %d)", p.S1, p.S2)
}

// Mailbox is a single-slot handoff between a producer and a consumer.
//
// Post never blocks and replaces an unread pair. Take returns the pending
// pair, if any, and clears the slot. C signals that a pair is pending.
type Mailbox struct {
	mu      sync.Mutex
	pair    Pair
	ready   bool
	dropped uint64
	notify  chan struct{}
}

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

// Post publishes p, overwriting any pair not taken yet.
func (m *Mailbox) Post(p Pair) {
	m.mu.Lock()
	if m.ready {
		m.dropped++
	}
	m.pair = p
	m.ready = true
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Take returns the pending pair and clears the slot. ok is false when no
// pair was pending.
func (m *Mailbox) Take() (p Pair, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return Pair{}, false
	}
	m.ready = false
	return m.pair, true
}

// C returns a channel that receives a value after a Post. A receive on it
// does not guarantee that Take will succeed, as another Take may have
// emptied the slot meanwhile.
func (m *Mailbox) C() <-chan struct{} {
	return m.notify
}

// Dropped returns how many pairs were overwritten before being taken.
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

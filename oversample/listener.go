// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package oversample

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
)

// AnalogReporter is a board that pushes analog readings for its pins, as a
// Firmata client does.
type AnalogReporter interface {
	SetAnalogPinReporting(pin uint8, report bool) error
	SetAnalogIOMessageListener(pin uint8, ch chan uint16) (release func(), err error)
}

// ListenerSource oversamples two analog pins reported by an AnalogReporter.
//
// Each pin fills its own window. A pin that completes its window is marked
// ready; once both are ready the pair is posted and both marks are cleared.
type ListenerSource struct {
	r          AnalogReporter
	pin1, pin2 uint8
	mb         *Mailbox
	shift      uint

	mu       sync.Mutex
	releases []func()
	shutdown chan struct{}
	done     chan struct{}
}

// NewListenerSource registers listeners for pin1 and pin2 on r and enables
// their reporting. Samples are averaged over 1<<shift reports.
func NewListenerSource(r AnalogReporter, pin1, pin2 uint8, mb *Mailbox, shift uint) (*ListenerSource, error) {
	l := &ListenerSource{r: r, pin1: pin1, pin2: pin2, mb: mb, shift: shift}
	c1 := make(chan uint16, 16)
	c2 := make(chan uint16, 16)
	for _, p := range []struct {
		pin uint8
		ch  chan uint16
	}{{pin1, c1}, {pin2, c2}} {
		release, err := r.SetAnalogIOMessageListener(p.pin, p.ch)
		if err != nil {
			l.release()
			return nil, fmt.Errorf("oversample: pin %d listener: %w", p.pin, err)
		}
		l.releases = append(l.releases, release)
		if err := r.SetAnalogPinReporting(p.pin, true); err != nil {
			l.release()
			return nil, fmt.Errorf("oversample: pin %d reporting: %w", p.pin, err)
		}
	}
	l.shutdown = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(c1, c2)
	return l, nil
}

func (l *ListenerSource) run(c1, c2 <-chan uint16) {
	defer close(l.done)
	a1 := NewAccumulator(l.shift)
	a2 := NewAccumulator(l.shift)
	var p Pair
	var ready1, ready2 bool
	for {
		select {
		case <-l.shutdown:
			return
		case raw := <-c1:
			if v, ok := a1.Add(raw); ok {
				p.S1, ready1 = v, true
			}
		case raw := <-c2:
			if v, ok := a2.Add(raw); ok {
				p.S2, ready2 = v, true
			}
		}
		if ready1 && ready2 {
			ready1, ready2 = false, false
			l.mb.Post(p)
		}
	}
}

func (l *ListenerSource) release() {
	for _, r := range l.releases {
		r()
	}
	l.releases = nil
}

// Halt disables reporting on both pins, releases the listeners and stops
// the goroutine. Implements conn.Resource.
func (l *ListenerSource) Halt() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shutdown == nil {
		return nil
	}
	var err error
	for _, pin := range []uint8{l.pin1, l.pin2} {
		if e := l.r.SetAnalogPinReporting(pin, false); e != nil && err == nil {
			err = fmt.Errorf("oversample: pin %d reporting: %w", pin, e)
		}
	}
	l.release()
	// Listeners are gone, so the board no longer sends on the channels.
	close(l.shutdown)
	<-l.done
	l.shutdown = nil
	return err
}

func (l *ListenerSource) String() string {
	return fmt.Sprintf("oversample: analog pins A%d/A%d", l.pin1, l.pin2)
}

var _ conn.Resource = &ListenerSource{}

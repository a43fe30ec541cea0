// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package oversample

import (
	"errors"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/analog"
)

func TestAccumulator(t *testing.T) {
	a := NewAccumulator(DefaultShift)
	if a.Window() != 32 {
		t.Fatalf("Window() = %d, want 32", a.Window())
	}
	for i := 0; i < 31; i++ {
		if _, ok := a.Add(1000); ok {
			t.Fatalf("window completed after %d conversions", i+1)
		}
	}
	v, ok := a.Add(1000)
	if !ok || v != 1000 {
		t.Errorf("Add() = %d, %t; want 1000, true", v, ok)
	}
	// A new window starts from scratch.
	for i := 0; i < 16; i++ {
		a.Add(0)
	}
	for i := 0; i < 15; i++ {
		a.Add(4095)
	}
	v, ok = a.Add(4095)
	if !ok || v != 2047 {
		t.Errorf("Add() = %d, %t; want 2047, true", v, ok)
	}
}

func TestAccumulatorReset(t *testing.T) {
	a := NewAccumulator(1)
	a.Add(100)
	a.Reset()
	if _, ok := a.Add(300); ok {
		t.Fatal("Reset() did not drop the partial window")
	}
	if v, ok := a.Add(500); !ok || v != 400 {
		t.Errorf("Add() = %d, %t; want 400, true", v, ok)
	}
}

func TestAccumulatorLimits(t *testing.T) {
	a := NewAccumulator(40)
	if a.Window() != 1<<16 {
		t.Fatalf("Window() = %d, want shift capped at 16", a.Window())
	}
	var v uint16
	var ok bool
	for i := 0; i < a.Window(); i++ {
		v, ok = a.Add(0xffff)
	}
	if !ok || v != 0xffff {
		t.Errorf("full scale window = %d, %t", v, ok)
	}
	if v, ok := NewAccumulator(0).Add(7); !ok || v != 7 {
		t.Errorf("shift 0 must pass through, got %d, %t", v, ok)
	}
}

func TestMailbox(t *testing.T) {
	m := NewMailbox()
	if _, ok := m.Take(); ok {
		t.Fatal("Take() on an empty mailbox succeeded")
	}
	m.Post(Pair{1, 2})
	m.Post(Pair{3, 4})
	select {
	case <-m.C():
	default:
		t.Fatal("no notification after Post")
	}
	p, ok := m.Take()
	if !ok || p != (Pair{3, 4}) {
		t.Errorf("Take() = %s, %t; want the latest pair", p, ok)
	}
	if _, ok := m.Take(); ok {
		t.Error("Take() did not clear the slot")
	}
	if m.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", m.Dropped())
	}
}

func TestMailboxConcurrent(t *testing.T) {
	m := NewMailbox()
	const n = 1000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			m.Post(Pair{S1: uint16(i), S2: uint16(i)})
		}
	}()
	last := uint16(0)
	for last != n {
		<-m.C()
		if p, ok := m.Take(); ok {
			if p.S1 != p.S2 {
				t.Fatalf("torn pair %s", p)
			}
			if p.S1 <= last {
				t.Fatalf("pair %s went backwards from %d", p, last)
			}
			last = p.S1
		}
	}
	wg.Wait()
}

// fakeADC returns a fixed reading, or an error.
type fakeADC struct {
	mu  sync.Mutex
	raw int32
	err error
	n   int
}

func (f *fakeADC) Read() (analog.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.err != nil {
		return analog.Sample{}, f.err
	}
	return analog.Sample{Raw: f.raw}, nil
}

func TestSource(t *testing.T) {
	ch1 := &fakeADC{raw: 1000}
	ch2 := &fakeADC{raw: 3000}
	mb := NewMailbox()
	s, err := NewSource(ch1, ch2, mb, &Opts{Interval: time.Millisecond, Shift: 2})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Halt()

	select {
	case <-mb.C():
	case <-time.After(5 * time.Second):
		t.Fatal("no pair posted")
	}
	p, ok := mb.Take()
	if !ok || p != (Pair{1000, 3000}) {
		t.Errorf("Take() = %s, %t", p, ok)
	}
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Err(); n != 0 {
		t.Errorf("Err() = %d failures", n)
	}
	if len(s.String()) == 0 {
		t.Error("invalid String() result")
	}
}

func TestSourceReadError(t *testing.T) {
	bad := errors.New("bus error")
	mb := NewMailbox()
	s, err := NewSource(&fakeADC{err: bad}, &fakeADC{}, mb, &Opts{Interval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if n, err := s.Err(); n > 0 {
			if !errors.Is(err, bad) {
				t.Errorf("Err() = %v, want wrapped bus error", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("read error never reported")
		}
		time.Sleep(time.Millisecond)
	}
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
	if _, ok := mb.Take(); ok {
		t.Error("a pair was posted despite read errors")
	}
}

func TestNewSourceInvalid(t *testing.T) {
	if _, err := NewSource(&fakeADC{}, &fakeADC{}, NewMailbox(), &Opts{}); err == nil {
		t.Error("zero interval accepted")
	}
}

func TestReadPair(t *testing.T) {
	p, err := ReadPair(&fakeADC{raw: -3}, &fakeADC{raw: 1234})
	if err != nil || p != (Pair{0, 1234}) {
		t.Errorf("ReadPair() = %s, %v", p, err)
	}
	bad := errors.New("nack")
	if _, err := ReadPair(&fakeADC{}, &fakeADC{err: bad}); !errors.Is(err, bad) {
		t.Errorf("ReadPair() = %v, want wrapped nack", err)
	}
}

func TestRawToSample(t *testing.T) {
	for _, tt := range []struct {
		raw  int32
		want uint16
	}{{-5, 0}, {0, 0}, {4095, 4095}, {70000, 0xffff}} {
		if got := rawToSample(tt.raw); got != tt.want {
			t.Errorf("rawToSample(%d) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

// fakeReporter records listener registrations like a Firmata client.
type fakeReporter struct {
	mu        sync.Mutex
	listeners map[uint8]chan uint16
	reporting map[uint8]bool
	released  int
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{listeners: map[uint8]chan uint16{}, reporting: map[uint8]bool{}}
}

func (f *fakeReporter) SetAnalogPinReporting(pin uint8, report bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reporting[pin] = report
	return nil
}

func (f *fakeReporter) SetAnalogIOMessageListener(pin uint8, ch chan uint16) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.listeners[pin]; ok {
		return nil, errors.New("listener already set")
	}
	f.listeners[pin] = ch
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, pin)
		f.released++
	}, nil
}

func (f *fakeReporter) send(pin uint8, v uint16) {
	f.mu.Lock()
	ch := f.listeners[pin]
	f.mu.Unlock()
	ch <- v
}

// drained waits until the source goroutine received every value sent on pin.
func (f *fakeReporter) drained(t *testing.T, pin uint8) {
	t.Helper()
	f.mu.Lock()
	ch := f.listeners[pin]
	f.mu.Unlock()
	deadline := time.Now().Add(5 * time.Second)
	for len(ch) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pin %d never drained", pin)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestListenerSource(t *testing.T) {
	r := newFakeReporter()
	mb := NewMailbox()
	l, err := NewListenerSource(r, 0, 1, mb, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !r.reporting[0] || !r.reporting[1] {
		t.Fatal("reporting not enabled")
	}

	// Pin 0 completes two windows, pin 1 none: nothing is published yet.
	for _, v := range []uint16{10, 20, 30, 40} {
		r.send(0, v)
	}
	r.drained(t, 0)
	r.send(1, 100)
	r.send(1, 300)
	select {
	case <-mb.C():
	case <-time.After(5 * time.Second):
		t.Fatal("no pair posted")
	}
	p, ok := mb.Take()
	if !ok || p != (Pair{35, 200}) {
		t.Errorf("Take() = %s, %t; want (35, 200)", p, ok)
	}

	if err := l.Halt(); err != nil {
		t.Fatal(err)
	}
	if r.reporting[0] || r.reporting[1] || r.released != 2 {
		t.Errorf("Halt() left reporting=%v released=%d", r.reporting, r.released)
	}
	if err := l.Halt(); err != nil {
		t.Errorf("second Halt() = %v", err)
	}
}

func TestListenerSourceRegistrationError(t *testing.T) {
	r := newFakeReporter()
	r.listeners[1] = make(chan uint16)
	if _, err := NewListenerSource(r, 0, 1, NewMailbox(), 0); err == nil {
		t.Fatal("expected an error for a busy pin")
	}
	if r.released != 1 {
		t.Errorf("pin 0 listener not released, released=%d", r.released)
	}
}

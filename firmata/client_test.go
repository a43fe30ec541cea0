// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package firmata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeBoard is the board side of a serial link. The client reads what the
// test sends and writes to a buffer.
type fakeBoard struct {
	*io.PipeReader
	dev *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
}

func newFakeBoard() *fakeBoard {
	r, w := io.Pipe()
	return &fakeBoard{PipeReader: r, dev: w}
}

func (b *fakeBoard) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written.Write(p)
}

func (b *fakeBoard) Written() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.written.Bytes()...)
}

func (b *fakeBoard) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written.Reset()
}

// send blocks until the client read everything.
func (b *fakeBoard) send(t *testing.T, data ...byte) {
	t.Helper()
	if _, err := b.dev.Write(data); err != nil {
		t.Fatal(err)
	}
}

var firmwareReport = []byte{0xF0, 0x79, 0x02, 0x05, 'S', 0, 'F', 0, 0xF7}

func startClient(t *testing.T) (*Client, *fakeBoard) {
	t.Helper()
	b := newFakeBoard()
	c := NewClient(b, nil)
	go func() { _, _ = b.dev.Write(firmwareReport) }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := c.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Major != 2 || r.Minor != 5 || r.String() != "SF [2.5]" {
		t.Errorf("firmware = %s", r)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, b
}

func TestStart(t *testing.T) {
	c, b := startClient(t)
	if got := b.Written(); !bytes.Equal(got, []byte{0xF0, 0x79, 0xF7}) {
		t.Errorf("wrote % X", got)
	}
	if _, err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v", err)
	}
	if c.Err() != nil {
		t.Errorf("Err() = %v while running", c.Err())
	}
}

func TestStartTimeout(t *testing.T) {
	c := NewClient(newFakeBoard(), nil)
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() = %v", err)
	}
}

func TestAnalogListener(t *testing.T) {
	c, b := startClient(t)
	ch2 := make(chan uint16, 4)
	ch3 := make(chan uint16, 4)
	release, err := c.SetAnalogIOMessageListener(2, ch2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetAnalogIOMessageListener(2, ch2); !errors.Is(err, ErrPinListenerNotReleased) {
		t.Errorf("second listener = %v", err)
	}
	if _, err := c.SetAnalogIOMessageListener(16, ch2); !errors.Is(err, ErrInvalidAnalogPin) {
		t.Errorf("listener on A16 = %v", err)
	}
	if _, err := c.SetAnalogIOMessageListener(3, ch3); err != nil {
		t.Fatal(err)
	}

	// Other messages are skipped.
	b.send(t, 0xF9, 0x02, 0x05)
	b.send(t, 0x90, 0x01, 0x00)
	b.send(t, 0xF0, 0x71, 'h', 0, 'i', 0, 0xF7)
	b.send(t, 0xE2, 0x7F, 0x1F)
	if v := <-ch2; v != 4095 {
		t.Errorf("A2 = %d, want 4095", v)
	}

	release()
	b.send(t, 0xE2, 0x01, 0x00)
	b.send(t, 0xE3, 0x00, 0x08)
	if v := <-ch3; v != 1024 {
		t.Errorf("A3 = %d, want 1024", v)
	}
	if len(ch2) != 0 {
		t.Error("reading delivered after release")
	}
}

func TestDropped(t *testing.T) {
	c, b := startClient(t)
	ch := make(chan uint16, 1)
	marker := make(chan uint16, 1)
	if _, err := c.SetAnalogIOMessageListener(0, ch); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetAnalogIOMessageListener(1, marker); err != nil {
		t.Fatal(err)
	}
	b.send(t, 0xE0, 1, 0, 0xE0, 2, 0, 0xE1, 3, 0)
	<-marker
	if c.Dropped() != 1 {
		t.Errorf("Dropped() = %d", c.Dropped())
	}
	if v := <-ch; v != 1 {
		t.Errorf("kept %d, want the first reading", v)
	}
}

func TestWrites(t *testing.T) {
	c, b := startClient(t)
	b.Reset()
	if err := c.SetAnalogPinReporting(3, true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAnalogPinReporting(3, false); err != nil {
		t.Fatal(err)
	}
	if err := c.SetSamplingInterval(1000); err != nil {
		t.Fatal(err)
	}
	if err := c.SendReset(); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xC3, 1, 0xC3, 0, 0xF0, 0x7A, 0x68, 0x07, 0xF7, 0xFF}
	if got := b.Written(); !bytes.Equal(got, want) {
		t.Errorf("wrote % X, want % X", got, want)
	}
	if err := c.SetAnalogPinReporting(16, true); !errors.Is(err, ErrInvalidAnalogPin) {
		t.Errorf("SetAnalogPinReporting(16) = %v", err)
	}
	for _, ms := range []uint16{0, MaxSamplingInterval + 1} {
		if err := c.SetSamplingInterval(ms); !errors.Is(err, ErrValueOutOfRange) {
			t.Errorf("SetSamplingInterval(%d) = %v", ms, err)
		}
	}
}

func TestDisconnect(t *testing.T) {
	c, b := startClient(t)
	_ = b.dev.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client still reading")
	}
	if !errors.Is(c.Err(), ErrDeviceDisconnected) {
		t.Errorf("Err() = %v", c.Err())
	}
}

func TestInvalidMessage(t *testing.T) {
	c, b := startClient(t)
	b.send(t, 0x85)
	<-c.Done()
	if !errors.Is(c.Err(), ErrInvalidMessageTypeStart) {
		t.Errorf("Err() = %v", c.Err())
	}
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package firmata

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Opts represents the options of a Client.
type Opts struct {
	// Logger receives the protocol version, string messages sent by the board
	// and ignored messages. Nil discards them.
	Logger *slog.Logger
}

// Client talks to a Firmata board.
type Client struct {
	board  io.ReadWriteCloser
	logger *slog.Logger

	// mu serializes writes to the board.
	mu      sync.Mutex
	started bool

	analogMU       sync.Mutex
	analogChannels map[uint8]chan uint16
	dropped        atomic.Uint64

	firmware chan FirmwareReport
	done     chan struct{}
	err      error
}

// NewClient returns a Client using board, typically a serial port opened
// with OpenSerial. If opts is nil, the defaults are used.
func NewClient(board io.ReadWriteCloser, opts *Opts) *Client {
	c := &Client{
		board:          board,
		analogChannels: map[uint8]chan uint16{},
		firmware:       make(chan FirmwareReport, 1),
		done:           make(chan struct{}),
	}
	if opts != nil {
		c.logger = opts.Logger
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

func (c *Client) String() string {
	return "firmata"
}

type flusher interface {
	Flush()
}

type flusherErr interface {
	Flush() error
}

// Start starts reading the board and returns its firmware report.
//
// The board reports its firmware when it boots; it is asked again in case
// opening the port did not reset it.
func (c *Client) Start(ctx context.Context) (FirmwareReport, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return FirmwareReport{}, ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	if b, ok := c.board.(flusher); ok {
		b.Flush()
	} else if b, ok := c.board.(flusherErr); ok {
		if err := b.Flush(); err != nil {
			return FirmwareReport{}, err
		}
	}
	go c.watch()

	if err := c.sendSysEx(SysExReportFirmware); err != nil {
		return FirmwareReport{}, err
	}
	select {
	case r := <-c.firmware:
		c.logger.Info("firmata: firmware", "report", r.String())
		return r, nil
	case <-c.done:
		return FirmwareReport{}, c.err
	case <-ctx.Done():
		return FirmwareReport{}, ctx.Err()
	}
}

// Done is closed when the client stopped reading the board.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the client stopped reading. It is only valid once Done
// is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Dropped returns how many analog readings were dropped because their
// listener was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Close closes the board. Reading stops with ErrDeviceDisconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return c.board.Close()
}

// SendReset asks the board to reset its pins.
func (c *Client) SendReset() error {
	return c.write([]byte{byte(SystemReset)})
}

// SetAnalogPinReporting enables or disables reporting of an analog pin.
func (c *Client) SetAnalogPinReporting(analogPin uint8, report bool) error {
	if analogPin >= AnalogPins {
		return ErrInvalidAnalogPin
	}
	v := byte(0)
	if report {
		v = 1
	}
	return c.write([]byte{byte(ReportAnalogPin) | analogPin, v})
}

// SetSamplingInterval sets how often the board reports its analog pins.
func (c *Client) SetSamplingInterval(ms uint16) error {
	if ms == 0 || ms > MaxSamplingInterval {
		return fmt.Errorf("%w: 1 - %d ms", ErrValueOutOfRange, MaxSamplingInterval)
	}
	lsb, msb := WordToTwoByte(ms)
	return c.sendSysEx(SysExSamplingInterval, lsb, msb)
}

// SetAnalogIOMessageListener sends every reading of analogPin to ch until
// release is called. Readings are dropped while ch is full.
func (c *Client) SetAnalogIOMessageListener(analogPin uint8, ch chan uint16) (release func(), err error) {
	if analogPin >= AnalogPins {
		return nil, ErrInvalidAnalogPin
	}
	c.analogMU.Lock()
	defer c.analogMU.Unlock()
	if c.analogChannels[analogPin] != nil {
		return nil, fmt.Errorf("%w: A%d", ErrPinListenerNotReleased, analogPin)
	}
	c.analogChannels[analogPin] = ch
	return func() { c.releaseAnalogIOMessageListener(analogPin) }, nil
}

func (c *Client) releaseAnalogIOMessageListener(p uint8) {
	c.analogMU.Lock()
	defer c.analogMU.Unlock()
	delete(c.analogChannels, p)
}

func (c *Client) sendSysEx(cmd SysExCmd, payload ...byte) error {
	b := make([]byte, 0, len(payload)+3)
	b = append(b, byte(StartSysEx), byte(cmd))
	b = append(b, payload...)
	return c.write(append(b, byte(EndSysEx)))
}

func (c *Client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.board.Write(payload)
	return err
}

// deliver must not block: release waits on analogMU.
func (c *Client) deliver(p uint8, v uint16) {
	c.analogMU.Lock()
	defer c.analogMU.Unlock()
	ch, ok := c.analogChannels[p]
	if !ok {
		return
	}
	select {
	case ch <- v:
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) watch() {
	err := c.responseWatcher()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
		err = ErrDeviceDisconnected
	}
	c.err = err
	close(c.done)
}

func (c *Client) responseWatcher() error {
	reader := bufio.NewReader(c.board)
	var two [2]byte
	for {
		b0, err := reader.ReadByte()
		if err != nil {
			return err
		}

		mt := MessageType(b0)
		switch {
		case b0 < 0x80:
			// A data byte outside of a message, seen while the board boots.
			c.logger.Debug("firmata: skipped data byte", "byte", b0)
		case mt == ProtocolVersion:
			if _, err := io.ReadFull(reader, two[:]); err != nil {
				return err
			}
			c.logger.Debug("firmata: protocol version", "major", two[0], "minor", two[1])
		case AnalogIOMessage <= mt && mt <= AnalogIOMessage+0xF:
			if _, err := io.ReadFull(reader, two[:]); err != nil {
				return err
			}
			c.deliver(b0&0xF, TwoByteToWord(two[0], two[1]))
		case DigitalIOMessage <= mt && mt <= DigitalIOMessage+0xF:
			if _, err := io.ReadFull(reader, two[:]); err != nil {
				return err
			}
		case mt == StartSysEx:
			data, err := reader.ReadBytes(byte(EndSysEx))
			if err != nil {
				return err
			}
			if len(data) < 2 {
				return ErrNoDataRead
			}
			c.handleSysEx(SysExCmd(data[0]), data[1:len(data)-1])
		default:
			return fmt.Errorf("%w: 0x%02X", ErrInvalidMessageTypeStart, b0)
		}
	}
}

func (c *Client) handleSysEx(cmd SysExCmd, data []byte) {
	switch cmd {
	case SysExReportFirmware:
		if len(data) < 2 {
			c.logger.Debug("firmata: short firmware report", "len", len(data))
			return
		}
		r := FirmwareReport{Major: data[0], Minor: data[1], Name: append([]byte(nil), data[2:]...)}
		select {
		case c.firmware <- r:
		default:
		}
	case SysExStringData:
		c.logger.Info("firmata: device", "message", TwoByteString(data))
	default:
		c.logger.Debug("firmata: ignored sysex", "cmd", fmt.Sprintf("0x%02X", byte(cmd)), "len", len(data))
	}
}

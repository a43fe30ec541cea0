// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package oversample

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/analog"
)

// ADC reads one analog input. analog.PinADC implements it.
type ADC interface {
	Read() (analog.Sample, error)
}

// Opts represents the options of a Source.
type Opts struct {
	// Interval between two conversions of each channel.
	Interval time.Duration
	// Shift sets the window to 1<<Shift conversions.
	Shift uint
}

// DefaultOpts samples every millisecond and publishes every 32
// conversions.
var DefaultOpts = Opts{Interval: time.Millisecond, Shift: DefaultShift}

var errInvalidInterval = errors.New("oversample: interval must be positive")

// Source polls the two wiper inputs of a pot, oversamples them and posts
// the filtered pairs to a Mailbox.
type Source struct {
	ch1, ch2 ADC
	mb       *Mailbox
	opts     Opts

	mu       sync.Mutex
	shutdown chan struct{}
	done     chan struct{}
	errs     uint64
	lastErr  error
}

// NewSource returns a Source reading ch1 and ch2 into mb. If opts is nil,
// DefaultOpts is used. Call Start to begin sampling.
func NewSource(ch1, ch2 ADC, mb *Mailbox, opts *Opts) (*Source, error) {
	if opts == nil {
		o := DefaultOpts
		opts = &o
	}
	if opts.Interval <= 0 {
		return nil, errInvalidInterval
	}
	return &Source{ch1: ch1, ch2: ch2, mb: mb, opts: *opts}, nil
}

// Start launches the sampling goroutine. It is a no-op when already
// running.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown != nil {
		return
	}
	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.shutdown, s.done)
}

func (s *Source) run(shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	a1 := NewAccumulator(s.opts.Shift)
	a2 := NewAccumulator(s.opts.Shift)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			p, err := ReadPair(s.ch1, s.ch2)
			if err != nil {
				s.fail(err)
				continue
			}
			v1, ok1 := a1.Add(p.S1)
			v2, ok2 := a2.Add(p.S2)
			if ok1 && ok2 {
				s.mb.Post(Pair{S1: v1, S2: v2})
			}
		}
	}
}

func (s *Source) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs++
	s.lastErr = err
}

// Err returns the number of failed reads and the last error seen.
func (s *Source) Err() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs, s.lastErr
}

// Halt stops the sampling goroutine and waits for it to exit. Implements
// conn.Resource.
func (s *Source) Halt() error {
	s.mu.Lock()
	shutdown, done := s.shutdown, s.done
	s.shutdown, s.done = nil, nil
	s.mu.Unlock()
	if shutdown != nil {
		close(shutdown)
		<-done
	}
	return nil
}

func (s *Source) String() string {
	return fmt.Sprintf("oversample: %s window=%d", s.opts.Interval, 1<<s.opts.Shift)
}

// ReadPair reads one unfiltered pair, for example to seed a pot before the
// first window completes.
func ReadPair(ch1, ch2 ADC) (Pair, error) {
	r1, err := ch1.Read()
	if err != nil {
		return Pair{}, fmt.Errorf("oversample: channel 1: %w", err)
	}
	r2, err := ch2.Read()
	if err != nil {
		return Pair{}, fmt.Errorf("oversample: channel 2: %w", err)
	}
	return Pair{S1: rawToSample(r1.Raw), S2: rawToSample(r2.Raw)}, nil
}

// rawToSample clamps an analog.Sample raw reading to the 16-bit sample
// range used by contpot.
func rawToSample(raw int32) uint16 {
	switch {
	case raw < 0:
		return 0
	case raw > 0xffff:
		return 0xffff
	default:
		return uint16(raw)
	}
}

var _ conn.Resource = &Source{}

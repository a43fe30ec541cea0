// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package oversample turns raw ADC conversions into the filtered sample
// pairs consumed by contpot, and hands them over from the sampling
// goroutine to the decoding one.
//
// A window of 2^N conversions is summed and shifted right by N. The result
// is published to a Mailbox, a single slot that always holds the most
// recent pair; an unread pair is overwritten, never queued.
package oversample

// DefaultShift sums 32 conversions per published sample.
const DefaultShift = 5

// maxShift keeps the sum of 16-bit conversions inside 32 bits.
const maxShift = 16

// Accumulator low-pass filters one channel by averaging a window of
// 1<<Shift conversions.
//
// It is not safe for concurrent use.
type Accumulator struct {
	shift uint
	sum   uint32
	count uint32
}

// NewAccumulator returns an Accumulator averaging 1<<shift conversions.
// shift is capped at 16.
func NewAccumulator(shift uint) *Accumulator {
	if shift > maxShift {
		shift = maxShift
	}
	return &Accumulator{shift: shift}
}

// Window returns the number of conversions averaged per sample.
func (a *Accumulator) Window() int {
	return 1 << a.shift
}

// Add accumulates a raw conversion. When the window is complete it returns
// the averaged sample and true, and starts a new window.
func (a *Accumulator) Add(raw uint16) (uint16, bool) {
	a.sum += uint32(raw)
	a.count++
	if a.count < 1<<a.shift {
		return 0, false
	}
	v := uint16(a.sum >> a.shift)
	a.sum = 0
	a.count = 0
	return v, true
}

// Reset drops a partially accumulated window.
func (a *Accumulator) Reset() {
	a.sum = 0
	a.count = 0
}

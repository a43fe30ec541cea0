// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package potsim simulates a continuous dual-gang potentiometer.
//
// The two wipers produce triangle waves 90° apart. Turning the knob
// clockwise walks through the quadrants Q1, Q2, Q3, Q4 in order, each wiper
// peaking exactly on a quadrant boundary:
//
//	angle      0     90    180   270   360
//	wiper 1    min   mid   max   mid   min
//	wiper 2    mid   max   mid   min   mid
//
// The wipers implement analog.PinADC so they can stand in for a real
// converter.
package potsim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options of a simulated pot.
type Opts struct {
	// Max is the full scale sample of the simulated converter.
	Max uint16
	// Amplitude is the peak excursion of a wiper as a fraction of half the
	// range, in (0, 1].
	Amplitude float64
	// Noise is the maximum random offset added to every reading.
	Noise uint16
	// Seed of the noise generator.
	Seed uint64
	// VRef is the voltage reported at full scale.
	VRef physic.ElectricPotential
}

// DefaultOpts is a noiseless 12-bit pot swinging over 95% of the range.
var DefaultOpts = Opts{Max: 4095, Amplitude: 0.95, VRef: 3300 * physic.MilliVolt}

var errInvalidOpts = errors.New("potsim: max must be at least 2 and amplitude in (0, 1]")

// Pot is a simulated continuous pot. It is safe for concurrent use.
type Pot struct {
	mu    sync.Mutex
	opts  Opts
	max   uint16
	angle float64
	rnd   *rand.Rand
}

// New returns a pot at angle 0. If opts is nil, DefaultOpts is used.
func New(opts *Opts) (*Pot, error) {
	if opts == nil {
		o := DefaultOpts
		opts = &o
	}
	if opts.Max < 2 || opts.Amplitude <= 0 || opts.Amplitude > 1 {
		return nil, errInvalidOpts
	}
	return &Pot{
		opts: *opts,
		max:  opts.Max,
		rnd:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// MaxADC returns the highest sample the wipers can produce.
func (p *Pot) MaxADC() uint16 {
	return p.max
}

// Angle returns the knob position in degrees, in [0, 360).
func (p *Pot) Angle() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.angle
}

// SetAngle moves the knob to an absolute position in degrees.
func (p *Pot) SetAngle(deg float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.angle = normalize(deg)
}

// Rotate turns the knob by deg degrees, clockwise when positive.
func (p *Pot) Rotate(deg float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.angle = normalize(p.angle + deg)
}

// Samples returns both wiper readings at the current angle.
func (p *Pot) Samples() (uint16, uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sample(tri(p.angle - 90)), p.sample(tri(p.angle))
}

// Wiper returns wiper 1 or 2 as an analog pin.
func (p *Pot) Wiper(n int) (*Wiper, error) {
	if n != 1 && n != 2 {
		return nil, fmt.Errorf("potsim: no wiper %d", n)
	}
	return &Wiper{p: p, n: n}, nil
}

// Spin turns the knob at speed degrees per second, updating every tick,
// until ctx is canceled. The direction reverses every reverse interval;
// zero never reverses.
func (p *Pot) Spin(ctx context.Context, speed float64, tick, reverse time.Duration) error {
	t := time.NewTicker(tick)
	defer t.Stop()
	var flip <-chan time.Time
	if reverse > 0 {
		r := time.NewTicker(reverse)
		defer r.Stop()
		flip = r.C
	}
	step := speed * tick.Seconds()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-flip:
			step = -step
		case <-t.C:
			p.Rotate(step)
		}
	}
}

func (p *Pot) String() string {
	return fmt.Sprintf("potsim: 0-%d at %.1f°", p.max, p.Angle())
}

// sample must be called with mu held.
func (p *Pot) sample(wave float64) uint16 {
	half := float64(p.max >> 1)
	v := math.Round(half + wave*p.opts.Amplitude*half)
	if n := int(p.opts.Noise); n > 0 {
		v += float64(p.rnd.IntN(2*n+1) - n)
	}
	switch {
	case v < 0:
		return 0
	case v > float64(p.max):
		return p.max
	default:
		return uint16(v)
	}
}

// tri is a unit triangle wave: 0 at 0°, 1 at 90°, 0 at 180°, -1 at 270°.
func tri(deg float64) float64 {
	x := normalize(deg)
	switch {
	case x < 90:
		return x / 90
	case x < 270:
		return (180 - x) / 90
	default:
		return (x - 360) / 90
	}
}

func normalize(deg float64) float64 {
	x := math.Mod(deg, 360)
	if x < 0 {
		x += 360
	}
	return x
}

// Wiper is one output of a simulated pot.
type Wiper struct {
	p *Pot
	n int
}

// Read implements analog.PinADC.
func (w *Wiper) Read() (analog.Sample, error) {
	s1, s2 := w.p.Samples()
	s := s1
	if w.n == 2 {
		s = s2
	}
	return w.toSample(s), nil
}

// Range implements analog.PinADC.
func (w *Wiper) Range() (analog.Sample, analog.Sample) {
	return w.toSample(0), w.toSample(w.p.max)
}

func (w *Wiper) toSample(raw uint16) analog.Sample {
	return analog.Sample{
		V:   physic.ElectricPotential(int64(w.p.opts.VRef) * int64(raw) / int64(w.p.max)),
		Raw: int32(raw),
	}
}

func (w *Wiper) Name() string {
	return fmt.Sprintf("WIPER%d", w.n)
}

func (w *Wiper) Number() int {
	return w.n
}

func (w *Wiper) Function() string {
	return "ADC"
}

func (w *Wiper) String() string {
	return w.Name()
}

func (w *Wiper) Halt() error {
	return nil
}

var _ analog.PinADC = &Wiper{}

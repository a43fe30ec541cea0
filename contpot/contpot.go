// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package contpot

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// MaxCapacity is the largest number of pots a Decoder can hold.
const MaxCapacity = 255

// Status is the outcome of a successful Update.
type Status uint8

const (
	// Applied means the sample pair was used; the value may have moved by
	// one step or stayed clamped at a bound.
	Applied Status = iota
	// SuppressedByDeadZone means the active wiper did not move past its
	// dead-zone and nothing was changed.
	SuppressedByDeadZone
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "Applied"
	case SuppressedByDeadZone:
		return "SuppressedByDeadZone"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Opts represents the configurable options of a Decoder.
type Opts struct {
	// StrictSet makes SetValue return ErrOutOfRange for a value outside
	// [Min, Max] instead of silently ignoring it.
	StrictSet bool
	// CheckStart makes Add reject a Config whose Start is outside
	// [Min, Max]. When false the start value is stored as given.
	CheckStart bool
	// Logger receives a debug record for every value change. Nil disables
	// logging.
	Logger *slog.Logger
}

// Config describes a pot passed to Add.
type Config struct {
	Start float64 `yaml:"start" json:"start"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
	// Step is added or subtracted for every registered turn increment.
	Step float64         `yaml:"step" json:"step"`
	Ch1  ChannelSettings `yaml:"ch1" json:"ch1"`
	Ch2  ChannelSettings `yaml:"ch2" json:"ch2"`
}

// channel is the sample history of one wiper.
type channel struct {
	curr uint16
	prev uint16
}

type pot struct {
	value    float64
	min      float64
	max      float64
	step     float64
	quadrant Quadrant
	settings [2]ChannelSettings
	data     [2]channel
}

// State is a snapshot of a pot, for diagnostics.
type State struct {
	Value    float64
	Min      float64
	Max      float64
	Step     float64
	Quadrant Quadrant
	// Curr and Prev hold the two most recent samples of wiper 1 and 2.
	Curr [2]uint16
	Prev [2]uint16
}

// Result is the outcome of UpdateState.
type Result struct {
	Status Status
	// Changed is true when the value moved.
	Changed bool
	// State is the pot after the update.
	State State
}

// Decoder is a fixed-capacity registry of continuous pots.
//
// The zero value is not initialized; call Init or use New. Pots are added
// with Add and addressed by the returned index for the Decoder lifetime.
//
// Update, Value and SetValue never block on I/O. They may be called from
// different goroutines, but a given pot is expected to be fed by a single
// consumer.
type Decoder struct {
	mu   sync.Mutex
	opts Opts
	pots []pot
}

// New returns a Decoder able to hold capacity pots. If opts is nil, the
// defaults are used.
func New(capacity int, opts *Opts) (*Decoder, error) {
	d := &Decoder{}
	if opts != nil {
		d.opts = *opts
	}
	if err := d.Init(capacity); err != nil {
		return nil, err
	}
	return d, nil
}

// Init allocates storage for exactly capacity pots. It can only succeed
// once per Decoder.
func (d *Decoder) Init(capacity int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pots != nil {
		return ErrAlreadyInitialized
	}
	if capacity < 0 || capacity > MaxCapacity {
		return fmt.Errorf("%w: capacity %d", ErrOutOfMemory, capacity)
	}
	d.pots = make([]pot, 0, capacity)
	return nil
}

// Len returns the number of pots added so far.
func (d *Decoder) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pots)
}

// Cap returns the capacity fixed by Init.
func (d *Decoder) Cap() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cap(d.pots)
}

// Add appends a pot seeded with the wiper samples s1 and s2 and returns its
// index. Indexes are assigned in order starting at 0.
func (d *Decoder) Add(s1, s2 uint16, cfg Config) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pots == nil {
		return -1, ErrNotInitialized
	}
	if len(d.pots) >= cap(d.pots) {
		return -1, ErrCapacityExceeded
	}
	if !cfg.Ch1.valid() || !cfg.Ch2.valid() {
		return -1, ErrInvalidSettings
	}
	if math.IsNaN(cfg.Min) || math.IsNaN(cfg.Max) || cfg.Min > cfg.Max {
		return -1, ErrInvalidRange
	}
	if math.IsNaN(cfg.Step) || math.IsInf(cfg.Step, 0) || cfg.Step < 0 {
		return -1, fmt.Errorf("%w: %v", ErrInvalidStep, cfg.Step)
	}
	if d.opts.CheckStart && (cfg.Start < cfg.Min || cfg.Start > cfg.Max) {
		return -1, ErrStartOutOfRange
	}
	p := pot{
		value:    cfg.Start,
		min:      cfg.Min,
		max:      cfg.Max,
		step:     cfg.Step,
		quadrant: classify(cfg.Ch1, cfg.Ch2, s1, s2),
		settings: [2]ChannelSettings{cfg.Ch1, cfg.Ch2},
		data:     [2]channel{{curr: s1, prev: s1}, {curr: s2, prev: s2}},
	}
	d.pots = append(d.pots, p)
	index := len(d.pots) - 1
	if d.opts.Logger != nil {
		d.opts.Logger.Debug("contpot: added pot", "index", index, "min", cfg.Min, "max", cfg.Max, "quadrant", p.quadrant)
	}
	return index, nil
}

// Update feeds a new filtered sample pair to the pot at index and moves its
// value by one step in the detected direction.
//
// When the wiper that drives the current quadrant has not moved out of its
// dead-zone, SuppressedByDeadZone is returned and the pot is left
// untouched, including its sample history.
func (d *Decoder) Update(index int, s1, s2 uint16) (Status, error) {
	r, err := d.UpdateState(index, s1, s2)
	return r.Status, err
}

// UpdateState is Update that also returns whether the value moved and the
// resulting state, all observed under the same lock.
func (d *Decoder) UpdateState(index int, s1, s2 uint16) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.get(index)
	if err != nil {
		return Result{}, err
	}
	st, changed := p.update(index, s1, s2, d.opts.Logger)
	return Result{Status: st, Changed: changed, State: p.state()}, nil
}

// update applies the pair and reports whether the value moved.
func (p *pot) update(index int, s1, s2 uint16, logger *slog.Logger) (Status, bool) {
	q := classify(p.settings[0], p.settings[1], s1, s2)
	curr1, curr2 := p.data[0].curr, p.data[1].curr
	up1, up2 := int(s1) > int(curr1), int(s2) > int(curr2)

	var incr bool
	switch q {
	case Q1:
		if p.settings[1].inDeadZone(curr2, s2) {
			return SuppressedByDeadZone, false
		}
		incr = up2 || p.quadrant == Q4
	case Q2:
		if p.settings[0].inDeadZone(curr1, s1) {
			return SuppressedByDeadZone, false
		}
		incr = up1 || p.quadrant == Q1
	case Q3:
		if p.settings[0].inDeadZone(curr1, s1) {
			return SuppressedByDeadZone, false
		}
		incr = !up1 || p.quadrant == Q2
	case Q4:
		if p.settings[1].inDeadZone(curr2, s2) {
			return SuppressedByDeadZone, false
		}
		incr = up2 || p.quadrant == Q3
	}

	old := p.value
	if incr {
		p.increment()
	} else {
		p.decrement()
	}
	if logger != nil && p.value != old {
		sign := "-"
		if incr {
			sign = "+"
		}
		logger.Debug("contpot: "+sign, "index", index, "value", p.value, "quadrant", q)
	}

	p.quadrant = q
	p.data[0] = channel{curr: s1, prev: curr1}
	p.data[1] = channel{curr: s2, prev: curr2}
	return Applied, p.value != old
}

// Value returns the current value of the pot at index.
func (d *Decoder) Value(index int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.get(index)
	if err != nil {
		return 0, err
	}
	return p.value, nil
}

// SetValue forces the value of the pot at index. The value is applied only
// when it lies within [Min, Max]; otherwise false is returned, with
// ErrOutOfRange when Opts.StrictSet is set.
func (d *Decoder) SetValue(index int, value float64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.get(index)
	if err != nil {
		return false, err
	}
	if value < p.min || value > p.max {
		if d.opts.StrictSet {
			return false, ErrOutOfRange
		}
		return false, nil
	}
	p.value = value
	return true, nil
}

// Quadrant returns the quadrant of the last applied sample pair.
func (d *Decoder) Quadrant(index int) (Quadrant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.get(index)
	if err != nil {
		return Q1, err
	}
	return p.quadrant, nil
}

// Snapshot returns a copy of the pot state at index.
func (d *Decoder) Snapshot(index int) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.get(index)
	if err != nil {
		return State{}, err
	}
	return p.state(), nil
}

func (p *pot) state() State {
	return State{
		Value:    p.value,
		Min:      p.min,
		Max:      p.max,
		Step:     p.step,
		Quadrant: p.quadrant,
		Curr:     [2]uint16{p.data[0].curr, p.data[1].curr},
		Prev:     [2]uint16{p.data[0].prev, p.data[1].prev},
	}
}

func (d *Decoder) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("contpot: %d/%d pots", len(d.pots), cap(d.pots))
}

// get must be called with mu held.
func (d *Decoder) get(index int) (*pot, error) {
	if d.pots == nil {
		return nil, ErrNotInitialized
	}
	if index < 0 || index >= len(d.pots) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	return &d.pots[index], nil
}

func (p *pot) increment() {
	if p.value < p.max {
		v := p.value + p.step
		if v > p.max {
			v = p.max
		}
		p.value = v
	}
}

func (p *pot) decrement() {
	if p.value > p.min {
		v := p.value - p.step
		if v < p.min {
			v = p.min
		}
		p.value = v
	}
}

var _ fmt.Stringer = &Decoder{}
